// Package logger provides audit logging.
package logger

import (
	"time"

	"github.com/sirupsen/logrus"
)

// AuditLogger provides dedicated audit trail logging for money-adjacent
// decisions: edge signals and portfolio position selection.
type AuditLogger struct {
	*logrus.Entry
}

// NewAuditLogger creates a new audit logger.
func NewAuditLogger(baseLogger *logrus.Logger) *AuditLogger {
	return &AuditLogger{
		Entry: baseLogger.WithField("component", "audit"),
	}
}

// LogEdgeSignal logs a computed edge crossing the significance threshold.
func (al *AuditLogger) LogEdgeSignal(propID, provider, sport string, edgeValue, trueProbability float64) {
	al.WithFields(logrus.Fields{
		"prop_id":          propID,
		"provider":         provider,
		"sport":            sport,
		"edge_value":       edgeValue,
		"true_probability": trueProbability,
	}).Info("Significant edge recorded")
}

// LogPositionSelected logs one position entering the optimized portfolio.
func (al *AuditLogger) LogPositionSelected(propID string, edgeValue float64, positionSize, expectedReturn string) {
	al.WithFields(logrus.Fields{
		"prop_id":         propID,
		"edge_value":      edgeValue,
		"position_size":   positionSize,
		"expected_return": expectedReturn,
	}).Info("Position selected")
}

// LogOptimizationRun logs a completed portfolio optimization.
func (al *AuditLogger) LogOptimizationRun(algorithm string, candidates, selected int, totalExposure, expectedReturn string, timestamp time.Time) {
	al.WithFields(logrus.Fields{
		"algorithm":       algorithm,
		"candidates":      candidates,
		"selected":        selected,
		"total_exposure":  totalExposure,
		"expected_return": expectedReturn,
		"timestamp":       timestamp.Unix(),
	}).Info("Portfolio optimization recorded")
}

// LogValuationArchived logs a valuation leaving the active set.
func (al *AuditLogger) LogValuationArchived(propID, provider, reason string) {
	al.WithFields(logrus.Fields{
		"prop_id":  propID,
		"provider": provider,
		"reason":   reason,
	}).Info("Valuation archived")
}
