// Package pricing holds the deterministic placeholder pricing model used by
// the delta pipeline: American odds conversion, a seeded player perturbation,
// and the valuation/edge formulas. The formulas are illustrative stand-ins
// for a real probability model; the call sites and thresholds are the part
// that matters.
package pricing

import (
	"hash/fnv"
	"math"
)

const (
	// MinProbability and MaxProbability bound every estimated probability
	MinProbability = 0.01
	MaxProbability = 0.99
)

// AmericanToImplied converts American odds to an implied win probability
func AmericanToImplied(odds float64) float64 {
	switch {
	case odds > 0:
		return 100.0 / (odds + 100.0)
	case odds < 0:
		return -odds / (-odds + 100.0)
	default:
		return 0.5
	}
}

// fnvBucket hashes s with FNV-1a and reduces it to [0, mod). FNV is used
// instead of the runtime map hash so the perturbation is stable across
// processes and restarts.
func fnvBucket(s string, mod uint64) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64() % mod
}

// PlayerOffset derives a small, stable probability perturbation from the
// player name, in [-0.010, +0.009]
func PlayerOffset(playerName string) float64 {
	return (float64(fnvBucket(playerName, 20)) - 10.0) / 1000.0
}

// TrueProbability perturbs the market-implied probability by the player
// offset and clamps the result
func TrueProbability(odds float64, playerName string) float64 {
	return ClampProbability(AmericanToImplied(odds) + PlayerOffset(playerName))
}

// EstimateProbability estimates a prop's true probability from the line
// value, player and market type. Deterministic placeholder: a real model
// would be fitted on historical outcomes.
func EstimateProbability(lineValue float64, playerName, marketType string) float64 {
	p := 0.5
	p += PlayerOffset(playerName)
	p += (float64(fnvBucket(marketType, 10)) - 5.0) / 1000.0
	p += math.Mod(math.Abs(lineValue), 10.0) / 1000.0
	return ClampProbability(p)
}

// ValuationValue computes the expected value per unit stake of a prop at
// the given American odds, using the player-perturbed probability
func ValuationValue(odds float64, playerName string) float64 {
	p := TrueProbability(odds, playerName)
	payout := payoutPer100(odds)
	return (p*payout - (1.0-p)*100.0) / 100.0
}

// EdgeValue computes the expected value of betting at the posted American
// odds given a true probability p
func EdgeValue(p, odds float64) float64 {
	if odds >= 0 {
		return p*odds/100.0 - (1.0 - p)
	}
	return p*(100.0/-odds) - (1.0 - p)
}

// payoutPer100 returns the profit on a winning 100-unit stake
func payoutPer100(odds float64) float64 {
	if odds >= 0 {
		return odds
	}
	return 10000.0 / -odds
}

// ClampProbability bounds p to the modelled probability range
func ClampProbability(p float64) float64 {
	if math.IsNaN(p) || math.IsInf(p, 0) {
		return MinProbability
	}
	if p < MinProbability {
		return MinProbability
	}
	if p > MaxProbability {
		return MaxProbability
	}
	return p
}
