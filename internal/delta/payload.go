package delta

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Attribute names consumed from market payload snapshots
const (
	fieldLineValue    = "line_value"
	fieldOddsValue    = "odds_value"
	fieldStatus       = "status"
	fieldPlayerName   = "player_name"
	fieldMarketType   = "market_type"
	fieldPropCategory = "prop_category"
)

// floatField extracts a numeric attribute from a payload snapshot. Payloads
// cross JSON boundaries, so numbers may arrive as float64, integer types,
// json.Number or numeric strings.
func floatField(data map[string]any, key string) (float64, bool) {
	if data == nil {
		return 0, false
	}
	switch v := data[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// stringField extracts a string attribute, empty when absent
func stringField(data map[string]any, key string) string {
	if data == nil {
		return ""
	}
	if s, ok := data[key].(string); ok {
		return s
	}
	return ""
}

// fieldChanged reports whether an attribute differs between two snapshots.
// Numeric values are compared numerically so 5 and 5.0 are equal across
// serialization boundaries.
func fieldChanged(prev, curr map[string]any, key string) bool {
	pf, pok := floatField(prev, key)
	cf, cok := floatField(curr, key)
	if pok && cok {
		return pf != cf
	}

	pv, pPresent := lookup(prev, key)
	cv, cPresent := lookup(curr, key)
	if pPresent != cPresent {
		return true
	}
	if !pPresent {
		return false
	}
	return fmt.Sprint(pv) != fmt.Sprint(cv)
}

// anyFieldChanged reports whether any of the given attributes differ
func anyFieldChanged(prev, curr map[string]any, keys ...string) bool {
	for _, key := range keys {
		if fieldChanged(prev, curr, key) {
			return true
		}
	}
	return false
}

func lookup(data map[string]any, key string) (any, bool) {
	if data == nil {
		return nil, false
	}
	v, ok := data[key]
	return v, ok
}
