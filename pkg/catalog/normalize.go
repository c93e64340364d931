package catalog

import (
	"fmt"
	"math"
	"strconv"

	"github.com/example/storefront/pkg/models"
)

// Normalize maps a stored product record onto the stable Product shape.
// Each canonical field falls back to its synonym when it is missing, empty
// or zero, then to a default.
func Normalize(r models.Record) models.Product {
	return models.Product{
		ID:                 int64(number(r["id"])),
		Title:              firstString(r, "title", "name"),
		Description:        firstString(r, "description", "details"),
		Location:           firstString(r, "location", "place"),
		Price:              firstNumber(r, "price", "cost"),
		AvailableInventory: int64(firstNumber(r, "availableInventory", "stock")),
		Image:              stringOr(firstString(r, "image"), models.DefaultImage),
		Rating:             firstNumber(r, "rating"),
	}
}

// NormalizeAll normalizes records in order.
func NormalizeAll(records []models.Record) []models.Product {
	out := make([]models.Product, len(records))
	for i, r := range records {
		out[i] = Normalize(r)
	}
	return out
}

// truthy reports whether v counts as set: not nil, not an empty string,
// not a zero or NaN number and not false.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case bool:
		return t
	}
	if f, ok := asNumber(v); ok {
		return f != 0 && !math.IsNaN(f)
	}
	return true
}

func firstString(r models.Record, fields ...string) string {
	for _, f := range fields {
		if v := r[f]; truthy(v) {
			if s, ok := v.(string); ok {
				return s
			}
			return fmt.Sprint(v)
		}
	}
	return ""
}

func firstNumber(r models.Record, fields ...string) float64 {
	for _, f := range fields {
		if v := r[f]; truthy(v) {
			return number(v)
		}
	}
	return 0
}

func stringOr(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// number converts v to a float64; strings are parsed, anything else is 0.
func number(v any) float64 {
	if f, ok := asNumber(v); ok && !math.IsNaN(f) {
		return f
	}
	if s, ok := v.(string); ok {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return 0
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
