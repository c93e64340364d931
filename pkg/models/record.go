package models

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Well-known collection names.
const (
	ProductsCollection = "Products"
	OrdersCollection   = "Orders"
)

// IDField is the store-assigned opaque identifier of every record.
const IDField = "_id"

// Record is one stored document. Values are whatever the backend decoded:
// strings, numbers, bools, time.Time, primitive.ObjectID, nested
// Records/maps and slices.
type Record map[string]any

// ObjectID returns the record's store identifier if it has one.
func (r Record) ObjectID() (primitive.ObjectID, bool) {
	id, ok := r[IDField].(primitive.ObjectID)
	return id, ok
}

// Clone returns a deep copy so callers can never alias stored state.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = cloneValue(v)
	}
	return out
}

// Without returns a shallow copy of r with the given fields removed.
func (r Record) Without(fields ...string) Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	for _, f := range fields {
		delete(out, f)
	}
	return out
}

// Int64 returns the numeric value of field truncated to an integer, or 0
// when the field is missing or not a number.
func (r Record) Int64(field string) int64 {
	switch n := r[field].(type) {
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case float32:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case Record:
		return t.Clone()
	case map[string]any:
		return map[string]any(Record(t).Clone())
	case bson.M:
		return bson.M(Record(t).Clone())
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case bson.A:
		out := make(bson.A, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case []int64:
		return append([]int64(nil), t...)
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}
