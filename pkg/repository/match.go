package repository

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/example/storefront/pkg/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// matcher evaluates a Filter in process for the memory and SQL backends,
// following the semantics MongoDB applies to the same filter.
type matcher struct {
	f  Filter
	re *regexp.Regexp
}

func newMatcher(f Filter) matcher {
	m := matcher{f: f}
	if f.Pattern != "" && len(f.PatternFields) > 0 {
		re, err := regexp.Compile("(?i)" + f.Pattern)
		if err != nil {
			re = regexp.MustCompile("(?i)" + regexp.QuoteMeta(f.Pattern))
		}
		m.re = re
	}
	return m
}

func (m matcher) matches(r models.Record) bool {
	if m.f.ID != nil {
		id, ok := r.ObjectID()
		if !ok || id != *m.f.ID {
			return false
		}
	}
	for field, want := range m.f.Equals {
		got, ok := r[field]
		if !ok || !valuesEqual(got, want) {
			return false
		}
	}
	if m.re != nil {
		hit := false
		for _, field := range m.f.PatternFields {
			if s, ok := r[field].(string); ok && m.re.MatchString(s) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	return true
}

// applyQuery filters, sorts and limits records without copying them.
func applyQuery(records []models.Record, q Query) []models.Record {
	m := newMatcher(q.Filter)
	out := make([]models.Record, 0, len(records))
	for _, r := range records {
		if m.matches(r) {
			out = append(out, r)
		}
	}
	if q.SortField != "" {
		sort.SliceStable(out, func(i, j int) bool {
			c := compareValues(out[i][q.SortField], out[j][q.SortField])
			if q.Descending {
				return c > 0
			}
			return c < 0
		})
	}
	if q.Limit > 0 && int64(len(out)) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

// toFloat reports the numeric value of v if it is any Go number.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
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

func valuesEqual(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	return reflect.DeepEqual(a, b)
}

// typeRank orders values of different kinds the way MongoDB sorts them:
// missing/null, numbers, strings, objectIds, booleans, dates.
func typeRank(v any) int {
	if v == nil {
		return 0
	}
	if _, ok := toFloat(v); ok {
		return 1
	}
	switch v.(type) {
	case string:
		return 2
	case primitive.ObjectID:
		return 3
	case bool:
		return 4
	case time.Time, primitive.DateTime:
		return 5
	}
	return 6
}

func compareValues(a, b any) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch ra {
	case 1:
		fa, _ := toFloat(a)
		fb, _ := toFloat(b)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
	case 2:
		return strings.Compare(a.(string), b.(string))
	case 3:
		ia, ib := a.(primitive.ObjectID), b.(primitive.ObjectID)
		return strings.Compare(ia.Hex(), ib.Hex())
	case 4:
		ba, bb := a.(bool), b.(bool)
		if ba == bb {
			return 0
		}
		if !ba {
			return -1
		}
		return 1
	case 5:
		ta, tb := asTime(a), asTime(b)
		return ta.Compare(tb)
	}
	return 0
}

func asTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case primitive.DateTime:
		return t.Time()
	}
	return time.Time{}
}

// ErrNotNumeric is returned when an increment targets a field that holds
// something other than a number, as MongoDB's $inc refuses it.
var ErrNotNumeric = errors.New("cannot increment non-numeric field")

// incremented returns cur + delta, keeping the stored numeric type where
// possible. A missing or null field counts as zero.
func incremented(cur any, delta int64) (any, error) {
	switch n := cur.(type) {
	case nil:
		return delta, nil
	case int:
		return n + int(delta), nil
	case int32:
		return n + int32(delta), nil
	case int64:
		return n + delta, nil
	case float64:
		return n + float64(delta), nil
	case float32:
		return n + float32(delta), nil
	}
	if f, ok := toFloat(cur); ok {
		return int64(f) + delta, nil
	}
	return nil, fmt.Errorf("%w: holds %T", ErrNotNumeric, cur)
}

// mergeSet applies a field-set patch in place, never touching _id.
func mergeSet(dst, set models.Record) {
	for k, v := range set.Clone() {
		if k == models.IDField {
			continue
		}
		dst[k] = v
	}
}
