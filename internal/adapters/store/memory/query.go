package memory

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/okian/awards/internal/adapters/store"
)

// runQuery evaluates q against the current documents. Callers hold s.mu.
//
// Documents missing a filtered or ordered field are excluded, matching the
// production database.
func (s *Store) runQuery(q store.Query) result {
	var out []entry
	for path, data := range s.docs {
		if !inCollection(path, q) || !matches(data, q) {
			continue
		}
		out = append(out, entry{path: path, data: data})
	}

	slices.SortFunc(out, func(a, b entry) int {
		for _, o := range q.Orders {
			c := compare(a.data[o.Field], b.data[o.Field])
			if o.Desc {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return strings.Compare(a.path, b.path)
	})

	if q.Max > 0 && len(out) > q.Max {
		out = out[:q.Max]
	}
	return result{entries: out}
}

func inCollection(path string, q store.Query) bool {
	i := strings.LastIndexByte(path, '/')
	if i < 0 {
		return false
	}
	coll := path[:i]
	if !q.Group {
		return coll == q.Collection
	}
	if j := strings.LastIndexByte(coll, '/'); j >= 0 {
		coll = coll[j+1:]
	}
	return coll == q.Collection
}

func matches(data map[string]any, q store.Query) bool {
	for _, f := range q.Filters {
		v, ok := data[f.Field]
		if !ok {
			return false
		}
		if !satisfies(v, f.Op, f.Value) {
			return false
		}
	}
	for _, o := range q.Orders {
		if _, ok := data[o.Field]; !ok {
			return false
		}
	}
	return true
}

func satisfies(v any, op store.Op, want any) bool {
	switch op {
	case store.Equal:
		return sameClass(v, want) && compare(v, want) == 0
	case store.NotEqual:
		return !sameClass(v, want) || compare(v, want) != 0
	}
	if !sameClass(v, want) {
		return false
	}
	c := compare(v, want)
	switch op {
	case store.Less:
		return c < 0
	case store.LessEqual:
		return c <= 0
	case store.Greater:
		return c > 0
	case store.GreaterEqual:
		return c >= 0
	default:
		return false
	}
}

// Value classes, ordered the way mixed-type sort keys compare.
const (
	classNull = iota
	classBool
	classNumber
	classTime
	classString
	classOther
)

func class(v any) int {
	switch v.(type) {
	case nil:
		return classNull
	case bool:
		return classBool
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return classNumber
	case time.Time, *time.Time:
		return classTime
	case string:
		return classString
	default:
		return classOther
	}
}

func sameClass(a, b any) bool {
	ca := class(a)
	return ca == class(b) && ca != classOther
}

func compare(a, b any) int {
	ca, cb := class(a), class(b)
	if ca != cb {
		return cmp.Compare(ca, cb)
	}
	switch ca {
	case classBool:
		ab, bb := a.(bool), b.(bool)
		switch {
		case ab == bb:
			return 0
		case !ab:
			return -1
		default:
			return 1
		}
	case classNumber:
		return cmp.Compare(toFloat(a), toFloat(b))
	case classTime:
		return toTime(a).Compare(toTime(b))
	case classString:
		return strings.Compare(a.(string), b.(string))
	default:
		return 0
	}
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int8:
		return float64(n)
	case int16:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint:
		return float64(n)
	case uint8:
		return float64(n)
	case uint16:
		return float64(n)
	case uint32:
		return float64(n)
	case uint64:
		return float64(n)
	case float32:
		return float64(n)
	case float64:
		return n
	}
	return 0
}

func toTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case *time.Time:
		if t != nil {
			return *t
		}
	}
	return time.Time{}
}
