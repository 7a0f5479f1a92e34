// Package row implements open, extensible error rows: per-operation tagged
// unions of failure reasons that compose by structural union.
//
// A Variant is one named failure reason. A Row is the declared set of
// variants one operation can resolve to. Sequencing two fallible operations
// unions their rows once, at construction time; two variants sharing a tag
// but carrying different payload shapes make the union ambiguous and are
// rejected rather than silently merged.
package row

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// Variant is one named failure reason within an error row.
//
// Implementations are small value types carrying the operation-specific
// context of the failure (the offending path, URL, status code, ...).
// Two variants are the same identity iff they share both tag and payload
// shape.
type Variant interface {
	error

	// Tag returns the stable name distinguishing this variant inside a row.
	Tag() string
}

// Row is the statically declared set of variants an operation may fail with.
//
// The zero value is the empty row. Rows are immutable; Union returns a new
// Row and never mutates its operands.
type Row struct {
	variants map[string]reflect.Type
}

// ErrAmbiguousVariant reports two row operands declaring the same tag with
// different payload shapes.
var ErrAmbiguousVariant = fmt.Errorf("ambiguous error row variant")

// Of declares a row from representative variant values (zero values are
// fine; only tag and type are inspected).
//
// Of panics if two arguments share a tag but differ in type: a single
// declaration site re-using a tag is a defect in the binding, not a
// recoverable condition.
func Of(variants ...Variant) Row {
	r := Row{variants: make(map[string]reflect.Type, len(variants))}
	for _, v := range variants {
		tag, typ := v.Tag(), reflect.TypeOf(v)
		if prev, ok := r.variants[tag]; ok && prev != typ {
			panic(fmt.Errorf("%w: tag %q declared as both %v and %v", ErrAmbiguousVariant, tag, prev, typ))
		}
		r.variants[tag] = typ
	}
	return r
}

// Union returns the structural union of two rows.
//
// The union is append-only: every variant of either operand survives with
// its identity intact. A tag present in both operands with different payload
// shapes is an ambiguous identity and yields ErrAmbiguousVariant.
func (r Row) Union(other Row) (Row, error) {
	merged := Row{variants: make(map[string]reflect.Type, len(r.variants)+len(other.variants))}
	for tag, typ := range r.variants {
		merged.variants[tag] = typ
	}
	for tag, typ := range other.variants {
		if prev, ok := merged.variants[tag]; ok && prev != typ {
			return Row{}, fmt.Errorf("%w: tag %q declared as both %v and %v", ErrAmbiguousVariant, tag, prev, typ)
		}
		merged.variants[tag] = typ
	}
	return merged, nil
}

// MustUnion is the panic-on-ambiguity variant of Union, for rows composed
// from declarations known at construction time.
func MustUnion(rows ...Row) Row {
	merged := Row{}
	for _, r := range rows {
		var err error
		if merged, err = merged.Union(r); err != nil {
			panic(err)
		}
	}
	return merged
}

// Declares reports whether v belongs to the row: same tag, same payload
// shape.
func (r Row) Declares(v Variant) bool {
	typ, ok := r.variants[v.Tag()]
	return ok && typ == reflect.TypeOf(v)
}

// Covers reports whether every variant of other is declared by r with the
// same identity.
func (r Row) Covers(other Row) bool {
	for tag, typ := range other.variants {
		prev, ok := r.variants[tag]
		if !ok || prev != typ {
			return false
		}
	}
	return true
}

// Tags returns the declared tags in sorted order.
func (r Row) Tags() []string {
	tags := make([]string, 0, len(r.variants))
	for tag := range r.variants {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// Len returns the number of declared variants.
func (r Row) Len() int { return len(r.variants) }

func (r Row) String() string {
	return "[" + strings.Join(r.Tags(), " ") + "]"
}
