// Package report serializes audit results as one JSON object per image.
package report

import (
	"encoding/json"
	"io"
	"math"
	"strconv"
)

// Builder emits a JSON object one field at a time, one field per line with
// the separator leading:
//
//	{ "image": "rock.png"
//	, "normalmap_R_2": 0.99
//	}
//
// Non-finite numbers are written as null. The first write error is kept and
// every later call becomes a no-op.
type Builder struct {
	w     io.Writer
	first bool
	err   error
}

// NewBuilder returns a builder writing to w.
func NewBuilder(w io.Writer) *Builder {
	return &Builder{w: w}
}

func (b *Builder) write(s string) {
	if b.err != nil {
		return
	}
	_, b.err = io.WriteString(b.w, s)
}

// Begin opens the object.
func (b *Builder) Begin() {
	b.write("{ ")
	b.first = true
}

func (b *Builder) key(k string) {
	if !b.first {
		b.write(", ")
	}
	b.first = false
	b.write(quote(k))
	b.write(": ")
}

// String adds a string field.
func (b *Builder) String(key, value string) {
	b.key(key)
	b.write(quote(value))
	b.write("\n")
}

// Number adds a numeric field, or null when v is NaN or infinite.
func (b *Builder) Number(key string, v float64) {
	b.key(key)
	b.write(FormatNumber(v))
	b.write("\n")
}

// True adds a field whose value is true.
func (b *Builder) True(key string) {
	b.key(key)
	b.write("true\n")
}

// Null adds a null field.
func (b *Builder) Null(key string) {
	b.key(key)
	b.write("null\n")
}

// End closes the object and returns the first write error, if any.
func (b *Builder) End() error {
	b.write("}\n")
	return b.err
}

// FormatNumber renders v with enough digits to round-trip, or null.
func FormatNumber(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "null"
	}
	return strconv.FormatFloat(v, 'g', 17, 64)
}

func quote(s string) string {
	data, err := json.Marshal(s)
	if err != nil {
		// Marshal of a string cannot fail.
		return strconv.Quote(s)
	}
	return string(data)
}
