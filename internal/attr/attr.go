// Package attr resolves declarative element options.
//
// An option can be written either as a plain attribute (`center-long="4.9"`)
// or as a dataset entry (`data-center-long="4.9"`). The plain attribute wins,
// even when it is present but empty.
package attr

import (
	"strconv"
	"strings"
	"unicode"
)

// Source is anything that exposes attributes and a dataset.
type Source interface {
	Attribute(name string) (string, bool)
	Dataset(key string) (string, bool)
}

// Get returns the attribute named key if present, otherwise the dataset
// value at the camelCased key. datasetKey overrides the dataset key.
// The boolean is false when neither is present.
func Get(el Source, key string, datasetKey ...string) (string, bool) {
	if v, ok := el.Attribute(key); ok {
		return v, true
	}

	dk := KebabToCamel(key)
	if len(datasetKey) > 0 && datasetKey[0] != "" {
		dk = datasetKey[0]
	}
	return el.Dataset(dk)
}

// Float resolves key and parses it as a float.
// Absent, empty and non-numeric values all report false.
func Float(el Source, key string, datasetKey ...string) (float64, bool) {
	v, ok := Get(el, key, datasetKey...)
	if !ok || v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// KebabToCamel converts `center-long` to `centerLong`.
// A trailing hyphen is dropped.
func KebabToCamel(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	upper := false
	for _, r := range s {
		if r == '-' {
			upper = true
			continue
		}
		if upper {
			r = unicode.ToUpper(r)
			upper = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

// CamelToKebab converts `centerLong` to `center-long`.
func CamelToKebab(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 4)
	for _, r := range s {
		if unicode.IsUpper(r) {
			b.WriteByte('-')
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}
