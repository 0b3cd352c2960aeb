package attr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeElement map[string]string

func (f fakeElement) Attribute(name string) (string, bool) {
	v, ok := f[name]
	return v, ok
}

func (f fakeElement) Dataset(key string) (string, bool) {
	v, ok := f["data-"+CamelToKebab(key)]
	return v, ok
}

func TestGet(t *testing.T) {
	tests := []struct {
		name    string
		el      fakeElement
		key     string
		dataKey string
		want    string
		wantOK  bool
	}{
		{"attribute", fakeElement{"zoom": "4"}, "zoom", "", "4", true},
		{"empty attribute wins", fakeElement{"zoom": "", "data-zoom": "9"}, "zoom", "", "", true},
		{"dataset fallback", fakeElement{"data-center-long": "4.9"}, "center-long", "", "4.9", true},
		{"dataset override", fakeElement{"data-initial-zoom": "12"}, "zoom", "initialZoom", "12", true},
		{"absent", fakeElement{}, "zoom", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			var ok bool
			if tt.dataKey != "" {
				got, ok = Get(tt.el, tt.key, tt.dataKey)
			} else {
				got, ok = Get(tt.el, tt.key)
			}
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFloat(t *testing.T) {
	f, ok := Float(fakeElement{"lat": " 52.37 "}, "lat")
	assert.True(t, ok)
	assert.InDelta(t, 52.37, f, 1e-9)

	_, ok = Float(fakeElement{"lat": "north"}, "lat")
	assert.False(t, ok)

	_, ok = Float(fakeElement{"lat": ""}, "lat")
	assert.False(t, ok)

	_, ok = Float(fakeElement{}, "lat")
	assert.False(t, ok)
}

func TestCaseConversion(t *testing.T) {
	assert.Equal(t, "centerLong", KebabToCamel("center-long"))
	assert.Equal(t, "mapId", KebabToCamel("map-id"))
	assert.Equal(t, "long", KebabToCamel("long"))
	assert.Equal(t, "center-long", CamelToKebab("centerLong"))
	assert.Equal(t, "initial-zoom", CamelToKebab(KebabToCamel("initial-zoom")))
}
