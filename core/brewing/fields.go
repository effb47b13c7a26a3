package brewing

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/volatiletech/null/v8"
)

var nullBytes = []byte("null")

// OptFloat is a patch field: Set reports whether the key was present in the payload.
// Numbers may be sent as JSON numbers or numeric strings; anything else clears the value.
type OptFloat struct {
	Set   bool
	Value null.Float64
}

func (o *OptFloat) UnmarshalJSON(data []byte) error {
	o.Set = true
	o.Value = looseFloat(data)
	return nil
}

// OptTime is the time counterpart of OptFloat. Unparsable dates clear the value.
type OptTime struct {
	Set   bool
	Value null.Time
}

func (o *OptTime) UnmarshalJSON(data []byte) error {
	o.Set = true
	o.Value = looseTime(data)
	return nil
}

// OptString is the string counterpart of OptFloat. Blank strings clear the value.
type OptString struct {
	Set   bool
	Value null.String
}

func (o *OptString) UnmarshalJSON(data []byte) error {
	o.Set = true
	o.Value = looseString(data)
	return nil
}

// Float is a lenient null.Float64 for request bodies.
type Float struct {
	null.Float64
}

func (f *Float) UnmarshalJSON(data []byte) error {
	f.Float64 = looseFloat(data)
	return nil
}

func looseFloat(data []byte) null.Float64 {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, nullBytes) {
		return null.Float64{}
	}
	s := string(data)
	if data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return null.Float64{}
		}
		s = strings.TrimSpace(s)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return null.Float64{}
	}
	return null.Float64From(f)
}

var dateLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04", "2006-01-02"}

func looseTime(data []byte) null.Time {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return null.Time{}
	}
	return parseTime(s)
}

func parseTime(s string) null.Time {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return null.TimeFrom(t.UTC())
		}
	}
	return null.Time{}
}

func looseString(data []byte) null.String {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return null.String{}
	}
	return nullString(s)
}

func nullString(s string) null.String {
	s = strings.TrimSpace(s)
	return null.NewString(s, s != "")
}

// Text is a lenient string for request bodies: numbers are kept as their literal text.
type Text string

func (t *Text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, nullBytes):
		*t = ""
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Text(s)
	default:
		*t = Text(data)
	}
	return nil
}
