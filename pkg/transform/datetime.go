package transform

import (
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/spf13/cast"
)

const (
	// InternalFormat is the layout timestamps are stored in (always UTC).
	InternalFormat = "2006-01-02 15:04:05"
	// ExternalFormat is the ISO-8601 layout exposed on the wire.
	ExternalFormat = "2006-01-02T15:04:05-0700"
	// NullDate is the stored sentinel for "no timestamp".
	NullDate = "0000-00-00 00:00:00"
)

// knownLayouts are tried before falling back to free-form parsing.
var knownLayouts = []string{
	InternalFormat,
	ExternalFormat,
	time.RFC3339,
	time.RFC3339Nano,
	time.RFC1123,
	time.RFC1123Z,
	time.RFC850,
	time.ANSIC,
	"2006-01-02",
}

// ParseTime resolves a free-form timestamp string into an absolute point in
// time. Strings without zone information are interpreted as UTC. The stored
// NullDate sentinel never parses.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" || s == NullDate {
		return time.Time{}, false
	}
	for _, layout := range knownLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), true
		}
	}
	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

// Datetime exposes stored timestamps as ISO-8601 strings. The stored NullDate
// sentinel is exposed as null.
type Datetime struct{}

// ToExternal implements Transform.
func (Datetime) ToExternal(v interface{}) interface{} {
	if t, ok := v.(time.Time); ok {
		if t.IsZero() {
			return nil
		}
		return t.UTC().Format(ExternalFormat)
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return nil
	}
	t, ok := ParseTime(s)
	if !ok {
		return nil
	}
	return t.Format(ExternalFormat)
}

// ToInternal implements Transform. Anything that cannot be resolved to a point
// in time is stored as NullDate.
func (Datetime) ToInternal(v interface{}) interface{} {
	if t, ok := v.(time.Time); ok {
		if t.IsZero() {
			return NullDate
		}
		return t.UTC().Format(InternalFormat)
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return NullDate
	}
	t, ok := ParseTime(s)
	if !ok {
		return NullDate
	}
	return t.Format(InternalFormat)
}
