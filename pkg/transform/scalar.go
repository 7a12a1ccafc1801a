package transform

import "github.com/spf13/cast"

// Int coerces values to integers in both directions; unparseable input is 0.
type Int struct{}

func (Int) ToExternal(v interface{}) interface{} { return cast.ToInt64(v) }

func (Int) ToInternal(v interface{}) interface{} { return cast.ToInt64(v) }

// String coerces values to strings; nil becomes "".
type String struct{}

func (String) ToExternal(v interface{}) interface{} { return cast.ToString(v) }

func (String) ToInternal(v interface{}) interface{} { return cast.ToString(v) }

// Boolean exposes stored 0/1 flags as booleans and stores them back as 0/1.
type Boolean struct{}

func (Boolean) ToExternal(v interface{}) interface{} { return cast.ToBool(v) }

func (Boolean) ToInternal(v interface{}) interface{} {
	if cast.ToBool(v) {
		return 1
	}
	return 0
}
