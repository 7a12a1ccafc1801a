// Package transform converts single field values between their stored
// (internal) and wire (external) representations. Every Transform is total:
// values outside of a transform's domain fall back to a defined default
// instead of failing.
package transform

import "github.com/cockroachdb/errors"

// Transform converts one field value in both directions. Implementations must
// be pure and must never panic for any input, including nil.
type Transform interface {
	// ToExternal converts a stored value into its external representation.
	ToExternal(v interface{}) interface{}
	// ToInternal converts an external value back into its stored representation.
	ToInternal(v interface{}) interface{}
}

// UnknownTransform is returned when a definition references a transform that
// has not been registered.
var UnknownTransform = errors.New("[transform] - unknown transform")

// Registry maps transform names (as referenced by resource map definitions) to
// their implementations. A Registry is read-only after construction and is safe
// to share between concurrent requests.
type Registry map[string]Transform

// Builtin transform names.
const (
	DatetimeName = "datetime"
	StateName    = "state"
	YNGlobalName = "ynglobal"
	IntName      = "int"
	StringName   = "string"
	BooleanName  = "boolean"
)

// NewRegistry returns a Registry holding every builtin transform.
func NewRegistry() Registry {
	r := make(Registry)
	r.Register(DatetimeName, Datetime{})
	r.Register(StateName, State{})
	r.Register(YNGlobalName, YNGlobal{})
	r.Register(IntName, Int{})
	r.Register(StringName, String{})
	r.Register(BooleanName, Boolean{})
	return r
}

// Register adds t under name. Register panics if name is already taken, as
// registration only happens during configuration.
func (r Registry) Register(name string, t Transform) {
	if _, ok := r[name]; ok {
		panic("[transform] - transform already registered: " + name)
	}
	r[name] = t
}

// Get returns the transform registered under name.
func (r Registry) Get(name string) (Transform, error) {
	t, ok := r[name]
	if !ok {
		return nil, errors.Wrapf(UnknownTransform, "%q", name)
	}
	return t, nil
}
