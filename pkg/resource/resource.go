// Package resource binds storage field names to externally visible field names.
// A Map is built once from a declarative definition and shared read-only
// between requests; per-request field subsetting always works on a Clone.
package resource

import (
	"strings"

	"github.com/eshiol/j3-rest-api/pkg/transform"
)

// PathSeparator qualifies external names ("publish/created") and hierarchical
// resource names ("categories/articles").
const PathSeparator = "/"

// ReservedPrefix marks hypermedia containers (_meta, _links, _embedded). Fields
// carrying it are never treated as resource properties.
const ReservedPrefix = "_"

// IsReserved returns true if name is a hypermedia container name.
func IsReserved(name string) bool { return strings.HasPrefix(name, ReservedPrefix) }

// Unqualified returns the trailing segment of a possibly path-qualified name.
func Unqualified(name string) string {
	if i := strings.LastIndex(name, PathSeparator); i >= 0 {
		return name[i+1:]
	}
	return name
}

// FieldSpec binds one storage field to one external field.
type FieldSpec struct {
	// Internal is the storage field name.
	Internal string
	// External is the wire field name, optionally path-qualified.
	External string
	// Transform is the registered transform name. Empty means values pass
	// through unchanged.
	Transform string

	t transform.Transform
}

func (f FieldSpec) toExternal(v interface{}) interface{} {
	if f.t == nil {
		return v
	}
	return f.t.ToExternal(v)
}

func (f FieldSpec) toInternal(v interface{}) interface{} {
	if f.t == nil {
		return v
	}
	return f.t.ToInternal(v)
}

// Map is an ordered set of field bindings for a single resource type.
type Map struct {
	// Name is the resource name, e.g. "articles" or "categories/articles".
	Name   string
	fields []FieldSpec
}

// NewMap returns an empty Map for the resource with the given name.
func NewMap(name string) *Map { return &Map{Name: name} }

// Bind appends a binding. Bind returns MappingError if the binding would
// duplicate an external or internal name, or if the transform is unknown.
func (m *Map) Bind(f FieldSpec, transforms transform.Registry) error {
	if f.Internal == "" || f.External == "" {
		return mappingErrorf(f.External, "internal and external names are required")
	}
	if IsReserved(f.External) {
		return mappingErrorf(f.External, "external name uses the reserved prefix %q", ReservedPrefix)
	}
	for _, existing := range m.fields {
		if existing.External == f.External {
			return mappingErrorf(f.External, "duplicate external name")
		}
		if existing.Internal == f.Internal {
			return mappingErrorf(f.External, "internal field %q is already bound to %q",
				f.Internal, existing.External)
		}
	}
	if f.Transform != "" {
		t, err := transforms.Get(f.Transform)
		if err != nil {
			return mappingErrorf(f.External, "%v", err)
		}
		f.t = t
	}
	m.fields = append(m.fields, f)
	return nil
}

// ToArray returns the current bindings in declaration order.
func (m *Map) ToArray() []FieldSpec {
	out := make([]FieldSpec, len(m.fields))
	copy(out, m.fields)
	return out
}

// Len returns the number of bindings.
func (m *Map) Len() int { return len(m.fields) }

// Delete removes the binding with the given external name.
func (m *Map) Delete(external string) {
	for i, f := range m.fields {
		if f.External == external {
			m.fields = append(m.fields[:i:i], m.fields[i+1:]...)
			return
		}
	}
}

// Clone returns an independent copy of m that may be mutated freely.
func (m *Map) Clone() *Map {
	return &Map{Name: m.Name, fields: m.ToArray()}
}

// Subset returns a clone of m holding only the bindings whose unqualified
// external name is in fields.
func (m *Map) Subset(fields []string) *Map {
	c := m.Clone()
	keep := newNameSet(fields)
	for _, f := range m.fields {
		if !keep.has(Unqualified(f.External)) {
			c.Delete(f.External)
		}
	}
	return c
}

// ToExternal converts a storage record into its external representation.
// Bindings whose internal field is missing from rec are omitted. If include is
// non-nil, only bindings whose unqualified external name appears in include are
// kept. Path-qualified names produce nested records.
func (m *Map) ToExternal(rec *Record, include []string) *Record {
	var keep nameSet
	if include != nil {
		keep = newNameSet(include)
	}
	out := &Record{}
	for _, f := range m.fields {
		v, ok := rec.Get(f.Internal)
		if !ok {
			continue
		}
		if keep != nil && !keep.has(Unqualified(f.External)) {
			continue
		}
		setPath(out, f.External, f.toExternal(v))
	}
	return out
}

// ToInternal converts an external representation back into a storage record.
// Top-level fields that no binding consumes are passed through unchanged;
// hypermedia containers are dropped.
func (m *Map) ToInternal(ext *Record) *Record {
	out := &Record{}
	consumed := make(nameSet)
	for _, f := range m.fields {
		consumed.add(strings.SplitN(f.External, PathSeparator, 2)[0])
		v, ok := getPath(ext, f.External)
		if !ok {
			continue
		}
		out.Set(f.Internal, f.toInternal(v))
	}
	for _, k := range ext.Keys() {
		if consumed.has(k) || IsReserved(k) || out.Has(k) {
			continue
		}
		v, _ := ext.Get(k)
		out.Set(k, v)
	}
	return out
}

func setPath(r *Record, path string, v interface{}) {
	segments := strings.Split(path, PathSeparator)
	for _, s := range segments[:len(segments)-1] {
		next, ok := r.Get(s)
		child, isRecord := next.(*Record)
		if !ok || !isRecord {
			child = &Record{}
			r.Set(s, child)
		}
		r = child
	}
	r.Set(segments[len(segments)-1], v)
}

func getPath(r *Record, path string) (interface{}, bool) {
	segments := strings.Split(path, PathSeparator)
	for _, s := range segments[:len(segments)-1] {
		next, ok := r.Get(s)
		if !ok {
			return nil, false
		}
		child, isRecord := next.(*Record)
		if !isRecord {
			return nil, false
		}
		r = child
	}
	return r.Get(segments[len(segments)-1])
}

type nameSet map[string]struct{}

func newNameSet(names []string) nameSet {
	s := make(nameSet, len(names))
	for _, n := range names {
		s.add(strings.TrimSpace(n))
	}
	return s
}

func (s nameSet) add(n string) { s[n] = struct{}{} }

func (s nameSet) has(n string) bool {
	_, ok := s[n]
	return ok
}
