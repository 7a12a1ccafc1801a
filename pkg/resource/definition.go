package resource

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/eshiol/j3-rest-api/pkg/transform"
	"gopkg.in/yaml.v3"
)

// MappingError marks a definition entry that was skipped while building a Map
// or IncludeMap. Skipped entries never abort construction.
var MappingError = errors.New("[resource] - malformed definition entry")

func mappingErrorf(field, format string, args ...interface{}) error {
	return errors.Wrapf(MappingError, "%s: "+format, append([]interface{}{field}, args...)...)
}

// transformSeparator splits "transform:internal" definition values.
const transformSeparator = ":"

type fieldDef struct {
	Internal  string `yaml:"internal"`
	Transform string `yaml:"transform"`
}

// FromDefinition builds the Map for the named resource from a YAML or JSON
// document whose top level maps external names to bindings. A binding is
// either a scalar "transform:internal" (or just "internal"), or a mapping with
// "internal" and "transform" keys:
//
//	id: int:id
//	title: title
//	publish/created: datetime:created
//	publish/state:
//	  internal: state
//	  transform: state
//
// Declaration order is preserved. Entries that are malformed, duplicated or
// that reference unknown transforms are skipped and reported in the returned
// slice; the returned Map is never nil.
func FromDefinition(name string, def []byte, transforms transform.Registry) (*Map, []error) {
	m := NewMap(name)
	doc, err := parseDocument(def)
	if err != nil || doc == nil {
		return m, nonNil(err)
	}
	if doc.Kind != yaml.MappingNode {
		return m, []error{mappingErrorf(name, "definition must be a mapping")}
	}
	var errs []error
	for i := 0; i+1 < len(doc.Content); i += 2 {
		spec, err := parseField(doc.Content[i], doc.Content[i+1])
		if err == nil {
			err = m.Bind(spec, transforms)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return m, errs
}

func parseField(key, val *yaml.Node) (FieldSpec, error) {
	if key.Kind != yaml.ScalarNode || strings.TrimSpace(key.Value) == "" {
		return FieldSpec{}, mappingErrorf(key.Value, "external name must be a non-empty string")
	}
	spec := FieldSpec{External: strings.TrimSpace(key.Value)}
	switch val.Kind {
	case yaml.ScalarNode:
		parts := strings.SplitN(val.Value, transformSeparator, 2)
		if len(parts) == 2 {
			spec.Transform, spec.Internal = strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
		} else {
			spec.Internal = strings.TrimSpace(parts[0])
		}
	case yaml.MappingNode:
		var fd fieldDef
		if err := val.Decode(&fd); err != nil {
			return spec, mappingErrorf(spec.External, "%v", err)
		}
		spec.Internal, spec.Transform = strings.TrimSpace(fd.Internal), strings.TrimSpace(fd.Transform)
	default:
		return spec, mappingErrorf(spec.External, "binding must be a string or a mapping")
	}
	return spec, nil
}

// IncludeMapFromDefinition builds an IncludeMap from a YAML or JSON document
// with an "embedded" key holding either a list of field names or a mapping
// whose keys are field names. Non-string entries are skipped and reported.
func IncludeMapFromDefinition(def []byte) (*IncludeMap, []error) {
	doc, err := parseDocument(def)
	if err != nil || doc == nil {
		return NewIncludeMap(), nonNil(err)
	}
	if doc.Kind != yaml.MappingNode {
		return NewIncludeMap(), []error{mappingErrorf("embedded", "definition must be a mapping")}
	}
	var (
		names []string
		errs  []error
	)
	for i := 0; i+1 < len(doc.Content); i += 2 {
		if doc.Content[i].Value != "embedded" {
			continue
		}
		list := doc.Content[i+1]
		switch list.Kind {
		case yaml.SequenceNode:
			for _, n := range list.Content {
				names, errs = appendName(names, errs, n)
			}
		case yaml.MappingNode:
			for j := 0; j < len(list.Content); j += 2 {
				names, errs = appendName(names, errs, list.Content[j])
			}
		default:
			errs = append(errs, mappingErrorf("embedded", "must be a list or a mapping"))
		}
	}
	return NewIncludeMap(names...), errs
}

func appendName(names []string, errs []error, n *yaml.Node) ([]string, []error) {
	if n.Kind != yaml.ScalarNode || strings.TrimSpace(n.Value) == "" {
		return names, append(errs, mappingErrorf("embedded", "entry at line %d is not a field name", n.Line))
	}
	return append(names, strings.TrimSpace(n.Value)), errs
}

func parseDocument(def []byte) (*yaml.Node, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(def, &root); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "[resource] - parse definition"), MappingError)
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, nil
	}
	return root.Content[0], nil
}

func nonNil(err error) []error {
	if err == nil {
		return nil
	}
	return []error{err}
}
