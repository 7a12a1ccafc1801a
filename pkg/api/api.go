// Package api compiles service definitions into the shared, read-only state
// of a hypermedia collection: resource and include maps, the media matcher and
// the identifiers advertised in documents.
package api

import (
	"io/fs"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/eshiol/j3-rest-api/pkg/hal"
	"github.com/eshiol/j3-rest-api/pkg/media"
	"github.com/eshiol/j3-rest-api/pkg/request"
	"github.com/eshiol/j3-rest-api/pkg/resource"
	"github.com/eshiol/j3-rest-api/pkg/store"
	"github.com/eshiol/j3-rest-api/pkg/transform"
	"github.com/spf13/cast"
	"go.uber.org/zap"
)

// InvalidDefinition is returned when a service definition cannot be served.
var InvalidDefinition = errors.New("[api] - invalid service definition")

// Definition describes a collection of records exposed over HTTP.
type Definition struct {
	// Name is the path segment of the collection, e.g. "articles".
	Name string `mapstructure:"name" yaml:"name"`
	// ContentType is the media type of an item, without the "+hal+json" suffix.
	ContentType string `mapstructure:"contentType" yaml:"contentType"`
	// DescribedBy links to the human readable schema.
	DescribedBy string `mapstructure:"describedBy" yaml:"describedBy"`
	// PrimaryRel is the relation items are embedded under in collections.
	// Defaults to "<curie>:<name>".
	PrimaryRel string `mapstructure:"primaryRel" yaml:"primaryRel"`
	// ResourceMap is the path of the resource map definition.
	ResourceMap string `mapstructure:"resourceMap" yaml:"resourceMap"`
	// IncludeMap is the path of the include map definition. Empty embeds every
	// mapped field.
	IncludeMap string `mapstructure:"includeMap" yaml:"includeMap"`
	// Table is the storage table. Defaults to Name with "/" replaced by "_".
	// It may not contain "/" or "#".
	Table string `mapstructure:"table" yaml:"table"`
}

// Service is a compiled Definition. It is safe for concurrent use.
type Service struct {
	Definition
	Resource *resource.Map
	Include  *resource.IncludeMap
	Matcher  *media.Matcher
	// Skipped holds the malformed definition entries that were left out.
	Skipped []error
}

// Load compiles def, reading its map definitions from fsys. Malformed map
// entries are skipped and logged once at warn level; only a missing name,
// content type or unreadable definition file fails the load.
func Load(def Definition, fsys fs.FS, transforms transform.Registry, logger *zap.Logger) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	def.Name = strings.Trim(def.Name, "/")
	if def.Name == "" {
		return nil, errors.Wrap(InvalidDefinition, "name is required")
	}
	if def.ContentType == "" {
		return nil, errors.Wrapf(InvalidDefinition, "%s: contentType is required", def.Name)
	}
	if def.PrimaryRel == "" {
		def.PrimaryRel = hal.DefaultCurieName + ":" + def.Name
	}
	if def.Table == "" {
		def.Table = strings.ReplaceAll(def.Name, "/", "_")
	}
	if err := store.ValidateTable(def.Table); err != nil {
		return nil, errors.Wrapf(InvalidDefinition, "%s: %v", def.Name, err)
	}
	svc := &Service{Definition: def, Matcher: media.NewMatcher(def.ContentType)}

	b, err := readDefinition(fsys, def.ResourceMap)
	if err != nil {
		return nil, errors.Wrapf(err, "[api] - %s resource map", def.Name)
	}
	var skipped []error
	svc.Resource, skipped = resource.FromDefinition(def.Name, b, transforms)
	svc.Skipped = append(svc.Skipped, skipped...)

	if def.IncludeMap != "" {
		b, err := readDefinition(fsys, def.IncludeMap)
		if err != nil {
			return nil, errors.Wrapf(err, "[api] - %s include map", def.Name)
		}
		svc.Include, skipped = resource.IncludeMapFromDefinition(b)
		svc.Skipped = append(svc.Skipped, skipped...)
	}

	for _, err := range svc.Skipped {
		logger.Warn("skipped definition entry", zap.String("service", def.Name), zap.Error(err))
	}
	logger.Info("loaded service",
		zap.String("service", def.Name),
		zap.String("contentType", def.ContentType),
		zap.Int("fields", svc.Resource.Len()),
	)
	return svc, nil
}

func readDefinition(fsys fs.FS, name string) ([]byte, error) {
	if name == "" {
		return nil, errors.Wrap(InvalidDefinition, "resourceMap is required")
	}
	return fs.ReadFile(fsys, name)
}

// CollectionPath returns the path of the collection.
func (s *Service) CollectionPath() string { return "/" + s.Name }

// ItemPath returns the path of the item with the given id.
func (s *Service) ItemPath(id int64) string {
	return s.CollectionPath() + "/" + strconv.FormatInt(id, 10)
}

// ItemLink returns the self href of a storage record, or "" if it has no id.
func (s *Service) ItemLink(rec *resource.Record) string {
	v, ok := rec.Get("id")
	if !ok {
		return ""
	}
	id, err := cast.ToInt64E(v)
	if err != nil || id == 0 {
		return ""
	}
	return s.ItemPath(id)
}

// Document starts a document for this service. self may be empty.
func (s *Service) Document(ctx request.Context, self, fields string) *hal.Document {
	return hal.New(ctx, hal.Config{
		ContentType: s.ContentType,
		DescribedBy: s.DescribedBy,
		Self:        self,
		Fields:      fields,
		ResourceMap: s.Resource,
		IncludeMap:  s.Include,
		Matcher:     s.Matcher,
		ItemLink:    s.ItemLink,
	})
}
