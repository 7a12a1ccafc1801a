// Package hal assembles hypermedia documents: properties, links, embedded
// collections and metadata, including a fingerprint of the visible properties.
//
// A Document is built for a single request and is not safe for concurrent use.
// The resource and include maps it is configured with are never mutated; field
// subsetting works on per-document clones.
package hal

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/eshiol/j3-rest-api/pkg/media"
	"github.com/eshiol/j3-rest-api/pkg/request"
	"github.com/eshiol/j3-rest-api/pkg/resource"
	"github.com/eshiol/j3-rest-api/pkg/transform"
	"github.com/spf13/cast"
)

// APIVersion is emitted as _meta.apiVersion on every document.
const APIVersion = "1.0"

const (
	// DefaultCurieName is the namespace prefix used by primary relations.
	DefaultCurieName = "joomla"
	// DefaultCurieHref documents the relations in the default namespace.
	DefaultCurieHref = "http://docs.joomla.org/Link_relations/{rel}"
)

// Reserved container names.
const (
	MetaKey     = "_meta"
	LinksKey    = "_links"
	EmbeddedKey = "_embedded"
)

// Metadata fields written by the document itself.
const (
	MetaAPIVersion   = "apiVersion"
	MetaContentType  = "contentType"
	MetaDescribedBy  = "describedBy"
	MetaFields       = "fields"
	MetaETag         = "etag"
	MetaLastModified = "lastModified"
)

// Properties consulted, in order, for the last-modified time.
var lastModifiedFields = []string{"modified", "created"}

// Config configures a Document.
type Config struct {
	// ContentType is the declared media type of the primary resource, without
	// the "+hal+json" suffix.
	ContentType string
	// DescribedBy links to human readable schema documentation.
	DescribedBy string
	// Self is the href of the self link. Empty means no self link.
	Self string
	// Fields is the comma separated list of requested fields. Empty means all
	// fields.
	Fields string
	// ResourceMap converts records loaded or embedded into the document. Nil
	// means records are copied verbatim.
	ResourceMap *resource.Map
	// IncludeMap restricts the fields of embedded records. Nil means every
	// mapped field is embedded.
	IncludeMap *resource.IncludeMap
	// Matcher negotiates Accept headers. Nil compiles one from ContentType.
	Matcher *media.Matcher
	// ItemLink, if set, returns the self href of an embedded storage record.
	ItemLink func(rec *resource.Record) string
	// CurieName and CurieHref override the default link relation namespace.
	CurieName string
	CurieHref string
}

// Pagination holds any of the keys page, perPage, offset, totalItems and
// totalPages.
type Pagination map[string]int

// Pagination keys, in the order they are written to the metadata.
const (
	Page       = "page"
	PerPage    = "perPage"
	Offset     = "offset"
	TotalItems = "totalItems"
	TotalPages = "totalPages"
)

var paginationKeys = []string{Page, PerPage, Offset, TotalItems, TotalPages}

// Document is a hypermedia representation under construction.
type Document struct {
	ctx         request.Context
	cfg         Config
	resourceMap *resource.Map
	includeMap  *resource.IncludeMap
	now         time.Time

	meta       *resource.Record
	properties *resource.Record
	linkRels   []string
	links      map[string]Link
	curies     []Link
	embedRels  []string
	embedded   map[string][]*resource.Record

	etag         string
	lastModified time.Time
}

// New returns a Document for the given request. The document always carries
// the API version, the curie namespace and a base link.
func New(ctx request.Context, cfg Config) *Document {
	d := &Document{
		ctx:        ctx,
		cfg:        cfg,
		now:        ctx.Clock().Truncate(time.Second),
		meta:       resource.NewRecord(MetaAPIVersion, APIVersion),
		properties: &resource.Record{},
		links:      make(map[string]Link),
		embedded:   make(map[string][]*resource.Record),
	}
	name, href := cfg.CurieName, cfg.CurieHref
	if name == "" {
		name = DefaultCurieName
	}
	if href == "" {
		href = DefaultCurieHref
	}
	d.AddLink(CuriesRel, href, true, name)

	base := strings.TrimRight(ctx.BaseURL, "/")
	if base == "" {
		base = "/"
	}
	d.AddLink("base", base, false, "")
	if cfg.Self != "" {
		d.AddLink("self", cfg.Self, false, "")
	}
	if cfg.ContentType != "" {
		d.SetMetadata(MetaContentType, cfg.ContentType)
	}
	if cfg.DescribedBy != "" {
		d.SetMetadata(MetaDescribedBy, cfg.DescribedBy)
	}

	fields := splitFields(cfg.Fields)
	if fields != nil {
		d.SetMetadata(MetaFields, fields)
	}
	if cfg.ResourceMap != nil {
		if fields != nil {
			d.resourceMap = cfg.ResourceMap.Subset(fields)
		} else {
			d.resourceMap = cfg.ResourceMap
		}
	}
	if cfg.IncludeMap != nil {
		if fields != nil {
			d.includeMap = cfg.IncludeMap.Subset(fields)
		} else {
			d.includeMap = cfg.IncludeMap
		}
	}
	return d
}

func splitFields(list string) []string {
	var fields []string
	for _, f := range strings.Split(list, ",") {
		if f = strings.TrimSpace(f); f != "" {
			fields = append(fields, f)
		}
	}
	return fields
}

// AddLink inserts or replaces the link for rel. Links with the curies relation
// accumulate instead, one per namespace name.
func (d *Document) AddLink(rel, href string, templated bool, name string) *Document {
	l := Link{Href: href, Templated: templated, Name: name}
	if rel == CuriesRel {
		for i, c := range d.curies {
			if c.Name == name {
				d.curies[i] = l
				return d
			}
		}
		d.curies = append(d.curies, l)
		return d
	}
	if _, ok := d.links[rel]; !ok {
		d.linkRels = append(d.linkRels, rel)
	}
	d.links[rel] = l
	return d
}

// Link returns the link registered for rel.
func (d *Document) Link(rel string) (Link, bool) {
	l, ok := d.links[rel]
	return l, ok
}

// Curies returns the registered namespaces.
func (d *Document) Curies() []Link {
	out := make([]Link, len(d.curies))
	copy(out, d.curies)
	return out
}

// Load merges the external representation of rec into the document's
// properties.
func (d *Document) Load(rec *resource.Record) *Document {
	ext := d.external(rec, nil)
	for _, k := range ext.Keys() {
		v, _ := ext.Get(k)
		d.properties.Set(k, v)
	}
	return d
}

func (d *Document) external(rec *resource.Record, include []string) *resource.Record {
	if d.resourceMap == nil {
		out := &resource.Record{}
		for _, k := range rec.Keys() {
			if resource.IsReserved(k) {
				continue
			}
			v, _ := rec.Get(k)
			out.Set(k, v)
		}
		return out.Clone()
	}
	return d.resourceMap.ToExternal(rec, include)
}

// Embed replaces the embedded collection under rel with the external
// representation of records, restricted to the include map, and sets the
// pagination link template for rel.
func (d *Document) Embed(rel string, records []*resource.Record) *Document {
	var include []string
	if d.includeMap != nil {
		include = []string{}
		for _, name := range d.includeMap.ToArray() {
			include = append(include, resource.Unqualified(name))
		}
	}
	items := make([]*resource.Record, 0, len(records))
	for _, rec := range records {
		item := d.external(rec, include)
		if d.cfg.ItemLink != nil {
			if href := d.cfg.ItemLink(rec); href != "" {
				self := resource.NewRecord("self", Link{Href: href})
				item = prepend(item, LinksKey, self)
			}
		}
		items = append(items, item)
	}
	if _, ok := d.embedded[rel]; !ok {
		d.embedRels = append(d.embedRels, rel)
	}
	d.embedded[rel] = items
	d.AddLink(rel, paginationHref(rel), true, "")
	return d
}

func prepend(r *resource.Record, key string, v interface{}) *resource.Record {
	out := resource.NewRecord(key, v)
	for _, k := range r.Keys() {
		val, _ := r.Get(k)
		out.Set(k, val)
	}
	return out
}

// Embedded returns the embedded collection for rel.
func (d *Document) Embedded(rel string) []*resource.Record {
	return d.embedded[rel]
}

// Set assigns a single property.
func (d *Document) Set(name string, v interface{}) *Document {
	d.properties.Set(name, v)
	return d
}

// Get returns a single property.
func (d *Document) Get(name string) (interface{}, bool) { return d.properties.Get(name) }

// Properties returns a copy of the visible properties.
func (d *Document) Properties() *resource.Record {
	out := &resource.Record{}
	for _, k := range d.properties.Keys() {
		if resource.IsReserved(k) {
			continue
		}
		v, _ := d.properties.Get(k)
		out.Set(k, v)
	}
	return out.Clone()
}

// SetMetadata assigns a metadata field.
func (d *Document) SetMetadata(field string, v interface{}) *Document {
	d.meta.Set(field, v)
	return d
}

// GetMetadata returns a metadata field, or def if it is not set.
func (d *Document) GetMetadata(field string, def interface{}) interface{} {
	if v, ok := d.meta.Get(field); ok {
		return v
	}
	return def
}

// SetPagination copies the pagination keys present in p into the metadata.
func (d *Document) SetPagination(p Pagination) *Document {
	for _, k := range paginationKeys {
		if v, ok := p[k]; ok {
			d.meta.Set(k, v)
		}
	}
	return d
}

// Materialize computes the fingerprint and the last-modified time and records
// both in the metadata. It may be called any number of times.
func (d *Document) Materialize() *Document {
	visible := d.Properties()
	b, err := json.Marshal(visible)
	if err != nil {
		b = []byte(strings.Join(visible.Keys(), ","))
	}
	sum := md5.Sum(b)
	d.etag = hex.EncodeToString(sum[:])
	d.lastModified = d.resolveLastModified(visible)
	d.meta.Set(MetaETag, d.etag)
	d.meta.Set(MetaLastModified, d.lastModified.Format(transform.ExternalFormat))
	return d
}

func (d *Document) resolveLastModified(props *resource.Record) time.Time {
	for _, name := range lastModifiedFields {
		if t, ok := lookupTime(props, name); ok {
			return t.Truncate(time.Second)
		}
	}
	return d.now
}

// lookupTime finds name at the top level or one nesting level down.
func lookupTime(props *resource.Record, name string) (time.Time, bool) {
	if v, ok := props.Get(name); ok {
		if t, ok := asTime(v); ok {
			return t, true
		}
	}
	for _, k := range props.Keys() {
		v, _ := props.Get(k)
		nested, ok := v.(*resource.Record)
		if !ok {
			continue
		}
		if nv, ok := nested.Get(name); ok {
			if t, ok := asTime(nv); ok {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

func asTime(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		return t.UTC(), !t.IsZero()
	default:
		s, err := cast.ToStringE(v)
		if err != nil {
			return time.Time{}, false
		}
		return transform.ParseTime(s)
	}
}

// ETag returns the fingerprint, materializing the document if needed.
func (d *Document) ETag() string {
	if d.etag == "" {
		d.Materialize()
	}
	return d.etag
}

// LastModified returns the last-modified time, materializing the document if
// needed.
func (d *Document) LastModified() time.Time {
	if d.etag == "" {
		d.Materialize()
	}
	return d.lastModified
}

// ContentType returns the declared content type.
func (d *Document) ContentType() string {
	return cast.ToString(d.GetMetadata(MetaContentType, ""))
}

// IsAccepted reports whether the Accept header value admits the declared
// content type.
func (d *Document) IsAccepted(accept string) bool {
	m := d.cfg.Matcher
	if m == nil {
		m = media.NewMatcher(d.ContentType())
	}
	return m.Accepts(accept)
}

// ResolveHrefs rewrites relative hrefs ("/articles") in the document's links
// and in the links of embedded resources into absolute ones under base.
func (d *Document) ResolveHrefs(base string) *Document {
	base = strings.TrimRight(base, "/")
	if base == "" {
		return d
	}
	for _, rel := range d.linkRels {
		d.links[rel] = d.links[rel].absolute(base)
	}
	for i, c := range d.curies {
		d.curies[i] = c.absolute(base)
	}
	for _, rel := range d.embedRels {
		for _, item := range d.embedded[rel] {
			v, ok := item.Get(LinksKey)
			if !ok {
				continue
			}
			links, ok := v.(*resource.Record)
			if !ok {
				continue
			}
			for _, k := range links.Keys() {
				if l, ok := mustLink(links, k); ok {
					links.Set(k, l.absolute(base))
				}
			}
		}
	}
	return d
}

func mustLink(links *resource.Record, rel string) (Link, bool) {
	v, _ := links.Get(rel)
	switch l := v.(type) {
	case Link:
		return l, true
	case *resource.Record:
		href, ok := l.Get("href")
		if !ok {
			return Link{}, false
		}
		templated, _ := l.Get("templated")
		name, _ := l.Get("name")
		return Link{Href: cast.ToString(href), Templated: cast.ToBool(templated), Name: cast.ToString(name)}, true
	}
	return Link{}, false
}

// Record returns the wire representation: _meta, _links, _embedded and then
// the visible properties in declaration order.
func (d *Document) Record() *resource.Record {
	d.Materialize()
	links := resource.NewRecord(CuriesRel, d.Curies())
	for _, rel := range d.linkRels {
		links.Set(rel, d.links[rel])
	}
	out := resource.NewRecord(MetaKey, d.meta.Clone(), LinksKey, links)
	if len(d.embedRels) > 0 {
		embedded := &resource.Record{}
		for _, rel := range d.embedRels {
			embedded.Set(rel, d.embedded[rel])
		}
		out.Set(EmbeddedKey, embedded)
	}
	props := d.Properties()
	for _, k := range props.Keys() {
		v, _ := props.Get(k)
		out.Set(k, v)
	}
	return out
}

// MarshalJSON implements json.Marshaler.
func (d *Document) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Record())
}
