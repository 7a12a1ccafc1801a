package hal

import "strings"

// CuriesRel registers link relation namespaces. It is always serialized as an
// array, even with a single entry.
const CuriesRel = "curies"

// PaginationTemplate is the RFC 6570 query template appended to collection
// links by Embed.
const PaginationTemplate = "{?fields,offset,page,perPage,sort}"

// Link is a single hypermedia link.
type Link struct {
	Href      string `json:"href"`
	Templated bool   `json:"templated"`
	Name      string `json:"name,omitempty"`
}

func (l Link) absolute(base string) Link {
	if strings.HasPrefix(l.Href, "/") && !strings.HasPrefix(l.Href, "//") {
		l.Href = base + l.Href
	}
	return l
}

// paginationHref builds the collection template for rel. A curie prefix
// ("joomla:articles") is not part of the path.
func paginationHref(rel string) string {
	if i := strings.Index(rel, ":"); i >= 0 {
		rel = rel[i+1:]
	}
	return "/" + rel + PaginationTemplate
}
