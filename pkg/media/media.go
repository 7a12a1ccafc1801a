// Package media negotiates Accept headers against structured media types such
// as "application/vnd.joomla.item.v1; schema=articles.v1+hal+json".
package media

import (
	"regexp"
	"sort"
	"strings"

	"github.com/munnerz/goautoneg"
)

// Any is the universal wildcard media range.
const Any = "*/*"

// HALSuffix is appended to a declared content type before negotiation.
const HALSuffix = "+hal+json"

const (
	suffixSeparator    = "+"
	paramSeparator     = ";"
	componentSeparator = "."
)

// Expand splits a comma separated media type list into candidates. An entry
// whose subtype carries "+" suffixes yields one "type/<component>" candidate per
// "+"-delimited component of the subtype. Duplicates are removed keeping the
// first occurrence. If asPattern is true, every candidate is rewritten into a
// regular expression in which trailing "."-delimited components and trailing
// ";"-delimited parameters are optional.
func Expand(list string, asPattern bool) []string {
	var (
		out  []string
		seen = make(map[string]bool)
	)
	for _, entry := range strings.Split(list, ",") {
		entry = strings.Trim(entry, ` "`)
		if entry == "" {
			continue
		}
		for _, c := range expandEntry(entry) {
			if seen[c] {
				continue
			}
			seen[c] = true
			out = append(out, c)
		}
	}
	if asPattern {
		for i, c := range out {
			out[i] = pattern(c)
		}
	}
	return out
}

func expandEntry(entry string) []string {
	slash := strings.Index(entry, "/")
	if slash < 0 || !strings.Contains(entry[slash:], suffixSeparator) {
		return []string{entry}
	}
	typ, sub := entry[:slash], entry[slash+1:]
	var out []string
	for _, component := range strings.Split(sub, suffixSeparator) {
		out = append(out, typ+"/"+strings.TrimSpace(component))
	}
	return out
}

// pattern nests optional groups from the innermost component outwards:
// "a/b.c; d=e.f" becomes `a/b(?:\.c)?(?:; d=e(?:\.f)?)?`.
func pattern(candidate string) string {
	params := strings.Split(candidate, paramSeparator)
	for i, p := range params {
		components := strings.Split(strings.TrimSpace(p), componentSeparator)
		for j, c := range components {
			components[j] = regexp.QuoteMeta(strings.TrimSpace(c))
		}
		params[i] = nestOptional(components, regexp.QuoteMeta(componentSeparator))
	}
	return nestOptional(params, paramSeparator+" ")
}

func nestOptional(segments []string, sep string) string {
	acc := segments[len(segments)-1]
	for i := len(segments) - 2; i >= 0; i-- {
		acc = segments[i] + "(?:" + sep + acc + ")?"
	}
	return acc
}

// Matcher decides whether a client accepts a declared content type. A Matcher
// is immutable and safe for concurrent use.
type Matcher struct {
	contentType string
	patterns    []*regexp.Regexp
}

// NewMatcher compiles the patterns for contentType with the HAL suffix
// appended.
func NewMatcher(contentType string) *Matcher {
	m := &Matcher{contentType: contentType}
	for _, p := range Expand(contentType+HALSuffix, true) {
		re, err := regexp.Compile(p)
		if err != nil {
			continue
		}
		m.patterns = append(m.patterns, re)
	}
	return m
}

// ContentType returns the declared content type.
func (m *Matcher) ContentType() string { return m.contentType }

// Accepts returns true if any media range in the Accept header value matches
// the declared content type. An empty header accepts everything.
func (m *Matcher) Accepts(accept string) bool {
	candidates := Expand(normalize(accept), false)
	for _, c := range candidates {
		if c == Any {
			return true
		}
	}
	for _, c := range candidates {
		for _, re := range m.patterns {
			if re.FindString(c) == c {
				return true
			}
		}
	}
	return false
}

// IsAccepted is shorthand for NewMatcher(contentType).Accepts(accept).
func IsAccepted(contentType, accept string) bool {
	return NewMatcher(contentType).Accepts(accept)
}

// normalize rewrites an Accept header into a plain media type list: clauses
// with q=0 are dropped, quality parameters are removed and the remaining
// parameters are emitted in lexical order.
func normalize(accept string) string {
	if strings.TrimSpace(accept) == "" {
		return Any
	}
	var clauses []string
	for _, a := range goautoneg.ParseAccept(accept) {
		if a.Q <= 0 {
			continue
		}
		clause := strings.Trim(a.Type, `"`) + "/" + strings.Trim(a.SubType, `"`)
		keys := make([]string, 0, len(a.Params))
		for k := range a.Params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			clause += paramSeparator + " " + k + "=" + strings.Trim(a.Params[k], `"`)
		}
		clauses = append(clauses, clause)
	}
	return strings.Join(clauses, ",")
}
