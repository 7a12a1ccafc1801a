// Package conditional decides the outcome of conditional requests from a
// representation's fingerprint and last-modified time.
package conditional

import (
	"net/http"
	"strings"
	"time"

	"github.com/eshiol/j3-rest-api/pkg/transform"
)

// Wildcard matches any current representation in If-Match and If-None-Match.
const Wildcard = "*"

// Headers holds the raw conditional request header values. Empty means absent.
type Headers struct {
	IfMatch           string
	IfNoneMatch       string
	IfModifiedSince   string
	IfUnmodifiedSince string
}

// Input is everything a read evaluation depends on.
type Input struct {
	Headers
	// ETag is the fingerprint of the current representation, unquoted.
	ETag string
	// LastModified is the last-modified time of the current representation.
	LastModified time.Time
	// Now is the time the request was received.
	Now time.Time
	// Accepted is the outcome of Accept negotiation.
	Accepted bool
}

// Disposition is the decided outcome of an evaluation.
type Disposition struct {
	Status int
	Reason string
}

// Serve returns true if the full representation should be sent or the write
// should proceed.
func (d Disposition) Serve() bool { return d.Status == http.StatusOK }

var (
	serve              = Disposition{Status: http.StatusOK}
	notModified        = Disposition{Status: http.StatusNotModified, Reason: "not modified"}
	unsupportedMedia   = Disposition{Status: http.StatusUnsupportedMediaType, Reason: "unsupported media type"}
	ifMatchFailed      = Disposition{Status: http.StatusPreconditionFailed, Reason: "If-Match precondition failed"}
	unmodifiedFailed   = Disposition{Status: http.StatusPreconditionFailed, Reason: "If-Unmodified-Since precondition failed"}
	preconditionNeeded = Disposition{Status: http.StatusPreconditionRequired, Reason: "If-Match header required"}
	checkedOut         = Disposition{Status: http.StatusConflict, Reason: "resource is checked out by another user"}
)

// Evaluate decides the disposition of a read. The first matching rule wins:
// failed negotiation, If-Match, If-Unmodified-Since, If-None-Match and
// If-Modified-Since.
func Evaluate(in Input) Disposition {
	if !in.Accepted {
		return unsupportedMedia
	}
	if in.IfMatch != "" && strings.TrimSpace(in.IfMatch) != Wildcard && !Matches(in.IfMatch, in.ETag) {
		return ifMatchFailed
	}
	if t, ok := parseDate(in.IfUnmodifiedSince); ok && in.LastModified.After(t) {
		return unmodifiedFailed
	}
	if in.IfNoneMatch != "" {
		if strings.TrimSpace(in.IfNoneMatch) == Wildcard || Matches(in.IfNoneMatch, in.ETag) {
			return notModified
		}
	}
	if t, ok := parseDate(in.IfModifiedSince); ok {
		if !in.LastModified.After(in.Now) && !in.LastModified.After(t) {
			return notModified
		}
	}
	return serve
}

// WriteInput is everything a write evaluation depends on.
type WriteInput struct {
	// IfMatch is the raw If-Match header value.
	IfMatch string
	// ETag is the fingerprint of the stored representation.
	ETag string
	// LockedByOther is true if the record is checked out by another actor.
	LockedByOther bool
	// Strict requires an If-Match header. Otherwise a missing header is
	// treated as "*".
	Strict bool
}

// EvaluateWrite decides whether an update or delete may proceed.
func EvaluateWrite(in WriteInput) Disposition {
	switch v := strings.TrimSpace(in.IfMatch); {
	case v == "" && in.Strict:
		return preconditionNeeded
	case v != "" && v != Wildcard && !Matches(v, in.ETag):
		return ifMatchFailed
	}
	if in.LockedByOther {
		return checkedOut
	}
	return serve
}

// Matches reports whether etag is among the entity tags of a comma separated
// header value. Quotes, whitespace and weak validator prefixes are ignored.
func Matches(header, etag string) bool {
	for _, tag := range strings.Split(header, ",") {
		tag = strings.TrimSpace(tag)
		tag = strings.TrimPrefix(tag, "W/")
		if strings.Trim(tag, ` "`) == etag {
			return true
		}
	}
	return false
}

// Quote formats etag for the ETag response header.
func Quote(etag string) string { return `"` + etag + `"` }

func parseDate(v string) (time.Time, bool) {
	if strings.TrimSpace(v) == "" {
		return time.Time{}, false
	}
	return transform.ParseTime(v)
}
