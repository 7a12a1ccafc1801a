// Package fiber exposes api services over HTTP. Handlers gather the request
// headers, build documents and turn conditional dispositions into responses.
package fiber

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/eshiol/j3-rest-api/pkg/access"
	fiberaccess "github.com/eshiol/j3-rest-api/pkg/access/fiber"
	"github.com/eshiol/j3-rest-api/pkg/api"
	"github.com/eshiol/j3-rest-api/pkg/conditional"
	"github.com/eshiol/j3-rest-api/pkg/hal"
	"github.com/eshiol/j3-rest-api/pkg/metrics"
	"github.com/eshiol/j3-rest-api/pkg/request"
	"github.com/eshiol/j3-rest-api/pkg/store"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Config configures a Service.
type Config struct {
	// API is the compiled service definition.
	API *api.Service
	// Store persists the service's records.
	Store store.Store
	// Enforcer guards every route. Defaults to access.GuestRead.
	Enforcer access.Enforcer
	// Metrics records dispositions. Optional.
	Metrics *metrics.Metrics
	// Logger is the logger used by the service.
	Logger *zap.Logger
	// BaseURL is advertised in base links and used for absolute hrefs. Empty
	// uses the URL the request was addressed to.
	BaseURL string
	// StrictIfMatch rejects writes without an If-Match header with 428.
	StrictIfMatch bool
	// AbsoluteHrefs rewrites relative hrefs against BaseURL.
	AbsoluteHrefs bool
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// Service serves one api.Service.
type Service struct {
	Config
	// writes serializes the evaluate-then-save cycle of write requests and
	// lock changes.
	writes sync.Mutex
}

// New returns a Service for cfg.
func New(cfg Config) *Service {
	if cfg.Enforcer == nil {
		cfg.Enforcer = access.GuestRead{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	cfg.Logger = cfg.Logger.Named("api").With(zap.String("service", cfg.API.Name))
	return &Service{Config: cfg}
}

func (s *Service) BindTo(parent fiber.Router) {
	guard := func(action access.Action) fiber.Handler {
		return fiberaccess.StaticMiddleware(s.API.Name, action, s.Enforcer)
	}
	router := parent.Group(s.API.CollectionPath())
	router.Get("/", guard(access.Retrieve), s.list)
	router.Post("/", guard(access.Create), s.create)
	router.Get("/:id", guard(access.Retrieve), s.retrieve)
	router.Put("/:id", guard(access.Update), s.update)
	router.Patch("/:id", guard(access.Update), s.update)
	router.Delete("/:id", guard(access.Delete), s.delete)
	router.Post("/:id/checkout", guard(access.CheckOut), s.checkOut)
	router.Post("/:id/checkin", guard(access.CheckIn), s.checkIn)
}

func (s *Service) requestContext(c *fiber.Ctx) request.Context {
	base := s.BaseURL
	if base == "" {
		base = c.BaseURL()
	}
	return request.New(fiberaccess.GetSubject(c), base, s.Now())
}

func conditionalHeaders(c *fiber.Ctx) conditional.Headers {
	return conditional.Headers{
		IfMatch:           c.Get(fiber.HeaderIfMatch),
		IfNoneMatch:       c.Get(fiber.HeaderIfNoneMatch),
		IfModifiedSince:   c.Get(fiber.HeaderIfModifiedSince),
		IfUnmodifiedSince: c.Get(fiber.HeaderIfUnmodifiedSince),
	}
}

// respond evaluates the conditional headers against doc and sends the
// outcome. Documents without validators are only negotiated.
func (s *Service) respond(
	c *fiber.Ctx,
	ctx request.Context,
	doc *hal.Document,
	status int,
	validators bool,
) error {
	in := conditional.Input{
		Now:      ctx.Now,
		Accepted: doc.IsAccepted(c.Get(fiber.HeaderAccept)),
	}
	if validators {
		in.Headers = conditionalHeaders(c)
		in.ETag = doc.ETag()
		in.LastModified = doc.LastModified()
	}
	d := conditional.Evaluate(in)
	switch d.Status {
	case http.StatusUnsupportedMediaType:
		return s.problem(c, d.Status, d.Reason, "acceptable content type is "+s.API.ContentType)
	case http.StatusPreconditionFailed:
		return s.problem(c, d.Status, d.Reason, "")
	case http.StatusNotModified:
		s.setValidators(c, doc)
		s.record(c, d.Status, doc.ETag())
		return c.SendStatus(d.Status)
	}
	return s.send(c, ctx, doc, status, validators)
}

// send writes doc without evaluating conditional headers.
func (s *Service) send(
	c *fiber.Ctx,
	ctx request.Context,
	doc *hal.Document,
	status int,
	validators bool,
) error {
	doc.Materialize()
	if validators {
		s.setValidators(c, doc)
	}
	c.Set(fiber.HeaderCacheControl, "public")
	if s.AbsoluteHrefs {
		doc.ResolveHrefs(ctx.BaseURL)
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return s.internal(c, err)
	}
	s.record(c, status, doc.ETag())
	c.Status(status)
	c.Set(fiber.HeaderContentType, s.API.ContentType)
	return c.Send(b)
}

func (s *Service) setValidators(c *fiber.Ctx, doc *hal.Document) {
	c.Set(fiber.HeaderETag, conditional.Quote(doc.ETag()))
	c.Set(fiber.HeaderLastModified, doc.LastModified().UTC().Format(http.TimeFormat))
	c.Set(fiber.HeaderCacheControl, "public")
}

type problemDetails struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

const problemContentType = "application/problem+json"

func (s *Service) problem(c *fiber.Ctx, status int, title, detail string) error {
	s.record(c, status, "")
	b, err := json.Marshal(problemDetails{Type: "about:blank", Title: title, Status: status, Detail: detail})
	if err != nil {
		return err
	}
	c.Status(status)
	c.Set(fiber.HeaderContentType, problemContentType)
	return c.Send(b)
}

// storeError translates a store error into a response.
func (s *Service) storeError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, store.NotFound):
		return s.problem(c, http.StatusNotFound, "resource not found", "")
	case errors.Is(err, store.LockConflict):
		return s.problem(c, http.StatusConflict, "resource is checked out by another user", "")
	}
	return s.internal(c, err)
}

func (s *Service) internal(c *fiber.Ctx, err error) error {
	s.Logger.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
	return s.problem(c, http.StatusInternalServerError, "internal server error", "")
}

func (s *Service) record(c *fiber.Ctx, status int, etag string) {
	if s.Metrics != nil {
		s.Metrics.RecordDisposition(s.API.Name, status)
	}
	s.Logger.Debug("disposition",
		zap.String("method", c.Method()),
		zap.String("path", c.Path()),
		zap.Int("status", status),
		zap.String("etag", etag),
	)
}

// prefersRepresentation reports whether the Prefer header asks for the
// resulting representation.
func prefersRepresentation(c *fiber.Ctx) bool {
	for _, pref := range strings.FieldsFunc(c.Get("Prefer"), func(r rune) bool { return r == ',' || r == ';' }) {
		if strings.Trim(pref, ` "`) == "return=representation" {
			return true
		}
	}
	return false
}
