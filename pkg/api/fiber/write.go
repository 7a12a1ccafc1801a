package fiber

import (
	"context"
	"net/http"

	"github.com/eshiol/j3-rest-api/pkg/conditional"
	"github.com/eshiol/j3-rest-api/pkg/hal"
	"github.com/eshiol/j3-rest-api/pkg/request"
	"github.com/eshiol/j3-rest-api/pkg/resource"
	"github.com/eshiol/j3-rest-api/pkg/store"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/spf13/cast"
)

const createdByField = "created_by"

// Writes are checked against the full representation, so the ETag of a
// response narrowed with ?fields never matches.
const fullETagDetail = "If-Match must carry the ETag of the full representation, retrieved without the fields parameter"

// Storage fields clients may not write.
var protectedFields = []string{
	store.FieldID,
	store.FieldCreated,
	store.FieldModified,
	store.FieldCheckedOut,
	store.FieldCheckedOutTime,
	createdByField,
}

// parseBody decodes a HAL document from the request body. If requireType is
// true the document must declare the service content type in its metadata;
// otherwise a declared type must still match. It returns false once a response
// has been written.
func (s *Service) parseBody(c *fiber.Ctx, requireType bool) (*resource.Record, bool, error) {
	body := &resource.Record{}
	if err := body.UnmarshalJSON(c.Body()); err != nil {
		return nil, false, s.problem(c, http.StatusBadRequest, "malformed request body", err.Error())
	}
	var declared string
	if meta, ok := body.Get(hal.MetaKey); ok {
		if m, ok := meta.(*resource.Record); ok {
			v, _ := m.Get(hal.MetaContentType)
			declared = cast.ToString(v)
		}
	}
	if declared != s.API.ContentType && (requireType || declared != "") {
		return nil, false, s.problem(
			c,
			http.StatusUnsupportedMediaType,
			"unsupported media type",
			"_meta.contentType must be "+s.API.ContentType,
		)
	}
	return body, true, nil
}

// internalRecord converts a request body into the storage fields to save.
func (s *Service) internalRecord(body *resource.Record) *resource.Record {
	rec := s.API.Resource.ToInternal(body)
	for _, f := range protectedFields {
		rec.Delete(f)
	}
	return rec
}

func (s *Service) create(c *fiber.Ctx) error {
	ctx := s.requestContext(c)
	body, ok, err := s.parseBody(c, true)
	if !ok {
		return err
	}
	rec := s.internalRecord(body)
	rec.Set(createdByField, ctx.Actor.String())
	id, err := s.Store.Save(c.UserContext(), s.API.Table, rec)
	if err != nil {
		return s.storeError(c, err)
	}
	c.Location(s.API.ItemPath(id))
	if !prefersRepresentation(c) {
		s.record(c, http.StatusCreated, "")
		return c.SendStatus(http.StatusCreated)
	}
	return s.representation(c, ctx, id, http.StatusCreated)
}

// representation sends the stored record without evaluating conditional
// headers.
func (s *Service) representation(c *fiber.Ctx, ctx request.Context, id int64, status int) error {
	rec, err := s.Store.FetchOne(c.UserContext(), s.API.Table, id)
	if err != nil {
		return s.storeError(c, err)
	}
	doc := s.API.Document(ctx, s.API.ItemPath(id), "").Load(rec)
	return s.send(c, ctx, doc, status, true)
}

// precondition evaluates If-Match and the record lock for a write on id. It
// returns false once a response has been written.
func (s *Service) precondition(c *fiber.Ctx, ctx request.Context, id int64) (bool, error) {
	rec, err := s.fetch(c, ctx, id)
	if err != nil {
		return false, s.storeError(c, err)
	}
	lock, err := s.Store.LockState(c.UserContext(), s.API.Table, id)
	if err != nil {
		return false, s.storeError(c, err)
	}
	current := s.API.Document(ctx, "", "").Load(rec)
	d := conditional.EvaluateWrite(conditional.WriteInput{
		IfMatch:       c.Get(fiber.HeaderIfMatch),
		ETag:          current.ETag(),
		LockedByOther: lock.LockedByOther(ctx.Actor),
		Strict:        s.StrictIfMatch,
	})
	if !d.Serve() {
		var detail string
		if d.Status == http.StatusPreconditionFailed {
			detail = fullETagDetail
		}
		return false, s.problem(c, d.Status, d.Reason, detail)
	}
	return true, nil
}

func (s *Service) update(c *fiber.Ctx) error {
	ctx := s.requestContext(c)
	id, ok := parseID(c)
	if !ok {
		return s.storeError(c, store.NotFound)
	}
	s.writes.Lock()
	defer s.writes.Unlock()
	if ok, err := s.precondition(c, ctx, id); !ok {
		return err
	}
	body, ok, err := s.parseBody(c, false)
	if !ok {
		return err
	}
	rec := s.internalRecord(body)
	rec.Set(store.FieldID, id)
	if _, err := s.Store.Save(c.UserContext(), s.API.Table, rec); err != nil {
		return s.storeError(c, err)
	}
	return s.representation(c, ctx, id, http.StatusOK)
}

func (s *Service) delete(c *fiber.Ctx) error {
	ctx := s.requestContext(c)
	id, ok := parseID(c)
	if !ok {
		return s.storeError(c, store.NotFound)
	}
	s.writes.Lock()
	defer s.writes.Unlock()
	if ok, err := s.precondition(c, ctx, id); !ok {
		return err
	}
	if err := s.Store.Delete(c.UserContext(), s.API.Table, id); err != nil {
		return s.storeError(c, err)
	}
	s.record(c, http.StatusNoContent, "")
	return c.SendStatus(http.StatusNoContent)
}

func (s *Service) checkOut(c *fiber.Ctx) error {
	return s.lock(c, s.Store.CheckOut)
}

func (s *Service) checkIn(c *fiber.Ctx) error {
	return s.lock(c, s.Store.CheckIn)
}

type lockFunc func(ctx context.Context, table string, id int64, actor uuid.UUID) error

func (s *Service) lock(c *fiber.Ctx, apply lockFunc) error {
	ctx := s.requestContext(c)
	id, ok := parseID(c)
	if !ok {
		return s.storeError(c, store.NotFound)
	}
	s.writes.Lock()
	defer s.writes.Unlock()
	if _, err := s.fetch(c, ctx, id); err != nil {
		return s.storeError(c, err)
	}
	if err := apply(c.UserContext(), s.API.Table, id, ctx.Actor); err != nil {
		return s.storeError(c, err)
	}
	return s.representation(c, ctx, id, http.StatusOK)
}
