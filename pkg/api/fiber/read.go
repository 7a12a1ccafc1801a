package fiber

import (
	"net/http"

	"github.com/eshiol/j3-rest-api/pkg/hal"
	"github.com/eshiol/j3-rest-api/pkg/request"
	"github.com/eshiol/j3-rest-api/pkg/resource"
	"github.com/eshiol/j3-rest-api/pkg/store"
	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cast"
)

// Storage fields consulted by the read handlers.
const (
	accessField   = "access"
	categoryField = "catid"
	// publicAccess is the access level guests may see.
	publicAccess = 1
)

func (s *Service) list(c *fiber.Ctx) error {
	ctx := s.requestContext(c)
	page := store.Pagination{
		Offset:  c.QueryInt("offset", 0),
		Page:    c.QueryInt("page", store.DefaultPage),
		PerPage: c.QueryInt("perPage", store.DefaultPerPage),
		Sort:    s.sortField(c.Query("sort")),
	}
	var filter store.Filter
	if catid := c.Query("catid"); catid != "" {
		filter = filter.Where(categoryField, catid)
	}
	if ctx.Guest() {
		filter = filter.Where(accessField, publicAccess)
	}
	recs, info, err := s.Store.FetchMany(c.UserContext(), s.API.Table, filter, page)
	if err != nil {
		return s.storeError(c, err)
	}
	doc := s.API.Document(ctx, c.OriginalURL(), c.Query("fields"))
	doc.Embed(s.API.PrimaryRel, recs)
	doc.SetPagination(hal.Pagination{
		hal.Page:       info.Page,
		hal.PerPage:    info.PerPage,
		hal.Offset:     info.Offset,
		hal.TotalItems: info.TotalItems,
		hal.TotalPages: info.TotalPages,
	})
	return s.respond(c, ctx, doc, http.StatusOK, false)
}

// sortField resolves an external field name to its storage field. A leading
// "-" is kept, unknown names are used as they are.
func (s *Service) sortField(sort string) string {
	prefix, name := "", sort
	if len(sort) > 0 && sort[0] == '-' {
		prefix, name = "-", sort[1:]
	}
	for _, f := range s.API.Resource.ToArray() {
		if f.External == name || resource.Unqualified(f.External) == name {
			return prefix + f.Internal
		}
	}
	return sort
}

func (s *Service) retrieve(c *fiber.Ctx) error {
	ctx := s.requestContext(c)
	id, ok := parseID(c)
	if !ok {
		return s.storeError(c, store.NotFound)
	}
	rec, err := s.fetch(c, ctx, id)
	if err != nil {
		return s.storeError(c, err)
	}
	doc := s.API.Document(ctx, s.API.ItemPath(id), c.Query("fields")).Load(rec)
	return s.respond(c, ctx, doc, http.StatusOK, true)
}

// fetch returns the record with the given id if ctx may see it.
func (s *Service) fetch(c *fiber.Ctx, ctx request.Context, id int64) (*resource.Record, error) {
	rec, err := s.Store.FetchOne(c.UserContext(), s.API.Table, id)
	if err != nil {
		return nil, err
	}
	if ctx.Guest() {
		if level, _ := rec.Get(accessField); cast.ToInt(level) != publicAccess {
			return nil, store.NotFound
		}
	}
	return rec, nil
}

func parseID(c *fiber.Ctx) (int64, bool) {
	id, err := c.ParamsInt("id")
	return int64(id), err == nil && id > 0
}
