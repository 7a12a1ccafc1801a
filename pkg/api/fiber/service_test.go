package fiber_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	fiberaccess "github.com/eshiol/j3-rest-api/pkg/access/fiber"
	"github.com/eshiol/j3-rest-api/pkg/api"
	fiberapi "github.com/eshiol/j3-rest-api/pkg/api/fiber"
	"github.com/eshiol/j3-rest-api/pkg/content"
	"github.com/eshiol/j3-rest-api/pkg/metrics"
	"github.com/eshiol/j3-rest-api/pkg/resource"
	"github.com/eshiol/j3-rest-api/pkg/storage"
	"github.com/eshiol/j3-rest-api/pkg/store"
	"github.com/eshiol/j3-rest-api/pkg/transform"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

const articleType = "application/vnd.joomla.item.v1; schema=articles.v1"

var _ = Describe("Service", func() {
	var (
		ctx   = context.Background()
		s     storage.Storage
		kv    *store.KV
		m     *metrics.Metrics
		app   *fiber.App
		actor uuid.UUID
		clock = time.Date(2014, 1, 2, 3, 4, 5, 0, time.UTC)
		cfg   fiberapi.Config
	)

	build := func() {
		app = fiber.New()
		app.Use(func(c *fiber.Ctx) error {
			fiberaccess.SetSubject(c, actor)
			return c.Next()
		})
		fiberapi.New(cfg).BindTo(app)
	}

	BeforeEach(func() {
		var err error
		s, err = storage.Open(storage.Config{Dirname: "api-fiber", MemBacked: true})
		Expect(err).ToNot(HaveOccurred())
		kv = store.Open(store.Config{DB: s.KV, Now: func() time.Time { return clock }})
		svc, err := api.Load(content.Articles, content.Schemas, transform.NewRegistry(), nil)
		Expect(err).ToNot(HaveOccurred())
		m = metrics.New()
		actor = uuid.Nil
		cfg = fiberapi.Config{
			API:     svc,
			Store:   kv,
			Metrics: m,
			BaseURL: "http://example.com/api",
			Now:     func() time.Time { return clock.Add(time.Hour) },
		}
		build()
	})
	AfterEach(func() { Expect(s.Close()).To(Succeed()) })

	seed := func(title string, access int) int64 {
		id, err := kv.Save(ctx, "content", resource.NewRecord(
			"title", title,
			"introtext", "Body",
			"state", 1,
			"catid", 9,
			"access", access,
		))
		Expect(err).ToNot(HaveOccurred())
		return id
	}

	do := func(method, path, body string, headers ...string) *http.Response {
		var r io.Reader
		if body != "" {
			r = strings.NewReader(body)
		}
		req := httptest.NewRequest(method, path, r)
		for i := 0; i+1 < len(headers); i += 2 {
			req.Header.Set(headers[i], headers[i+1])
		}
		res, err := app.Test(req, -1)
		Expect(err).ToNot(HaveOccurred())
		return res
	}

	decode := func(res *http.Response) map[string]interface{} {
		var out map[string]interface{}
		Expect(json.NewDecoder(res.Body).Decode(&out)).To(Succeed())
		return out
	}

	Describe("Retrieve", func() {
		It("Should serve the representation with validators", func() {
			id := seed("Hello", 1)
			res := do("GET", "/articles/1", "")
			Expect(id).To(Equal(int64(1)))
			Expect(res.StatusCode).To(Equal(fiber.StatusOK))
			Expect(res.Header.Get("Content-Type")).To(Equal(articleType))
			Expect(res.Header.Get("Cache-Control")).To(Equal("public"))
			Expect(res.Header.Get("ETag")).To(MatchRegexp(`^"[0-9a-f]{32}"$`))
			Expect(res.Header.Get("Last-Modified")).To(Equal("Thu, 02 Jan 2014 03:04:05 GMT"))
			doc := decode(res)
			Expect(doc["title"]).To(Equal("Hello"))
			Expect(doc["state"]).To(Equal("published"))
			links := doc["_links"].(map[string]interface{})
			Expect(links["self"].(map[string]interface{})["href"]).To(Equal("/articles/1"))
		})
		It("Should return 304 for a matching If-None-Match", func() {
			seed("Hello", 1)
			etag := do("GET", "/articles/1", "").Header.Get("ETag")
			res := do("GET", "/articles/1", "", "If-None-Match", etag)
			Expect(res.StatusCode).To(Equal(fiber.StatusNotModified))
			Expect(res.Header.Get("ETag")).To(Equal(etag))
			Expect(testutil.ToFloat64(m.DispositionsTotal.WithLabelValues("articles", "304"))).To(Equal(1.0))
		})
		It("Should return 304 when unmodified since the given date", func() {
			seed("Hello", 1)
			res := do("GET", "/articles/1", "", "If-Modified-Since", "Thu, 02 Jan 2014 03:04:05 GMT")
			Expect(res.StatusCode).To(Equal(fiber.StatusNotModified))
		})
		It("Should return 412 for a failed If-Match", func() {
			seed("Hello", 1)
			res := do("GET", "/articles/1", "", "If-Match", `"other"`)
			Expect(res.StatusCode).To(Equal(fiber.StatusPreconditionFailed))
		})
		It("Should return 415 with a problem body for unacceptable media types", func() {
			seed("Hello", 1)
			res := do("GET", "/articles/1", "", "Accept", "text/html")
			Expect(res.StatusCode).To(Equal(fiber.StatusUnsupportedMediaType))
			Expect(res.Header.Get("Content-Type")).To(Equal("application/problem+json"))
			Expect(decode(res)["detail"]).To(ContainSubstring(articleType))
		})
		It("Should accept the hal variant of the content type", func() {
			seed("Hello", 1)
			res := do("GET", "/articles/1", "", "Accept", "application/vnd.joomla.item.v1+hal+json")
			Expect(res.StatusCode).To(Equal(fiber.StatusOK))
		})
		It("Should hide restricted records from guests", func() {
			seed("Private", 2)
			Expect(do("GET", "/articles/1", "").StatusCode).To(Equal(fiber.StatusNotFound))
			actor = uuid.New()
			build()
			Expect(do("GET", "/articles/1", "").StatusCode).To(Equal(fiber.StatusOK))
		})
		It("Should return 404 for unknown and malformed ids", func() {
			Expect(do("GET", "/articles/7", "").StatusCode).To(Equal(fiber.StatusNotFound))
			Expect(do("GET", "/articles/abc", "").StatusCode).To(Equal(fiber.StatusNotFound))
		})
		It("Should honour the fields parameter", func() {
			seed("Hello", 1)
			doc := decode(do("GET", "/articles/1?fields=title", ""))
			Expect(doc).To(HaveKey("title"))
			Expect(doc).ToNot(HaveKey("body"))
		})
		It("Should rewrite hrefs when absolute hrefs are enabled", func() {
			seed("Hello", 1)
			cfg.AbsoluteHrefs = true
			build()
			doc := decode(do("GET", "/articles/1", ""))
			links := doc["_links"].(map[string]interface{})
			Expect(links["self"].(map[string]interface{})["href"]).To(Equal("http://example.com/api/articles/1"))
		})
	})

	Describe("List", func() {
		It("Should embed the visible records and paginate", func() {
			seed("a", 1)
			seed("b", 2)
			seed("c", 1)
			doc := decode(do("GET", "/articles", ""))
			meta := doc["_meta"].(map[string]interface{})
			Expect(meta["totalItems"]).To(BeEquivalentTo(2))
			Expect(meta["page"]).To(BeEquivalentTo(1))
			Expect(meta["perPage"]).To(BeEquivalentTo(15))
			items := doc["_embedded"].(map[string]interface{})["joomla:articles"].([]interface{})
			Expect(items).To(HaveLen(2))
			first := items[0].(map[string]interface{})
			Expect(first["title"]).To(Equal("a"))
			Expect(first).ToNot(HaveKey("body"))
			links := doc["_links"].(map[string]interface{})
			Expect(links["joomla:articles"].(map[string]interface{})["href"]).
				To(Equal("/articles{?fields,offset,page,perPage,sort}"))
		})
		It("Should select pages and sort by external names", func() {
			seed("a", 1)
			seed("b", 1)
			seed("c", 1)
			doc := decode(do("GET", "/articles?perPage=1&page=2&sort=-title", ""))
			items := doc["_embedded"].(map[string]interface{})["joomla:articles"].([]interface{})
			Expect(items).To(HaveLen(1))
			Expect(items[0].(map[string]interface{})["title"]).To(Equal("b"))
			Expect(doc["_meta"].(map[string]interface{})["totalPages"]).To(BeEquivalentTo(3))
		})
		It("Should stay in bounds for huge page parameters", func() {
			seed("a", 1)
			for _, q := range []string{
				"page=2&perPage=9223372036854775807",
				"page=9223372036854775807",
				"page=9223372036854775807&perPage=9223372036854775807&offset=9223372036854775807",
			} {
				res := do("GET", "/articles?"+q, "")
				Expect(res.StatusCode).To(Equal(fiber.StatusOK), q)
				meta := decode(res)["_meta"].(map[string]interface{})
				Expect(meta["perPage"]).To(BeNumerically("<=", store.MaxPerPage), q)
				Expect(meta["totalPages"]).To(BeEquivalentTo(1), q)
			}
		})
		It("Should filter by category", func() {
			seed("a", 1)
			doc := decode(do("GET", "/articles?catid=3", ""))
			Expect(doc["_meta"].(map[string]interface{})["totalItems"]).To(BeEquivalentTo(0))
		})
		It("Should not advertise validators", func() {
			seed("a", 1)
			res := do("GET", "/articles", "")
			Expect(res.StatusCode).To(Equal(fiber.StatusOK))
			Expect(res.Header.Get("ETag")).To(BeEmpty())
			Expect(res.Header.Get("Cache-Control")).To(Equal("public"))
		})
	})

	Describe("Create", func() {
		body := `{"_meta":{"contentType":"` + articleType + `"},"title":"New","body":"Text","state":"published","access":1}`

		It("Should require authentication", func() {
			Expect(do("POST", "/articles", body).StatusCode).To(Equal(fiber.StatusUnauthorized))
		})
		It("Should reject documents of another content type", func() {
			actor = uuid.New()
			build()
			res := do("POST", "/articles", `{"_meta":{"contentType":"text/plain"},"title":"x"}`)
			Expect(res.StatusCode).To(Equal(fiber.StatusUnsupportedMediaType))
		})
		It("Should reject malformed bodies", func() {
			actor = uuid.New()
			build()
			Expect(do("POST", "/articles", `{"title":`).StatusCode).To(Equal(fiber.StatusBadRequest))
		})
		It("Should store the record and point to it", func() {
			actor = uuid.New()
			build()
			res := do("POST", "/articles", body)
			Expect(res.StatusCode).To(Equal(fiber.StatusCreated))
			Expect(res.Header.Get("Location")).To(Equal("/articles/1"))
			rec, err := kv.FetchOne(ctx, "content", 1)
			Expect(err).ToNot(HaveOccurred())
			state, _ := rec.Get("state")
			Expect(state).To(BeEquivalentTo(1))
			by, _ := rec.Get("created_by")
			Expect(by).To(Equal(actor.String()))
		})
		It("Should return the representation when preferred", func() {
			actor = uuid.New()
			build()
			res := do("POST", "/articles", body, "Prefer", "return=representation")
			Expect(res.StatusCode).To(Equal(fiber.StatusCreated))
			Expect(res.Header.Get("ETag")).ToNot(BeEmpty())
			Expect(decode(res)["title"]).To(Equal("New"))
		})
	})

	Describe("Update", func() {
		var etag string
		BeforeEach(func() {
			seed("Hello", 1)
			actor = uuid.New()
			build()
			etag = do("GET", "/articles/1", "").Header.Get("ETag")
		})
		It("Should apply the change when If-Match matches", func() {
			res := do("PUT", "/articles/1", `{"title":"Changed"}`, "If-Match", etag)
			Expect(res.StatusCode).To(Equal(fiber.StatusOK))
			Expect(decode(res)["title"]).To(Equal("Changed"))
			Expect(res.Header.Get("ETag")).ToNot(Equal(etag))
		})
		It("Should reject a stale If-Match", func() {
			res := do("PATCH", "/articles/1", `{"title":"Changed"}`, "If-Match", `"stale"`)
			Expect(res.StatusCode).To(Equal(fiber.StatusPreconditionFailed))
			rec, _ := kv.FetchOne(ctx, "content", 1)
			title, _ := rec.Get("title")
			Expect(title).To(Equal("Hello"))
		})
		It("Should explain that narrowed ETags do not match", func() {
			narrowed := do("GET", "/articles/1?fields=title", "").Header.Get("ETag")
			Expect(narrowed).ToNot(Equal(etag))
			res := do("PUT", "/articles/1", `{"title":"Changed"}`, "If-Match", narrowed)
			Expect(res.StatusCode).To(Equal(fiber.StatusPreconditionFailed))
			Expect(decode(res)["detail"]).To(ContainSubstring("full representation"))
		})
		It("Should treat a missing If-Match as a wildcard", func() {
			Expect(do("PUT", "/articles/1", `{"title":"Changed"}`).StatusCode).To(Equal(fiber.StatusOK))
		})
		It("Should require If-Match in strict mode", func() {
			cfg.StrictIfMatch = true
			build()
			Expect(do("PUT", "/articles/1", `{"title":"Changed"}`).StatusCode).
				To(Equal(fiber.StatusPreconditionRequired))
		})
		It("Should refuse records checked out by another user", func() {
			Expect(kv.CheckOut(ctx, "content", 1, uuid.New())).To(Succeed())
			res := do("PUT", "/articles/1", `{"title":"Changed"}`, "If-Match", etag)
			Expect(res.StatusCode).To(Equal(fiber.StatusConflict))
		})
		It("Should ignore attempts to write lock fields", func() {
			other := uuid.New().String()
			res := do("PUT", "/articles/1", `{"checkedOut":{"by":"`+other+`"}}`)
			Expect(res.StatusCode).To(Equal(fiber.StatusOK))
			lock, err := kv.LockState(ctx, "content", 1)
			Expect(err).ToNot(HaveOccurred())
			Expect(lock.Locked()).To(BeFalse())
		})
		It("Should return 404 for unknown records", func() {
			Expect(do("PUT", "/articles/9", `{"title":"x"}`).StatusCode).To(Equal(fiber.StatusNotFound))
		})
	})

	Describe("Delete", func() {
		BeforeEach(func() {
			seed("Hello", 1)
			actor = uuid.New()
			build()
		})
		It("Should remove the record", func() {
			Expect(do("DELETE", "/articles/1", "").StatusCode).To(Equal(fiber.StatusNoContent))
			Expect(do("GET", "/articles/1", "").StatusCode).To(Equal(fiber.StatusNotFound))
		})
		It("Should reject a stale If-Match", func() {
			res := do("DELETE", "/articles/1", "", "If-Match", `"stale"`)
			Expect(res.StatusCode).To(Equal(fiber.StatusPreconditionFailed))
		})
		It("Should refuse records checked out by another user", func() {
			Expect(kv.CheckOut(ctx, "content", 1, uuid.New())).To(Succeed())
			Expect(do("DELETE", "/articles/1", "").StatusCode).To(Equal(fiber.StatusConflict))
		})
		It("Should reject guests", func() {
			actor = uuid.Nil
			build()
			Expect(do("DELETE", "/articles/1", "").StatusCode).To(Equal(fiber.StatusUnauthorized))
		})
	})

	Describe("Check out and check in", func() {
		BeforeEach(func() {
			seed("Hello", 1)
			actor = uuid.New()
			build()
		})
		It("Should lock the record for the actor", func() {
			res := do("POST", "/articles/1/checkout", "")
			Expect(res.StatusCode).To(Equal(fiber.StatusOK))
			lock, err := kv.LockState(ctx, "content", 1)
			Expect(err).ToNot(HaveOccurred())
			Expect(lock.CheckedOut).To(Equal(actor))
			Expect(do("PUT", "/articles/1", `{"title":"Mine"}`).StatusCode).To(Equal(fiber.StatusOK))
		})
		It("Should keep other users out until checked in", func() {
			Expect(do("POST", "/articles/1/checkout", "").StatusCode).To(Equal(fiber.StatusOK))
			owner := actor
			actor = uuid.New()
			build()
			Expect(do("POST", "/articles/1/checkin", "").StatusCode).To(Equal(fiber.StatusConflict))
			Expect(do("POST", "/articles/1/checkout", "").StatusCode).To(Equal(fiber.StatusConflict))
			actor = owner
			build()
			Expect(do("POST", "/articles/1/checkin", "").StatusCode).To(Equal(fiber.StatusOK))
			lock, _ := kv.LockState(ctx, "content", 1)
			Expect(lock.Locked()).To(BeFalse())
		})
		It("Should hold check outs until a pending update is saved", func() {
			gated := &gatedStore{Store: kv, gate: make(chan struct{}), entered: make(chan struct{})}
			cfg.Store = gated
			app = fiber.New()
			app.Use(func(c *fiber.Ctx) error {
				fiberaccess.SetSubject(c, uuid.MustParse(c.Get("X-Actor")))
				return c.Next()
			})
			fiberapi.New(cfg).BindTo(app)
			alice, bob := uuid.New(), uuid.New()

			updated := make(chan int, 1)
			go func() {
				defer GinkgoRecover()
				updated <- do("PUT", "/articles/1", `{"title":"Changed"}`, "X-Actor", alice.String()).StatusCode
			}()
			Eventually(gated.entered).Should(BeClosed())
			checkedOut := make(chan int, 1)
			go func() {
				defer GinkgoRecover()
				checkedOut <- do("POST", "/articles/1/checkout", "", "X-Actor", bob.String()).StatusCode
			}()
			Consistently(gated.events, "200ms").ShouldNot(ContainElement("checkout"))
			close(gated.gate)

			Eventually(updated).Should(Receive(Equal(fiber.StatusOK)))
			Eventually(checkedOut).Should(Receive(Equal(fiber.StatusOK)))
			Expect(gated.events()).To(Equal([]string{"save", "checkout"}))
		})
	})
})

// gatedStore holds LockState calls until gate is closed and records the
// order of saves and check outs.
type gatedStore struct {
	store.Store
	gate    chan struct{}
	entered chan struct{}
	once    sync.Once
	mu      sync.Mutex
	log     []string
}

func (g *gatedStore) note(event string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.log = append(g.log, event)
}

func (g *gatedStore) events() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.log...)
}

func (g *gatedStore) LockState(ctx context.Context, table string, id int64) (store.LockInfo, error) {
	g.once.Do(func() { close(g.entered) })
	<-g.gate
	return g.Store.LockState(ctx, table, id)
}

func (g *gatedStore) Save(ctx context.Context, table string, rec *resource.Record) (int64, error) {
	g.note("save")
	return g.Store.Save(ctx, table, rec)
}

func (g *gatedStore) CheckOut(ctx context.Context, table string, id int64, actor uuid.UUID) error {
	g.note("checkout")
	return g.Store.CheckOut(ctx, table, id, actor)
}
