package fiber_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	fiberaccess "github.com/eshiol/j3-rest-api/pkg/access/fiber"
	"github.com/eshiol/j3-rest-api/pkg/auth"
	fiberauth "github.com/eshiol/j3-rest-api/pkg/auth/fiber"
	"github.com/eshiol/j3-rest-api/pkg/auth/token"
	"github.com/eshiol/j3-rest-api/pkg/storage"
	"github.com/eshiol/j3-rest-api/pkg/user"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type tokenResponse struct {
	User  user.User `json:"user"`
	Token string    `json:"token"`
}

var _ = Describe("Service", func() {
	var (
		s      storage.Storage
		app    *fiber.App
		tokens *token.Service
	)
	BeforeEach(func() {
		var err error
		s, err = storage.Open(storage.Config{Dirname: "auth-fiber", MemBacked: true})
		Expect(err).ToNot(HaveOccurred())
		tokens = &token.Service{Secret: []byte("secret"), Expiration: time.Hour}
		app = fiber.New()
		svc := &fiberauth.Service{
			User:  &user.Service{DB: s.KV},
			Token: tokens,
			DB:    s.KV,
			Auth:  &auth.KV{DB: s.KV},
		}
		svc.BindTo(app)
		app.Get("/whoami", fiberauth.GuestTokenMiddleware(tokens), func(c *fiber.Ctx) error {
			return c.SendString(fiberaccess.GetSubject(c).String())
		})
	})
	AfterEach(func() { Expect(s.Close()).To(Succeed()) })

	post := func(path, body string, headers ...string) *http.Response {
		req := httptest.NewRequest("POST", path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		for i := 0; i+1 < len(headers); i += 2 {
			req.Header.Set(headers[i], headers[i+1])
		}
		res, err := app.Test(req, -1)
		Expect(err).ToNot(HaveOccurred())
		return res
	}
	decode := func(res *http.Response) tokenResponse {
		var tr tokenResponse
		b, err := io.ReadAll(res.Body)
		Expect(err).ToNot(HaveOccurred())
		Expect(json.Unmarshal(b, &tr)).To(Succeed())
		return tr
	}
	register := func() tokenResponse {
		res := post("/auth/register", `{"username": "alice", "password": "secret"}`)
		Expect(res.StatusCode).To(Equal(fiber.StatusCreated))
		return decode(res)
	}

	It("Should register and return a token for the new user", func() {
		tr := register()
		Expect(tr.User.Username).To(Equal("alice"))
		key, err := tokens.Validate(tr.Token)
		Expect(err).ToNot(HaveOccurred())
		Expect(key).To(Equal(tr.User.Key))
	})
	It("Should refuse a second registration of the same username", func() {
		register()
		res := post("/auth/register", `{"username": "alice", "password": "other"}`)
		Expect(res.StatusCode).To(Equal(fiber.StatusConflict))
	})
	It("Should log in with valid credentials", func() {
		registered := register()
		res := post("/auth/login", `{"username": "alice", "password": "secret"}`)
		Expect(res.StatusCode).To(Equal(fiber.StatusOK))
		Expect(decode(res).User.Key).To(Equal(registered.User.Key))
	})
	It("Should reject invalid credentials", func() {
		register()
		res := post("/auth/login", `{"username": "alice", "password": "guess"}`)
		Expect(res.StatusCode).To(Equal(fiber.StatusUnauthorized))
	})
	It("Should change the password of the token holder", func() {
		tr := register()
		res := post("/auth/protected/change-password",
			`{"username": "alice", "password": "secret", "newPassword": "changed"}`,
			"Authorization", "Bearer "+tr.Token)
		Expect(res.StatusCode).To(Equal(fiber.StatusNoContent))
		res = post("/auth/login", `{"username": "alice", "password": "changed"}`)
		Expect(res.StatusCode).To(Equal(fiber.StatusOK))
	})
	It("Should change the username of the token holder", func() {
		tr := register()
		res := post("/auth/protected/change-username",
			`{"username": "alice", "password": "secret", "newUsername": "alicia"}`,
			"Authorization", "Bearer "+tr.Token)
		Expect(res.StatusCode).To(Equal(fiber.StatusNoContent))
		res = post("/auth/login", `{"username": "alicia", "password": "secret"}`)
		Expect(res.StatusCode).To(Equal(fiber.StatusOK))
		Expect(decode(res).User.Key).To(Equal(tr.User.Key))
	})
	It("Should refuse protected routes without a token", func() {
		res := post("/auth/protected/change-password", `{}`)
		Expect(res.StatusCode).To(Equal(fiber.StatusUnauthorized))
	})
	It("Should refuse changes to another user's credentials", func() {
		register()
		other, err := tokens.New(uuid.New())
		Expect(err).ToNot(HaveOccurred())
		res := post("/auth/protected/change-password",
			`{"username": "alice", "password": "secret", "newPassword": "changed"}`,
			"Authorization", "Bearer "+other)
		Expect(res.StatusCode).To(Equal(fiber.StatusForbidden))
	})

	Describe("GuestTokenMiddleware", func() {
		whoami := func(headers ...string) (int, string) {
			req := httptest.NewRequest("GET", "/whoami", nil)
			for i := 0; i+1 < len(headers); i += 2 {
				req.Header.Set(headers[i], headers[i+1])
			}
			res, err := app.Test(req, -1)
			Expect(err).ToNot(HaveOccurred())
			b, _ := io.ReadAll(res.Body)
			return res.StatusCode, string(b)
		}
		It("Should let requests without a token through as guests", func() {
			status, body := whoami()
			Expect(status).To(Equal(fiber.StatusOK))
			Expect(body).To(Equal(uuid.Nil.String()))
		})
		It("Should set the subject from a bearer token", func() {
			key := uuid.New()
			tk, _ := tokens.New(key)
			status, body := whoami("Authorization", "Bearer "+tk)
			Expect(status).To(Equal(fiber.StatusOK))
			Expect(body).To(Equal(key.String()))
		})
		It("Should set the subject from a cookie", func() {
			key := uuid.New()
			tk, _ := tokens.New(key)
			_, body := whoami("Cookie", "token="+tk)
			Expect(body).To(Equal(key.String()))
		})
		It("Should reject an invalid token", func() {
			status, _ := whoami("Authorization", "Bearer garbage")
			Expect(status).To(Equal(fiber.StatusUnauthorized))
		})
	})
})
