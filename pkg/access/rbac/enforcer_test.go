package rbac_test

import (
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
	"github.com/eshiol/j3-rest-api/pkg/access"
	"github.com/eshiol/j3-rest-api/pkg/access/rbac"
	"github.com/eshiol/j3-rest-api/pkg/storage"
	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Enforcer", func() {
	var (
		s     storage.Storage
		leg   *rbac.Legislator
		alice uuid.UUID
	)
	BeforeEach(func() {
		var err error
		s, err = storage.Open(storage.Config{Dirname: "rbac", MemBacked: true})
		Expect(err).ToNot(HaveOccurred())
		leg = &rbac.Legislator{DB: s.KV}
		alice = uuid.New()
		txn := storage.BeginTxn(s.KV)
		Expect(leg.Create(txn, rbac.Policy{
			Subject: alice,
			Object:  "articles",
			Actions: []access.Action{access.Delete},
			Effect:  rbac.Deny,
		})).To(Succeed())
		Expect(txn.Commit(pebble.Sync)).To(Succeed())
	})
	AfterEach(func() { Expect(s.Close()).To(Succeed()) })

	req := func(subject uuid.UUID, action access.Action) access.Request {
		return access.Request{Subject: subject, Object: "articles", Action: action}
	}

	It("Should apply a matching policy", func() {
		e := rbac.NewEnforcer(leg, rbac.Allow)
		Expect(errors.Is(e.Enforce(req(alice, access.Delete)), access.Forbidden)).To(BeTrue())
		Expect(e.Enforce(req(alice, access.Update))).To(Succeed())
	})
	It("Should fall back to the default effect", func() {
		Expect(rbac.NewEnforcer(leg, rbac.Allow).Enforce(req(uuid.New(), access.Delete))).To(Succeed())
		err := rbac.NewEnforcer(leg, rbac.Deny).Enforce(req(uuid.New(), access.Delete))
		Expect(errors.Is(err, access.Forbidden)).To(BeTrue())
	})
	It("Should require authentication before consulting policies", func() {
		err := rbac.NewEnforcer(leg, rbac.Allow).Enforce(req(access.Guest, access.Create))
		Expect(errors.Is(err, access.Unauthenticated)).To(BeTrue())
	})
	It("Should retrieve stored policies", func() {
		p, err := leg.Retrieve(alice, "articles")
		Expect(err).ToNot(HaveOccurred())
		Expect(p.Covers(access.Delete)).To(BeTrue())
		Expect(p.Covers(access.Retrieve)).To(BeFalse())
		_, err = leg.Retrieve(alice, "categories")
		Expect(errors.Is(err, storage.NotFound)).To(BeTrue())
	})
})
