package storage_test

import (
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
	"github.com/eshiol/j3-rest-api/pkg/storage"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type entry struct {
	Name string `json:"name"`
}

var _ = Describe("KV", func() {
	var s storage.Storage
	BeforeEach(func() {
		var err error
		s, err = storage.Open(storage.Config{Dirname: "kv", MemBacked: true})
		Expect(err).ToNot(HaveOccurred())
	})
	AfterEach(func() { Expect(s.Close()).To(Succeed()) })

	It("Should round trip values as JSON", func() {
		Expect(storage.Set(s.KV, []byte("a"), entry{Name: "x"})).To(Succeed())
		var e entry
		Expect(storage.Get(s.KV, []byte("a"), &e)).To(Succeed())
		Expect(e.Name).To(Equal("x"))
	})
	It("Should return NotFound for missing keys", func() {
		var e entry
		Expect(errors.Is(storage.Get(s.KV, []byte("missing"), &e), storage.NotFound)).To(BeTrue())
		ok, err := storage.Exists(s.KV, []byte("missing"))
		Expect(err).ToNot(HaveOccurred())
		Expect(ok).To(BeFalse())
	})
	It("Should delete keys", func() {
		Expect(storage.Set(s.KV, []byte("a"), 1)).To(Succeed())
		Expect(storage.Delete(s.KV, []byte("a"))).To(Succeed())
		ok, err := storage.Exists(s.KV, []byte("a"))
		Expect(err).ToNot(HaveOccurred())
		Expect(ok).To(BeFalse())
	})
	It("Should only apply transactions on commit", func() {
		txn := storage.BeginTxn(s.KV)
		Expect(storage.Set(txn, []byte("a"), 1)).To(Succeed())
		var v int
		Expect(storage.Get(txn, []byte("a"), &v)).To(Succeed())
		Expect(v).To(Equal(1))
		ok, err := storage.Exists(s.KV, []byte("a"))
		Expect(err).ToNot(HaveOccurred())
		Expect(ok).To(BeFalse())
		Expect(txn.Commit(pebble.Sync)).To(Succeed())
		Expect(txn.Close()).To(Succeed())
		ok, err = storage.Exists(s.KV, []byte("a"))
		Expect(err).ToNot(HaveOccurred())
		Expect(ok).To(BeTrue())
	})
	It("Should iterate a prefix in key order", func() {
		for _, k := range []string{"t/2", "t/1", "u/1", "t#seq"} {
			Expect(storage.Set(s.KV, []byte(k), k)).To(Succeed())
		}
		var keys []string
		Expect(storage.Iterate(s.KV, []byte("t/"), func(key, _ []byte) error {
			keys = append(keys, string(key))
			return nil
		})).To(Succeed())
		Expect(keys).To(Equal([]string{"t/1", "t/2"}))
	})
	It("Should stop iterating at the first error", func() {
		Expect(storage.Set(s.KV, []byte("t/1"), 1)).To(Succeed())
		Expect(storage.Set(s.KV, []byte("t/2"), 2)).To(Succeed())
		stop := errors.New("stop")
		calls := 0
		err := storage.Iterate(s.KV, []byte("t/"), func(_, _ []byte) error {
			calls++
			return stop
		})
		Expect(errors.Is(err, stop)).To(BeTrue())
		Expect(calls).To(Equal(1))
	})
	It("Should compute prefix ends", func() {
		Expect(storage.PrefixEnd([]byte("t/"))).To(Equal([]byte("t0")))
		Expect(storage.PrefixEnd([]byte{'a', 0xff})).To(Equal([]byte("b")))
		Expect(storage.PrefixEnd([]byte{0xff})).To(BeNil())
	})
})
