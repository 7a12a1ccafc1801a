package password_test

import (
	"github.com/cockroachdb/errors"
	"github.com/eshiol/j3-rest-api/pkg/auth/password"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Password", func() {
	It("Should validate the password it was hashed from", func() {
		h, err := password.Raw("secret").Hash()
		Expect(err).ToNot(HaveOccurred())
		Expect(h.Validate("secret")).To(Succeed())
	})
	It("Should reject a different password", func() {
		h, err := password.Raw("secret").Hash()
		Expect(err).ToNot(HaveOccurred())
		Expect(errors.Is(h.Validate("guess"), password.Invalid)).To(BeTrue())
	})
})
