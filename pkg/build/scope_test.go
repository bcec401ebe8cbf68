package build_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/broadcomms/chronosops/pkg/build"
)

var _ = Describe("DetectRebuildScope", func() {
	It("returns full when any changed path matches a config pattern", func() {
		Expect(build.DetectRebuildScope([]string{"package.json"})).To(Equal(build.ScopeFull))
		Expect(build.DetectRebuildScope([]string{"/app/Dockerfile"})).To(Equal(build.ScopeFull))
		Expect(build.DetectRebuildScope([]string{"src/routes/users.go", ".env"})).To(Equal(build.ScopeFull))
	})

	It("returns frontend when every changed path matches a frontend pattern", func() {
		scope := build.DetectRebuildScope([]string{
			"src/components/Button.tsx",
			"src/pages/Home.tsx",
			"src/styles/main.css",
		})
		Expect(scope).To(Equal(build.ScopeFrontend))
	})

	It("returns backend when every changed path matches a backend pattern", func() {
		scope := build.DetectRebuildScope([]string{
			"src/routes/users.go",
			"src/services/auth.go",
			"src/db/migrations.go",
		})
		Expect(scope).To(Equal(build.ScopeBackend))
	})

	It("returns full for a mixed or unrecognized changed-file set", func() {
		mixed := build.DetectRebuildScope([]string{"src/routes/users.go", "src/components/Button.tsx"})
		Expect(mixed).To(Equal(build.ScopeFull))

		unrecognized := build.DetectRebuildScope([]string{"README.md"})
		Expect(unrecognized).To(Equal(build.ScopeFull))
	})

	It("is idempotent and order-independent", func() {
		a := []string{"package.json", "src/routes/users.go"}
		b := []string{"src/routes/users.go", "package.json"}
		Expect(build.DetectRebuildScope(a)).To(Equal(build.DetectRebuildScope(b)))
		Expect(build.DetectRebuildScope(a)).To(Equal(build.DetectRebuildScope(a)))
	})
})
