// Package content holds the built-in service definitions and serves their
// schema files.
package content

import (
	"embed"
	"net/http"

	"github.com/eshiol/j3-rest-api/pkg/api"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/filesystem"
)

//go:embed schemas/*/*.yaml
var Schemas embed.FS

// Articles is the built-in articles service.
var Articles = api.Definition{
	Name:        "articles",
	ContentType: "application/vnd.joomla.item.v1; schema=articles.v1",
	DescribedBy: "http://docs.joomla.org/Schemas/articles/v1",
	PrimaryRel:  "joomla:articles",
	ResourceMap: "schemas/articles/resource.yaml",
	IncludeMap:  "schemas/articles/include.yaml",
	Table:       "content",
}

// Builtin returns every built-in definition.
func Builtin() []api.Definition { return []api.Definition{Articles} }

// Service serves the embedded schema files under /schemas.
type Service struct{}

func (s *Service) BindTo(f fiber.Router) {
	f.Use("/schemas", filesystem.New(filesystem.Config{
		Root:       http.FS(Schemas),
		PathPrefix: "schemas",
		Browse:     true,
	}))
}
