// Package apiv1 carries the OpenAPI document of the v1 API.
package apiv1

import (
	"context"
	_ "embed"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/gofiber/fiber/v2"
)

// Spec is the raw OpenAPI document served under the docs route.
//
//go:embed openapi.yml
var Spec []byte

var fiberParam = regexp.MustCompile(`:([A-Za-z0-9_]+)`)

// Load parses and validates the embedded document.
func Load(ctx context.Context) (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	loader.Context = ctx
	doc, err := loader.LoadFromData(Spec)
	if err != nil {
		return nil, fmt.Errorf("parse openapi: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("validate openapi: %w", err)
	}
	return doc, nil
}

// OpenAPIPath converts a fiber route path such as /orders/:id into the
// document's template form /orders/{id}.
func OpenAPIPath(path string) string {
	return fiberParam.ReplaceAllString(path, "{$1}")
}

// Undocumented lists "METHOD /path" for every route under prefix that the
// document does not describe. Paths are compared without the prefix.
func Undocumented(doc *openapi3.T, routes []fiber.Route, prefix string) []string {
	seen := make(map[string]bool)
	var missing []string
	for _, r := range routes {
		if r.Method == fiber.MethodHead || r.Method == "USE" || !strings.HasPrefix(r.Path, prefix+"/") {
			continue
		}
		path := OpenAPIPath(strings.TrimPrefix(r.Path, prefix))
		key := r.Method + " " + path
		if seen[key] {
			continue
		}
		seen[key] = true

		item := doc.Paths.Value(path)
		if item == nil || item.GetOperation(r.Method) == nil {
			missing = append(missing, key)
		}
	}
	sort.Strings(missing)
	return missing
}
