// Package beacon renders the self-contained script each victim browser
// executes.
package beacon

import (
	"embed"
	"strings"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/js"

	"github.com/blindspot-sh/blindspot/internal/token"
)

//go:embed assets/base.js assets/html2canvas.min.js
var assetsFS embed.FS

var minifier = func() *minify.M {
	m := minify.New()
	m.AddFunc("application/javascript", js.Minify)
	return m
}()

// Render produces the minified beacon script for the given callback origin
// and optional tracking identifier. When identifier is empty the literal
// "null" is embedded, which ingestion treats as no identifier. Pure and
// idempotent for identical inputs.
func Render(origin, identifier string) (string, error) {
	base, err := assetsFS.ReadFile("assets/base.js")
	if err != nil {
		return "", err
	}
	rasterizer, err := assetsFS.ReadFile("assets/html2canvas.min.js")
	if err != nil {
		return "", err
	}

	uid := identifier
	if uid == "" {
		uid = "null"
	}

	script := string(base)
	script = strings.Replace(script, "{{ORIGIN}}", origin, 1)
	script = strings.Replace(script, "{{UID}}", uid, 1)
	script = strings.Replace(script, "{{HTML2CANVAS}}", string(rasterizer), 1)

	return minifier.String("application/javascript", script)
}

// ExtractIdentifier returns the tracking identifier embedded in a request
// path, or "" when the final path segment is not a well-formed identifier.
func ExtractIdentifier(path string) string {
	segment := path
	if idx := strings.LastIndex(segment, "/"); idx != -1 {
		segment = segment[idx+1:]
	}
	if token.Valid(segment) {
		return segment
	}
	return ""
}
