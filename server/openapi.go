package server

import (
	"bytes"
	_ "embed"
	"html/template"
	"net/http"
	"time"
)

const (
	apiDocPath  = "/openapi.yaml"
	apiDocsPath = "/docs"
)

// apiDoc is the OpenAPI description of the message endpoint
//
//go:embed openapi.yaml
var apiDoc []byte

var docsPage = template.Must(template.New("docs").Parse(`<!doctype html>
<html>
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>{{ .Title }}</title>
  </head>
  <body>
    <redoc spec-url="{{ .DocPath }}"></redoc>
    <script src="https://cdn.redoc.ly/redoc/latest/bundles/redoc.standalone.js"></script>
  </body>
</html>`))

// serveAPIDoc serves the raw OpenAPI document, HEAD and conditional requests included
func (s *Server) serveAPIDoc(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml; charset=utf-8")

	http.ServeContent(w, r, "openapi.yaml", time.Time{}, bytes.NewReader(apiDoc))
}

// serveAPIDocsPage renders the message protocol docs around the OpenAPI document
func (s *Server) serveAPIDocsPage(w http.ResponseWriter, _ *http.Request) {
	var buf bytes.Buffer

	if err := docsPage.Execute(&buf, struct {
		Title   string
		DocPath string
	}{
		Title:   "fxcache message protocol",
		DocPath: apiDocPath,
	}); err != nil {
		http.Error(w, "unable to render docs", http.StatusInternalServerError)

		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	_, _ = w.Write(buf.Bytes()) //nolint:errcheck // client went away
}
