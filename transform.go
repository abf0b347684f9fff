package qdash

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// obliterateControl is the markup spliced into the facade's root document so
// the destructive bulk reset is reachable from the dashboard itself.
const obliterateControl = `<form method="post" action="%s/api/queues/obliterate" ` +
	`onsubmit="return confirm('Obliterate ALL queues? This cannot be undone.')">` +
	`<button type="submit">Obliterate all queues</button></form>`

// rootDocumentTransform decorates the facade's root HTML document with the
// bulk reset control. Only responses that are HTML and carry a closing body
// tag are touched; everything else passes through byte for byte.
func (s *Service) rootDocumentTransform(next http.Handler) http.Handler {
	base := s.cfg.ControlBasePath()
	control := []byte(fmt.Sprintf(obliterateControl, base))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &bufferedResponse{header: make(http.Header), status: http.StatusOK}
		next.ServeHTTP(rec, r)

		body := rec.body.Bytes()
		if isHTML(rec.header.Get("Content-Type")) {
			if idx := bytes.LastIndex(body, []byte("</body>")); idx >= 0 {
				spliced := make([]byte, 0, len(body)+len(control))
				spliced = append(spliced, body[:idx]...)
				spliced = append(spliced, control...)
				spliced = append(spliced, body[idx:]...)
				body = spliced
			}
		}

		for key, values := range rec.header {
			for _, value := range values {
				w.Header().Add(key, value)
			}
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.WriteHeader(rec.status)
		_, _ = w.Write(body)
	})
}

func isHTML(contentType string) bool {
	return strings.HasPrefix(contentType, "text/html")
}

// bufferedResponse captures a downstream response so it can be rewritten
// before reaching the client.
type bufferedResponse struct {
	header      http.Header
	body        bytes.Buffer
	status      int
	wroteHeader bool
}

func (b *bufferedResponse) Header() http.Header {
	return b.header
}

func (b *bufferedResponse) Write(p []byte) (int, error) {
	b.wroteHeader = true
	return b.body.Write(p)
}

// WriteHeader keeps the first status written, matching net/http semantics.
func (b *bufferedResponse) WriteHeader(status int) {
	if b.wroteHeader {
		return
	}
	b.status = status
	b.wroteHeader = true
}

// defaultFacade serves a minimal dashboard document when no external facade
// handler was mounted.
func defaultFacade(name string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, "<!doctype html><html><head><title>%s</title></head>"+
			"<body><h1>%s</h1></body></html>", name, name)
	})
}
