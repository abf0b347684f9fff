package qdash_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/pitabwire/qdash"
)

type TransformSuite struct {
	suite.Suite
}

func TestTransformSuite(t *testing.T) {
	suite.Run(t, new(TransformSuite))
}

func htmlFacade(body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, body)
	})
}

func (s *TransformSuite) TestRootDocumentGainsObliterateControl() {
	t := s.T()

	facade := htmlFacade("<html><body><h1>queues</h1></body></html>")
	_, handler := newSurface(s.T(), qdash.WithFacadeHandler(facade))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	require.Contains(t, body, `action="/api/queues/obliterate"`)
	require.Contains(t, body, "<h1>queues</h1>")

	// Control lands inside the document, before the closing body tag.
	require.Less(t,
		strings.Index(body, "obliterate"),
		strings.Index(body, "</body>"))
	require.Equal(t, fmt.Sprintf("%d", len(body)), rec.Header().Get("Content-Length"))
}

func (s *TransformSuite) TestControlActionHonoursBasePath() {
	t := s.T()

	cfg := defaultTestConfig(t)
	cfg.BasePath = "/dash"

	facade := htmlFacade("<html><body></body></html>")
	_, handler := newSurface(s.T(), qdash.WithConfig(cfg), qdash.WithFacadeHandler(facade))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dash/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `action="/dash/api/queues/obliterate"`)
}

func (s *TransformSuite) TestNonHTMLResponsePassesThroughUntouched() {
	t := s.T()

	facade := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"queues":[]}`)
	})
	_, handler := newSurface(s.T(), qdash.WithFacadeHandler(facade))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, `{"queues":[]}`, rec.Body.String())
}

func (s *TransformSuite) TestHTMLWithoutBodyTagPassesThroughUntouched() {
	t := s.T()

	facade := htmlFacade("<p>partial fragment</p>")
	_, handler := newSurface(s.T(), qdash.WithFacadeHandler(facade))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "<p>partial fragment</p>", rec.Body.String())
}

func (s *TransformSuite) TestFacadeStatusAndHeadersPreserved() {
	t := s.T()

	facade := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("X-Facade", "upstream")
		w.WriteHeader(http.StatusTeapot)
		fmt.Fprint(w, "<html><body>down</body></html>")
	})
	_, handler := newSurface(s.T(), qdash.WithFacadeHandler(facade))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusTeapot, rec.Code)
	require.Equal(t, "upstream", rec.Header().Get("X-Facade"))
	require.Contains(t, rec.Body.String(), "obliterate")
}

func (s *TransformSuite) TestFirstStatusWinsOverLaterWrites() {
	t := s.T()

	facade := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusAccepted)
		fmt.Fprint(w, "<html><body>queued</body></html>")
		w.WriteHeader(http.StatusInternalServerError)
	})
	_, handler := newSurface(s.T(), qdash.WithFacadeHandler(facade))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Contains(t, rec.Body.String(), "obliterate")
}

func (s *TransformSuite) TestDefaultFacadeServesDashboardDocument() {
	t := s.T()

	_, handler := newSurface(s.T())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	require.Contains(t, rec.Body.String(), "obliterate")
}
