package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/edgedir/rd/internal/directory"
)

func newTestRouter(t *testing.T) (*gin.Engine, *directory.Registry) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	registry := directory.NewRegistry(nil, zap.NewNop())
	h := NewHandler(registry, directory.NewLookup(registry), "", zap.NewNop())

	router := gin.New()
	h.Register(&router.RouterGroup)
	return router, registry
}

func doRequest(router *gin.Engine, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.RemoteAddr = "203.0.113.7:40000"
	req.Header.Set("Content-Type", "application/link-format")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRegisterEndpoint_Created(t *testing.T) {
	router, registry := newTestRouter(t)

	w := doRequest(router, http.MethodPost, "/rd?ep=node1&lt=3600", `</sensors/temp>;rt=temperature`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want 201 (%s)", w.Code, w.Body.String())
	}
	loc := w.Header().Get("Location")
	if !strings.HasPrefix(loc, "/rd/") || len(loc) == len("/rd/") {
		t.Fatalf("location header: got %q", loc)
	}
	if registry.Count() != 1 {
		t.Errorf("count: got %d, want 1", registry.Count())
	}

	reg, ok := registry.FindByLocation(strings.TrimPrefix(loc, "/rd/"))
	if !ok {
		t.Fatal("location header does not resolve")
	}
	if got := reg.Context(); got != "coap://203.0.113.7:40000" {
		t.Errorf("derived context: got %q", got)
	}
}

func TestRegisterEndpoint_RepeatIsNoContent(t *testing.T) {
	router, _ := newTestRouter(t)

	doRequest(router, http.MethodPost, "/rd?ep=node1", "")
	w := doRequest(router, http.MethodPost, "/rd?ep=node1", "")
	if w.Code != http.StatusNoContent {
		t.Errorf("repeat registration: got %d, want 204", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != "" {
		t.Errorf("repeat registration carries Location %q", loc)
	}
}

func TestRegisterEndpoint_MissingName(t *testing.T) {
	router, registry := newTestRouter(t)

	w := doRequest(router, http.MethodPost, "/rd?lt=3600", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", w.Code)
	}
	if registry.Count() != 0 {
		t.Errorf("rejected request created state: count %d", registry.Count())
	}
}

func TestRegisterEndpoint_BadLifetime(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doRequest(router, http.MethodPost, "/rd?ep=node1&lt=abc", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", w.Code)
	}
}

func TestUpdateAndReadLinks(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doRequest(router, http.MethodPost, "/rd?ep=node1", `</a>;rt=one`)
	loc := w.Header().Get("Location")

	if w := doRequest(router, http.MethodPost, loc, `</b>;rt=two`); w.Code != http.StatusNoContent {
		t.Fatalf("update: got %d, want 204", w.Code)
	}

	w = doRequest(router, http.MethodGet, loc, "")
	if w.Code != http.StatusOK {
		t.Fatalf("read: got %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/link-format" {
		t.Errorf("content type: got %q", ct)
	}
	body := w.Body.String()
	if !strings.Contains(body, "/a") || !strings.Contains(body, "/b") {
		t.Errorf("merged links missing: %q", body)
	}

	w = doRequest(router, http.MethodGet, loc+"?rt=two", "")
	if body := w.Body.String(); strings.Contains(body, "/a") || !strings.Contains(body, "/b") {
		t.Errorf("filtered read: %q", body)
	}
}

func TestUnknownLocationIs404(t *testing.T) {
	router, _ := newTestRouter(t)

	for _, method := range []string{http.MethodPost, http.MethodGet, http.MethodDelete} {
		if w := doRequest(router, method, "/rd/no-such-location", ""); w.Code != http.StatusNotFound {
			t.Errorf("%s unknown location: got %d, want 404", method, w.Code)
		}
	}
}

func TestRemoveRegistration(t *testing.T) {
	router, registry := newTestRouter(t)

	w := doRequest(router, http.MethodPost, "/rd?ep=node1", "")
	loc := w.Header().Get("Location")

	if w := doRequest(router, http.MethodDelete, loc, ""); w.Code != http.StatusNoContent {
		t.Fatalf("delete: got %d, want 204", w.Code)
	}
	if registry.Count() != 0 {
		t.Errorf("count after delete: got %d", registry.Count())
	}
	if w := doRequest(router, http.MethodDelete, loc, ""); w.Code != http.StatusNotFound {
		t.Errorf("second delete: got %d, want 404", w.Code)
	}
}

func TestLookupEndpointsAndDomains(t *testing.T) {
	router, _ := newTestRouter(t)

	doRequest(router, http.MethodPost, "/rd?ep=node1&lt=3600&et=oic.d.sensor", "")
	doRequest(router, http.MethodPost, "/rd?ep=node2&d=floor2", "")

	w := doRequest(router, http.MethodGet, "/rd-lookup/ep?et=oic.d.sensor", "")
	body := w.Body.String()
	if !strings.Contains(body, `ep="node1"`) || strings.Contains(body, "node2") {
		t.Errorf("endpoint lookup: %q", body)
	}
	if !strings.Contains(body, "<coap://203.0.113.7:40000>") {
		t.Errorf("endpoint lookup target: %q", body)
	}

	w = doRequest(router, http.MethodGet, "/rd-lookup/d", "")
	body = w.Body.String()
	if !strings.Contains(body, `d="floor2"`) || !strings.Contains(body, `d="local"`) {
		t.Errorf("domain lookup: %q", body)
	}
}

func TestLookupResources(t *testing.T) {
	router, _ := newTestRouter(t)

	doRequest(router, http.MethodPost, "/rd?ep=node1", `</sensors/temp>;rt=temperature`)
	doRequest(router, http.MethodPost, "/rd?ep=node2&d=floor2", `</actuators/lamp>;rt=light`)

	w := doRequest(router, http.MethodGet, "/rd-lookup/res?rt=light", "")
	body := w.Body.String()
	if !strings.Contains(body, "/actuators/lamp") || strings.Contains(body, "/sensors/temp") {
		t.Errorf("rt filter: %q", body)
	}

	w = doRequest(router, http.MethodGet, "/rd-lookup/res?d=floor2", "")
	body = w.Body.String()
	if !strings.Contains(body, "/actuators/lamp") || strings.Contains(body, "/sensors/temp") {
		t.Errorf("domain narrowing: %q", body)
	}
}

func TestWellKnownCore(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doRequest(router, http.MethodGet, "/.well-known/core", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{`</rd>;rt="core.rd"`, `</rd-lookup/res>;rt="core.rd-lookup"`} {
		if !strings.Contains(body, want) {
			t.Errorf("missing %q in %q", want, body)
		}
	}
}
