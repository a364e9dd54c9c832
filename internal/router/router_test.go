package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"wgquickrs/internal/config"
)

func TestPathMatchesExactAndParameterized(t *testing.T) {
	r := &Router{}
	cases := []struct {
		path, pattern string
		want          bool
	}{
		{"/network/summary", "/network/summary", true},
		{"/network/summary", "/network/other", false},
		{"/peers/abc-123", "/peers/{id}", true},
		{"/peers/abc-123/extra", "/peers/{id}", false},
		{"/peers", "/peers/{id}", false},
	}
	for _, c := range cases {
		if got := r.pathMatches(c.path, c.pattern); got != c.want {
			t.Errorf("pathMatches(%q, %q) = %v, want %v", c.path, c.pattern, got, c.want)
		}
	}
}

func TestMethodAllowed(t *testing.T) {
	r := &Router{}
	if !r.methodAllowed("OPTIONS", []string{"GET"}) {
		t.Errorf("methodAllowed(OPTIONS) = false, want true (CORS preflight always allowed)")
	}
	if !r.methodAllowed("GET", []string{"GET", "POST"}) {
		t.Errorf("methodAllowed(GET) = false, want true")
	}
	if r.methodAllowed("DELETE", []string{"GET", "POST"}) {
		t.Errorf("methodAllowed(DELETE) = true, want false")
	}
}

func buildTestRouter(t *testing.T) http.Handler {
	t.Helper()
	SetAuthValidator(nil)
	cfg := &config.Config{
		Version: "test",
		Middleware: config.MiddlewareConfig{
			CORS:    config.CORSConfig{Enabled: true, AllowOrigins: []string{"*"}, AllowMethods: []string{"GET"}, AllowHeaders: []string{"Authorization"}},
			Logging: config.LoggingConfig{Enabled: false},
		},
		Services: map[string]config.ServiceConfig{
			"greet": {
				Prefix:  "/greet",
				Enabled: true,
				Endpoints: []config.EndpointConfig{
					{Path: "/hello", Methods: []string{"GET"}, Handler: "Hello"},
				},
			},
			"disabled": {
				Prefix:  "/off",
				Enabled: false,
				Endpoints: []config.EndpointConfig{
					{Path: "/x", Methods: []string{"GET"}, Handler: "X"},
				},
			},
		},
	}
	r := New(cfg)
	r.RegisterService("greet", ServiceHandlers{
		"Hello": func(w http.ResponseWriter, req *http.Request) { JSON(w, map[string]string{"msg": "hi"}) },
	})
	return r.Build()
}

func TestBuildRoutesRegisteredEndpoint(t *testing.T) {
	h := buildTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/greet/hello", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if body["msg"] != "hi" {
		t.Errorf("msg = %q, want hi", body["msg"])
	}
}

func TestBuildSkipsDisabledService(t *testing.T) {
	h := buildTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/off/x", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code == http.StatusOK {
		t.Fatalf("status = 200 for a disabled service's endpoint, want not-found/method-not-allowed")
	}
}

func TestHealthEndpointIsAlwaysPublic(t *testing.T) {
	h := buildTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestAuthMiddlewareRejectsMissingToken(t *testing.T) {
	h := buildTestRouter(t)
	SetAuthValidator(func(token string) bool { return token == "good" })
	defer SetAuthValidator(nil)

	req := httptest.NewRequest(http.MethodGet, "/greet/hello", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 without a bearer token", rec.Code)
	}
}

func TestAuthMiddlewareAcceptsValidToken(t *testing.T) {
	h := buildTestRouter(t)
	SetAuthValidator(func(token string) bool { return token == "good" })
	defer SetAuthValidator(nil)

	req := httptest.NewRequest(http.MethodGet, "/greet/hello", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 with a valid bearer token", rec.Code)
	}
}

func TestJSONErrorWritesStatusAndBody(t *testing.T) {
	rec := httptest.NewRecorder()
	JSONError(rec, "bad input", http.StatusBadRequest)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if body["error"] != "bad input" {
		t.Errorf("error = %q, want %q", body["error"], "bad input")
	}
}
