package integration_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/geocoder89/ninjafinder/internal/config"
	apphttp "github.com/geocoder89/ninjafinder/internal/http"
	"github.com/geocoder89/ninjafinder/internal/observability"
	"github.com/geocoder89/ninjafinder/internal/repo/memory"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

type testEnv struct {
	router http.Handler
	users  *memory.UsersRepo
	ninjas *memory.NinjasRepo
	jobs   *memory.JobsRepo
}

func testConfig() config.Config {
	return config.Config{
		Env:                   "dev",
		JWTSecret:             "test-secret-key",
		JWTTTLHours:           168,
		StoreDriver:           "memory",
		CORSOrigins:           []string{"*"},
		AuthRateLimit:         1000,
		AuthRateWindowSeconds: 60,
	}
}

func setupRouter(t *testing.T, cfg config.Config) testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))

	reg := prometheus.NewRegistry()

	env := testEnv{
		users:  memory.NewUsersRepo(),
		ninjas: memory.NewNinjasRepo(),
		jobs:   memory.NewJobsRepo(),
	}

	env.router = apphttp.NewRouter(logger, apphttp.Deps{
		Users:    env.users,
		Ninjas:   env.ninjas,
		Jobs:     env.jobs,
		Prom:     observability.NewProm(reg),
		Gatherer: reg,
	}, cfg)

	return env
}

// helpers

func do(t *testing.T, h http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()

	var rdr io.Reader
	if body != "" {
		rdr = bytes.NewBufferString(body)
	}

	req := httptest.NewRequest(method, path, rdr)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()

	if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
		t.Fatalf("unmarshal: %v body=%s", err, w.Body.String())
	}
}

func signUp(t *testing.T, h http.Handler, name, email, password string) string {
	t.Helper()

	w := do(t, h, http.MethodPost, "/auth/signup",
		`{"name":"`+name+`","email":"`+email+`","password":"`+password+`"}`, "")

	if w.Code != http.StatusCreated {
		t.Fatalf("signup got %d body=%s", w.Code, w.Body.String())
	}

	var resp struct {
		Token string `json:"token"`
	}
	decode(t, w, &resp)

	return resp.Token
}

func TestKaiScenario(t *testing.T) {
	env := setupRouter(t, testConfig())

	token := signUp(t, env.router, "Kai", "kai@ninjago.io", "spinjitzu")

	body := `{"name":"Kai","email":"kai@ninjago.io","rank":"red belt","availability":true,"geometry":{"type":"Point","coordinates":[77.209,28.6139]}}`

	w := do(t, env.router, http.MethodPost, "/api/ninjas", body, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("create ninja got %d body=%s", w.Code, w.Body.String())
	}

	var created struct {
		ID           string `json:"id"`
		Name         string `json:"name"`
		Email        string `json:"email"`
		Rank         string `json:"rank"`
		Availability bool   `json:"availability"`
		Geometry     struct {
			Type        string    `json:"type"`
			Coordinates []float64 `json:"coordinates"`
		} `json:"geometry"`
	}
	decode(t, w, &created)

	if created.ID == "" || created.Name != "Kai" || created.Email != "kai@ninjago.io" ||
		created.Rank != "red belt" || !created.Availability ||
		created.Geometry.Type != "Point" || len(created.Geometry.Coordinates) != 2 ||
		created.Geometry.Coordinates[0] != 77.209 || created.Geometry.Coordinates[1] != 28.6139 {
		t.Fatalf("document does not echo the request: %+v", created)
	}

	// the welcome job was queued for the new user
	if got := len(env.jobs.Jobs()); got != 1 {
		t.Fatalf("expected 1 queued job, got %d", got)
	}
}

func TestSignUp_DuplicateAndInvalid(t *testing.T) {
	env := setupRouter(t, testConfig())

	signUp(t, env.router, "Kai", "kai@ninjago.io", "spinjitzu")

	w := do(t, env.router, http.MethodPost, "/auth/signup", `{"name":"Kai","email":"KAI@ninjago.io","password":"spinjitzu"}`, "")
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate signup got %d", w.Code)
	}

	w = do(t, env.router, http.MethodPost, "/auth/signup", `{"name":"Lloyd","email":"lloyd@ninjago.io","password":"abc"}`, "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("invalid signup got %d", w.Code)
	}

	if env.users.Count() != 1 {
		t.Fatalf("expected exactly one user, got %d", env.users.Count())
	}
}

func TestLogin_Flow(t *testing.T) {
	env := setupRouter(t, testConfig())

	signUp(t, env.router, "Kai", "kai@ninjago.io", "spinjitzu")

	w := do(t, env.router, http.MethodPost, "/auth/login", `{"email":"kai@ninjago.io","password":"spinjitzu"}`, "")
	if w.Code != http.StatusOK {
		t.Fatalf("login got %d body=%s", w.Code, w.Body.String())
	}

	var resp struct {
		Token string `json:"token"`
		Name  string `json:"name"`
	}
	decode(t, w, &resp)

	if resp.Name != "Kai" {
		t.Fatalf("expected name Kai, got %q", resp.Name)
	}

	// token opens a protected route
	w = do(t, env.router, http.MethodGet, "/auth/data/kai@ninjago.io", "", resp.Token)
	if w.Code != http.StatusOK {
		t.Fatalf("protected route got %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "password") {
		t.Fatalf("user lookup leaked password: %s", w.Body.String())
	}

	wrong := do(t, env.router, http.MethodPost, "/auth/login", `{"email":"kai@ninjago.io","password":"nope-nope"}`, "")
	unknown := do(t, env.router, http.MethodPost, "/auth/login", `{"email":"ghost@ninjago.io","password":"nope-nope"}`, "")

	if wrong.Code != http.StatusUnauthorized || unknown.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401s, got %d and %d", wrong.Code, unknown.Code)
	}

	strip := func(w *httptest.ResponseRecorder) map[string]any {
		var m map[string]any
		decode(t, w, &m)
		delete(m["error"].(map[string]any), "requestId")
		return m
	}

	a, _ := json.Marshal(strip(wrong))
	b, _ := json.Marshal(strip(unknown))
	if !bytes.Equal(a, b) {
		t.Fatalf("login failures differ:\n%s\n%s", a, b)
	}
}

func TestLogout_RevokesToken(t *testing.T) {
	env := setupRouter(t, testConfig())

	token := signUp(t, env.router, "Kai", "kai@ninjago.io", "spinjitzu")

	if w := do(t, env.router, http.MethodPost, "/auth/logout", "", token); w.Code != http.StatusOK {
		t.Fatalf("logout got %d body=%s", w.Code, w.Body.String())
	}

	w := do(t, env.router, http.MethodPost, "/api/ninjas", `{"name":"Kai","email":"kai@ninjago.io"}`, token)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("revoked token should be rejected, got %d", w.Code)
	}
}

func TestProtectedRoutes_RequireBearer(t *testing.T) {
	env := setupRouter(t, testConfig())

	const jsonType = "application/json"

	tests := []struct {
		name        string
		method      string
		path        string
		contentType string
		header      string
		want        string
	}{
		{name: "create_no_header", method: http.MethodPost, path: "/api/ninjas", contentType: jsonType, want: "No token provided"},
		{name: "create_malformed", method: http.MethodPost, path: "/api/ninjas", contentType: jsonType, header: "Token abc", want: "Malformed token"},
		{name: "update_invalid", method: http.MethodPut, path: "/api/ninjas/x", contentType: jsonType, header: "Bearer abc", want: "Invalid token"},
		{name: "delete_no_header", method: http.MethodDelete, path: "/api/ninjas/x", contentType: jsonType, want: "No token provided"},
		{name: "create_text_plain_no_header", method: http.MethodPost, path: "/api/ninjas", contentType: "text/plain", want: "No token provided"},
		{name: "update_no_content_type_no_header", method: http.MethodPut, path: "/api/ninjas/abc", want: "No token provided"},
		{name: "logout_text_plain_no_header", method: http.MethodPost, path: "/auth/logout", contentType: "text/plain", want: "No token provided"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, bytes.NewBufferString(`{}`))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			w := httptest.NewRecorder()
			env.router.ServeHTTP(w, req)

			if w.Code != http.StatusUnauthorized {
				t.Fatalf("got %d, want 401", w.Code)
			}

			var body struct {
				Message string `json:"message"`
			}
			decode(t, w, &body)

			if body.Message != tt.want {
				t.Fatalf("got message %q, want %q", body.Message, tt.want)
			}
		})
	}
}

func TestNearestAndUpdate(t *testing.T) {
	env := setupRouter(t, testConfig())
	token := signUp(t, env.router, "Kai", "kai@ninjago.io", "spinjitzu")

	create := func(name, email string, lat float64) string {
		body, _ := json.Marshal(map[string]any{
			"name":     name,
			"email":    email,
			"geometry": map[string]any{"type": "Point", "coordinates": []float64{0, lat}},
		})

		w := do(t, env.router, http.MethodPost, "/api/ninjas", string(body), token)
		if w.Code != http.StatusCreated {
			t.Fatalf("create got %d body=%s", w.Code, w.Body.String())
		}

		var n struct {
			ID string `json:"id"`
		}
		decode(t, w, &n)
		return n.ID
	}

	// P2 about 5 km away, P1 about 1 km away
	p2 := create("Cole", "cole@ninjago.io", 0.045)
	p1 := create("Jay", "jay@ninjago.io", 0.009)

	w := do(t, env.router, http.MethodGet, "/api/ninjas?lng=0&lat=0&unit=km", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("nearest got %d", w.Code)
	}

	var near struct {
		Count int    `json:"count"`
		Unit  string `json:"unit"`
		Data  []struct {
			ID       string  `json:"id"`
			Distance float64 `json:"distance"`
		} `json:"data"`
	}
	decode(t, w, &near)

	if near.Count != 2 || near.Unit != "km" || near.Data[0].ID != p1 || near.Data[1].ID != p2 {
		t.Fatalf("unexpected order: %+v", near)
	}
	if !(near.Data[0].Distance < near.Data[1].Distance) || near.Data[1].Distance > 5.1 || near.Data[1].Distance < 4.9 {
		t.Fatalf("unexpected distances: %+v", near.Data)
	}

	w = do(t, env.router, http.MethodPut, "/api/ninjas/"+p1, `{"rank":"gold belt"}`, token)
	if w.Code != http.StatusOK {
		t.Fatalf("update got %d body=%s", w.Code, w.Body.String())
	}

	var updated struct {
		Data struct {
			Rank string `json:"rank"`
		} `json:"data"`
	}
	decode(t, w, &updated)

	if updated.Data.Rank != "gold belt" {
		t.Fatalf("expected new rank, got %q", updated.Data.Rank)
	}

	if w := do(t, env.router, http.MethodPut, "/api/ninjas/3f0b6a5e-1111-4c2d-9c7e-2f8e0c5b9a10", `{"rank":"x"}`, token); w.Code != http.StatusNotFound {
		t.Fatalf("update unknown id got %d", w.Code)
	}
}

func TestBodyGuardsAndMetrics(t *testing.T) {
	env := setupRouter(t, testConfig())

	req := httptest.NewRequest(http.MethodPost, "/auth/signup", strings.NewReader("name=Kai"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415, got %d", w.Code)
	}

	token := signUp(t, env.router, "Kai", "kai@ninjago.io", "spinjitzu")

	req = httptest.NewRequest(http.MethodPost, "/api/ninjas", strings.NewReader("name=Kai"))
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("authenticated non-json create: expected 415, got %d", w.Code)
	}

	huge := `{"name":"` + strings.Repeat("a", 2<<20) + `","email":"kai@ninjago.io","password":"spinjitzu"}`
	if w := do(t, env.router, http.MethodPost, "/auth/signup", huge, ""); w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", w.Code)
	}

	w = do(t, env.router, http.MethodGet, "/metrics", "", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "ninjafinder_http_requests_total") {
		t.Fatalf("metrics missing: %d", w.Code)
	}

	if w := do(t, env.router, http.MethodGet, "/nope", "", ""); w.Code != http.StatusNotFound {
		t.Fatalf("unknown route got %d", w.Code)
	}
}

func TestAuthRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.AuthRateLimit = 2

	env := setupRouter(t, cfg)

	body := `{"email":"ghost@ninjago.io","password":"nope-nope"}`

	codes := []int{}
	for i := 0; i < 3; i++ {
		codes = append(codes, do(t, env.router, http.MethodPost, "/auth/login", body, "").Code)
	}

	if codes[2] != http.StatusTooManyRequests {
		t.Fatalf("expected third attempt to be limited, got %v", codes)
	}
}
