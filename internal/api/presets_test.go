package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kalambet/prefsets/internal/kv"
	"github.com/kalambet/prefsets/internal/preset"
)

const testToken = "test-token-12345"

func setupHandler(t *testing.T) (http.Handler, *preset.Registry) {
	t.Helper()
	reg, err := preset.New(kv.NewMemory())
	if err != nil {
		t.Fatalf("preset.New: %v", err)
	}
	return NewHandler(Deps{Registry: reg, Token: testToken}), reg
}

func authReq(method, url, body, token string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, url, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHealthNeedsNoAuth(t *testing.T) {
	h, _ := setupHandler(t)
	rr := serve(h, authReq(http.MethodGet, "/health", "", ""))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	h, _ := setupHandler(t)

	for _, tok := range []string{"", "wrong"} {
		rr := serve(h, authReq(http.MethodGet, "/presets", "", tok))
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("token %q: status = %d, want 401", tok, rr.Code)
		}
	}

	// The query token is only honoured on websocket upgrades.
	rr := serve(h, authReq(http.MethodGet, "/presets?token="+testToken, "", ""))
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("query token on plain request: status = %d, want 401", rr.Code)
	}
}

func TestListPresets(t *testing.T) {
	h, reg := setupHandler(t)
	if err := reg.Add("WORK"); err != nil {
		t.Fatal(err)
	}

	rr := serve(h, authReq(http.MethodGet, "/presets", "", testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var got PresetList
	if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if strings.Join(got.Presets, ",") != "DEFAULT,WORK" {
		t.Errorf("presets = %v, want [DEFAULT WORK]", got.Presets)
	}
	if got.Active != "DEFAULT" {
		t.Errorf("active = %q, want DEFAULT", got.Active)
	}
}

func TestAddPreset(t *testing.T) {
	h, _ := setupHandler(t)

	tests := []struct {
		body string
		want int
	}{
		{`{"name":"WORK"}`, http.StatusCreated},
		{`{"name":"WORK"}`, http.StatusConflict},
		{`{"name":"work"}`, http.StatusConflict},
		{`{"name":""}`, http.StatusBadRequest},
		{`{"name":"CURRPRESET"}`, http.StatusBadRequest},
		{`not json`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		rr := serve(h, authReq(http.MethodPost, "/presets", tt.body, testToken))
		if rr.Code != tt.want {
			t.Errorf("POST %s: status = %d, want %d; body = %s", tt.body, rr.Code, tt.want, rr.Body.String())
		}
	}
}

func TestRemovePreset(t *testing.T) {
	h, reg := setupHandler(t)
	reg.Add("WORK")

	if rr := serve(h, authReq(http.MethodDelete, "/presets/WORK", "", testToken)); rr.Code != http.StatusOK {
		t.Errorf("DELETE WORK: status = %d", rr.Code)
	}
	if rr := serve(h, authReq(http.MethodDelete, "/presets/WORK", "", testToken)); rr.Code != http.StatusNotFound {
		t.Errorf("DELETE WORK again: status = %d, want 404", rr.Code)
	}
	if rr := serve(h, authReq(http.MethodDelete, "/presets/DEFAULT", "", testToken)); rr.Code != http.StatusBadRequest {
		t.Errorf("DELETE DEFAULT: status = %d, want 400", rr.Code)
	}
}

func TestSetActive(t *testing.T) {
	h, reg := setupHandler(t)
	reg.Add("WORK")

	rr := serve(h, authReq(http.MethodPut, "/presets/active", `{"name":"WORK"}`, testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	if active, _ := reg.ActiveName(); active != "WORK" {
		t.Errorf("active = %q, want WORK", active)
	}

	rr = serve(h, authReq(http.MethodPut, "/presets/active", `{"name":"GHOST"}`, testToken))
	if rr.Code != http.StatusNotFound {
		t.Errorf("unknown preset: status = %d, want 404", rr.Code)
	}
}

func TestSettingLifecycle(t *testing.T) {
	h, reg := setupHandler(t)
	reg.Add("WORK")
	reg.Default().Edit().PutString("theme", "light").Commit()

	rr := serve(h, authReq(http.MethodPut, "/presets/WORK/settings/fontSize", `{"value":14}`, testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("PUT: status = %d; body = %s", rr.Code, rr.Body.String())
	}
	if got, _ := reg.Preset("WORK").GetInt("fontSize", 10); got != 14 {
		t.Errorf("fontSize = %d, want 14", got)
	}

	rr = serve(h, authReq(http.MethodGet, "/presets/WORK/settings/theme", "", testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("GET: status = %d", rr.Code)
	}
	var s Setting
	json.NewDecoder(rr.Body).Decode(&s)
	if s.Value != "light" || !s.Inherited || s.Type != "string" {
		t.Errorf("theme = %+v, want inherited string light", s)
	}

	rr = serve(h, authReq(http.MethodGet, "/presets/WORK/settings", "", testToken))
	var own map[string]Value
	json.NewDecoder(rr.Body).Decode(&own)
	if len(own) != 1 || own["fontSize"].Type != "int" {
		t.Errorf("own settings = %v, want only fontSize", own)
	}

	rr = serve(h, authReq(http.MethodGet, "/presets/WORK/settings?effective=true", "", testToken))
	var eff map[string]Value
	json.NewDecoder(rr.Body).Decode(&eff)
	if len(eff) != 2 || eff["theme"].Value != "light" {
		t.Errorf("effective settings = %v", eff)
	}

	rr = serve(h, authReq(http.MethodDelete, "/presets/WORK/settings/fontSize", "", testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("DELETE: status = %d", rr.Code)
	}
	rr = serve(h, authReq(http.MethodGet, "/presets/WORK/settings/fontSize", "", testToken))
	if rr.Code != http.StatusNotFound {
		t.Errorf("GET after delete: status = %d, want 404", rr.Code)
	}
}

func TestPutSettingBadInput(t *testing.T) {
	h, reg := setupHandler(t)
	reg.Add("WORK")

	tests := []struct {
		path string
		body string
		want int
	}{
		{"/presets/WORK/settings/k", `{"type":"int","value":"abc"}`, http.StatusBadRequest},
		{"/presets/WORK/settings/k", `{"type":"matrix","value":1}`, http.StatusBadRequest},
		{"/presets/WORK/settings/k", `{}`, http.StatusBadRequest},
		{"/presets/GHOST/settings/k", `{"value":1}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		rr := serve(h, authReq(http.MethodPut, tt.path, tt.body, testToken))
		if rr.Code != tt.want {
			t.Errorf("PUT %s %s: status = %d, want %d", tt.path, tt.body, rr.Code, tt.want)
		}
	}
}
