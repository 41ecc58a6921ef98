package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/apimgr/memberkit/src/server/session"
	"github.com/apimgr/memberkit/src/utils"
)

type wizardResponse struct {
	OK       bool              `json:"ok"`
	Step     int               `json:"step"`
	MaxStep  int               `json:"max_step"`
	Name     string            `json:"name"`
	Errors   []string          `json:"errors"`
	Invalid  []string          `json:"invalid"`
	Fields   map[string]string `json:"fields"`
	Redirect string            `json:"redirect"`
}

func setupTestRouter(t *testing.T) (*gin.Engine, *SetupHandler) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ctl, cfg := newTestController(t)
	store := session.NewStore(cfg.Session)
	h := NewSetupHandler(ctl, store, cfg, utils.NewDiscardLogger())

	r := gin.New()
	r.GET("/install", h.ShowStep)
	r.POST("/install", h.Submit)
	r.GET("/install/status", h.Status)
	return r, h
}

// wizardClient replays the session cookie between requests
type wizardClient struct {
	t      *testing.T
	router *gin.Engine
	cookie *http.Cookie
}

func (wc *wizardClient) do(method, target string, form url.Values) (*httptest.ResponseRecorder, wizardResponse) {
	wc.t.Helper()
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	req.Header.Set("Accept", "application/json")
	if wc.cookie != nil {
		req.AddCookie(wc.cookie)
	}

	w := httptest.NewRecorder()
	wc.router.ServeHTTP(w, req)
	for _, c := range w.Result().Cookies() {
		if c.Name == "memberkit_install" {
			wc.cookie = c
		}
	}

	var body wizardResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		wc.t.Fatalf("invalid JSON response %q: %v", w.Body.String(), err)
	}
	return w, body
}

func TestShowStepStartsSession(t *testing.T) {
	router, _ := setupTestRouter(t)
	wc := &wizardClient{t: t, router: router}

	w, body := wc.do(http.MethodGet, "/install", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if wc.cookie == nil || !wc.cookie.HttpOnly {
		t.Fatal("session cookie not set")
	}
	if body.Step != 1 || body.Name != "requirements" {
		t.Errorf("step = %d %s", body.Step, body.Name)
	}
	if body.Fields["db_driver"] != "sqlite" {
		t.Errorf("fields = %v", body.Fields)
	}
}

func TestSubmitPreservesFieldsWithoutSecrets(t *testing.T) {
	router, _ := setupTestRouter(t)
	wc := &wizardClient{t: t, router: router}

	wc.do(http.MethodPost, "/install", url.Values{"step": {"1"}})
	_, body := wc.do(http.MethodPost, "/install", url.Values{"step": {"2"}, "db_driver": {"sqlite"}, "db_name": {"club.db"}})
	if !body.OK || body.Step != 3 {
		t.Fatalf("database step: %+v", body)
	}

	form := adminForm("Alice")
	form.Set("step", "3")
	form.Set("admin_confirm", "different password")
	_, body = wc.do(http.MethodPost, "/install", form)
	if body.OK {
		t.Fatal("expected validation failure")
	}
	if body.Step != 3 {
		t.Errorf("step = %d, want 3", body.Step)
	}
	if body.Fields["admin_name"] != "Alice" {
		t.Errorf("admin_name not preserved: %v", body.Fields)
	}
	if _, ok := body.Fields["admin_password"]; ok {
		t.Error("password echoed back")
	}
	if len(body.Invalid) != 1 || body.Invalid[0] != "admin_confirm" {
		t.Errorf("invalid = %v", body.Invalid)
	}
}

func TestSubmitCannotSkipAhead(t *testing.T) {
	router, h := setupTestRouter(t)
	wc := &wizardClient{t: t, router: router}

	_, body := wc.do(http.MethodPost, "/install", url.Values{"step": {"5"}})
	if body.OK || len(body.Errors) == 0 {
		t.Fatalf("step 5 accepted on a fresh session: %+v", body)
	}
	if body.Step != 1 || body.MaxStep != 1 {
		t.Errorf("position = %d/%d", body.Step, body.MaxStep)
	}
	if IsInstalled(h.cfg) {
		t.Error("configuration written")
	}

	// revisiting is limited to steps already reached
	_, body = wc.do(http.MethodGet, "/install?step=4", nil)
	if body.Step != 1 {
		t.Errorf("GET ?step=4 moved to %d", body.Step)
	}
}

func TestWizardOverHTTP(t *testing.T) {
	router, h := setupTestRouter(t)
	wc := &wizardClient{t: t, router: router}

	steps := []url.Values{
		{"step": {"1"}},
		{"step": {"2"}, "db_driver": {"sqlite"}, "db_name": {"club.db"}},
		func() url.Values { f := adminForm("Alice"); f.Set("step", "3"); return f }(),
		{"step": {"4"}, "modules[]": {"hcaptcha"}},
		{"step": {"5"}},
	}
	for i, form := range steps {
		_, body := wc.do(http.MethodPost, "/install", form)
		if !body.OK {
			t.Fatalf("step %d failed: %v", i+1, body.Errors)
		}
	}

	_, body := wc.do(http.MethodGet, "/install?step=2", nil)
	if body.Step != 2 || body.MaxStep != 6 {
		t.Errorf("revisit = %d/%d", body.Step, body.MaxStep)
	}

	_, body = wc.do(http.MethodPost, "/install", url.Values{"step": {"6"}, "remove_installer": {"yes"}})
	if body.Redirect != "https://club.example.com/login.php" {
		t.Errorf("redirect = %q", body.Redirect)
	}
	if wc.cookie.MaxAge >= 0 {
		t.Error("session cookie not cleared")
	}
	if h.store.Count() != 0 {
		t.Errorf("sessions = %d", h.store.Count())
	}
}

func TestStatus(t *testing.T) {
	router, _ := setupTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/install/status", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var body struct {
		Installed bool `json:"installed"`
		Version   string
		Steps     []stepView
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Installed || body.Version != "1.0.0-test" || len(body.Steps) != 6 {
		t.Errorf("status = %+v", body)
	}
}

func TestStatusDuringSubmit(t *testing.T) {
	router, _ := setupTestRouter(t)
	wc := &wizardClient{t: t, router: router}
	wc.do(http.MethodGet, "/install", nil)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			req := httptest.NewRequest(http.MethodPost, "/install", strings.NewReader("step=1"))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			req.Header.Set("Accept", "application/json")
			req.AddCookie(wc.cookie)
			router.ServeHTTP(httptest.NewRecorder(), req)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			req := httptest.NewRequest(http.MethodGet, "/install/status", nil)
			req.AddCookie(wc.cookie)
			router.ServeHTTP(httptest.NewRecorder(), req)
		}
	}()
	wg.Wait()

	req := httptest.NewRequest(http.MethodGet, "/install/status", nil)
	req.AddCookie(wc.cookie)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	var body struct {
		Step    int `json:"step"`
		MaxStep int `json:"max_step"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Step != 2 || body.MaxStep != 2 {
		t.Errorf("status = %d/%d, want 2/2", body.Step, body.MaxStep)
	}
}

func TestWantsJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tests := []struct {
		name   string
		target string
		accept string
		agent  string
		want   bool
	}{
		{"browser", "/install", "text/html,application/xhtml+xml", "Mozilla/5.0", false},
		{"json accept", "/install", "application/json", "", true},
		{"format query", "/install?format=json", "", "", true},
		{"curl", "/install", "*/*", "curl/8.5.0", true},
		{"curl asking for html", "/install", "text/html", "curl/8.5.0", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest(http.MethodGet, tt.target, nil)
			c.Request.Header.Set("Accept", tt.accept)
			c.Request.Header.Set("User-Agent", tt.agent)
			if got := WantsJSON(c); got != tt.want {
				t.Errorf("WantsJSON() = %v, want %v", got, tt.want)
			}
		})
	}
}
