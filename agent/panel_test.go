package agent_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vixlabs/vix/agent"
	"github.com/vixlabs/vix/dom/memdom"
	_ "modernc.org/sqlite"
)

func newPanel(t *testing.T, a *agent.Agent) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(a.Routes())
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decode GET %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func sendJSON(t *testing.T, method, url, body string, v any) int {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("build %s %s: %v", method, url, err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	if v != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decode %s %s: %v", method, url, err)
		}
	}
	return resp.StatusCode
}

func TestPanel_HealthAndStatus(t *testing.T) {
	f := newFakeBackend(t)
	doc := memdom.MustParse(pageHTML, "https://shop.example/")
	a := newAgent(t, doc, f)
	srv := newPanel(t, a)

	if code := getJSON(t, srv.URL+"/health", nil); code != 200 {
		t.Fatalf("GET /health = %d", code)
	}

	var page struct {
		Summary string `json:"summary"`
		Title   string `json:"title"`
	}
	if code := sendJSON(t, "POST", srv.URL+"/analyze", "", &page); code != 200 {
		t.Fatalf("POST /analyze = %d", code)
	}
	if page.Summary != "An outdoor equipment shop." || page.Title != "Mountain Gear" {
		t.Errorf("analyze response = %+v", page)
	}

	var status struct {
		Session struct {
			Page struct {
				URL string `json:"url"`
			} `json:"page"`
		} `json:"session"`
		Coordinator struct {
			Navigations int64 `json:"navigations"`
		} `json:"coordinator"`
	}
	if code := getJSON(t, srv.URL+"/status", &status); code != 200 {
		t.Fatalf("GET /status = %d", code)
	}
	if status.Session.Page.URL != "https://shop.example/" {
		t.Errorf("status url = %q", status.Session.Page.URL)
	}
}

func TestPanel_DescribeAndProgress(t *testing.T) {
	f := newFakeBackend(t)
	doc := memdom.MustParse(pageHTML, "https://shop.example/")
	a := newAgent(t, doc, f)
	srv := newPanel(t, a)

	var out struct {
		Progress struct {
			Total     int `json:"total"`
			Completed int `json:"completed"`
		} `json:"progress"`
		Applied int `json:"applied"`
	}
	if code := sendJSON(t, "POST", srv.URL+"/describe", "", &out); code != 200 {
		t.Fatalf("POST /describe = %d", code)
	}
	if out.Progress.Completed != 1 || out.Applied != 1 {
		t.Errorf("describe response = %+v", out)
	}

	var prog struct {
		Completed int `json:"completed"`
	}
	if code := getJSON(t, srv.URL+"/progress", &prog); code != 200 {
		t.Fatalf("GET /progress = %d", code)
	}
	if prog.Completed != 1 {
		t.Errorf("progress completed = %d, want 1", prog.Completed)
	}
}

func TestPanel_AuditRoutes(t *testing.T) {
	f := newFakeBackend(t)
	doc := memdom.MustParse(auditHTML, "https://shop.example/")
	a := newAgent(t, doc, f)
	srv := newPanel(t, a)

	var run struct {
		Violations []struct {
			RuleID string `json:"rule_id"`
		} `json:"violations"`
		Applied int `json:"applied"`
	}
	if code := sendJSON(t, "POST", srv.URL+"/audit", "", &run); code != 200 {
		t.Fatalf("POST /audit = %d", code)
	}
	if len(run.Violations) != 1 || run.Applied != 1 {
		t.Fatalf("audit run = %+v", run)
	}

	var report struct {
		Violations []struct {
			RuleID string `json:"rule_id"`
		} `json:"violations"`
	}
	if code := getJSON(t, srv.URL+"/audit", &report); code != 200 {
		t.Fatalf("GET /audit = %d", code)
	}
	if len(report.Violations) != 1 || report.Violations[0].RuleID != "img-missing-alt" {
		t.Errorf("audit report = %+v", report)
	}
}

func TestPanel_TaskValidation(t *testing.T) {
	f := newFakeBackend(t)
	doc := memdom.MustParse(pageHTML, "https://shop.example/")
	a := newAgent(t, doc, f)
	srv := newPanel(t, a)

	if code := sendJSON(t, "POST", srv.URL+"/task", `{"prompt":""}`, nil); code != 400 {
		t.Errorf("empty prompt = %d, want 400", code)
	}
	if code := sendJSON(t, "POST", srv.URL+"/task", "", nil); code != 400 {
		t.Errorf("missing body = %d, want 400", code)
	}

	var out struct {
		Explanation string `json:"explanation"`
		Failed      int    `json:"failed"`
	}
	if code := sendJSON(t, "POST", srv.URL+"/task", `{"prompt":"search for tents"}`, &out); code != 200 {
		t.Fatalf("POST /task = %d", code)
	}
	if out.Explanation != "Search for tents." || out.Failed != 0 {
		t.Errorf("task response = %+v", out)
	}
}

func TestPanel_Settings(t *testing.T) {
	f := newFakeBackend(t)
	doc := memdom.MustParse(pageHTML, "https://shop.example/")
	a := newAgent(t, doc, f, func(c *agent.Config) {
		c.Settings.Path = filepath.Join(t.TempDir(), "settings.db")
	})
	srv := newPanel(t, a)

	var got struct {
		Language   string `json:"language"`
		Persistent bool   `json:"persistent"`
		Exclusions struct {
			Icons bool `json:"icons"`
			Logo  bool `json:"logo"`
		} `json:"exclusions"`
	}
	if code := getJSON(t, srv.URL+"/settings", &got); code != 200 {
		t.Fatalf("GET /settings = %d", code)
	}
	if got.Language != "en" || !got.Persistent {
		t.Errorf("defaults = %+v", got)
	}
	if !got.Exclusions.Icons || got.Exclusions.Logo {
		t.Errorf("default exclusions = %+v", got.Exclusions)
	}

	code := sendJSON(t, "PUT", srv.URL+"/settings",
		`{"language":"fr","exclusions":{"logo":true,"icons":false,"decorative":true}}`, &got)
	if code != 200 {
		t.Fatalf("PUT /settings = %d", code)
	}
	if got.Language != "fr" || !got.Exclusions.Logo || got.Exclusions.Icons {
		t.Errorf("updated settings = %+v", got)
	}

	// The persisted values survive a fresh read.
	if code := getJSON(t, srv.URL+"/settings", &got); code != 200 {
		t.Fatalf("GET /settings after update = %d", code)
	}
	if got.Language != "fr" || !got.Exclusions.Logo {
		t.Errorf("settings after reread = %+v", got)
	}
}

func TestPanel_SettingsWithoutStore(t *testing.T) {
	f := newFakeBackend(t)
	doc := memdom.MustParse(pageHTML, "https://shop.example/")
	a := newAgent(t, doc, f)
	srv := newPanel(t, a)

	var got struct {
		Persistent bool `json:"persistent"`
	}
	if code := getJSON(t, srv.URL+"/settings", &got); code != 200 || got.Persistent {
		t.Fatalf("GET /settings = %d persistent=%v", code, got.Persistent)
	}
	if code := sendJSON(t, "PUT", srv.URL+"/settings", `{"language":"fr"}`, nil); code != 409 {
		t.Errorf("PUT /settings without store = %d, want 409", code)
	}
}
