package httpclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/zoobzio/gimbal"
)

func okOutcome(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(gimbal.Outcome{Success: true, Message: message})
}

func TestFetchSettings(t *testing.T) {
	doc := gimbal.DefaultDocument()
	doc.DownloadDir = "/srv/models"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/settings/" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(doc)
	}))
	defer srv.Close()

	got, err := New(srv.URL).FetchSettings(context.Background())
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if got.DownloadDir != "/srv/models" {
		t.Errorf("expected /srv/models, got %q", got.DownloadDir)
	}
}

func TestApplySettingsSendsPatchOnly(t *testing.T) {
	var received map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/settings/" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&received)
		okOutcome(w, "Settings updated")
	}))
	defer srv.Close()

	out, err := New(srv.URL).ApplySettings(context.Background(), gimbal.Patch{"aria2_split": 32})
	if err != nil || !out.Success {
		t.Fatalf("apply failed: out=%+v err=%v", out, err)
	}
	if len(received) != 1 {
		t.Errorf("expected a one-field patch on the wire, got %v", received)
	}
	if v, ok := received["aria2_split"].(float64); !ok || v != 32 {
		t.Errorf("expected aria2_split=32, got %v", received["aria2_split"])
	}
}

func TestRejectionIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(gimbal.Outcome{Success: false, Message: "Invalid directory path"})
	}))
	defer srv.Close()

	out, err := New(srv.URL).ApplySettings(context.Background(), gimbal.Patch{"download_dir": "bad"})
	if err != nil {
		t.Fatalf("rejection must not be a transport error: %v", err)
	}
	if out.Success || out.Message != "Invalid directory path" {
		t.Errorf("expected verbatim rejection, got %+v", out)
	}
}

func TestNon2xxIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := New(srv.URL).ApplySettings(context.Background(), gimbal.Patch{"aria2_split": 32})
	if err == nil {
		t.Fatal("expected error for 500 response")
	}
}

func TestAccountRoutes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/auth/accounts":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"accounts": []gimbal.Account{{Username: "alice"}},
			})
		case r.Method == http.MethodPost && r.URL.Path == "/auth/switch":
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			okOutcome(w, "Switched to "+body["username"])
		case r.Method == http.MethodDelete && r.URL.Path == "/auth/accounts/alice":
			okOutcome(w, "Account removed")
		case r.Method == http.MethodPost && r.URL.Path == "/auth/login":
			okOutcome(w, "Logged in")
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := New(srv.URL)
	ctx := context.Background()

	accounts, err := c.FetchAccounts(ctx)
	if err != nil || len(accounts) != 1 || accounts[0].Username != "alice" {
		t.Errorf("fetch accounts: %v err=%v", accounts, err)
	}
	if out, err := c.SwitchAccount(ctx, "alice"); err != nil || out.Message != "Switched to alice" {
		t.Errorf("switch: out=%+v err=%v", out, err)
	}
	if out, err := c.DeleteAccount(ctx, "alice"); err != nil || !out.Success {
		t.Errorf("delete: out=%+v err=%v", out, err)
	}
	if out, err := c.Login(ctx, "hf_token"); err != nil || !out.Success {
		t.Errorf("login: out=%+v err=%v", out, err)
	}
}

func TestMirrorAndHistoryRoutes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/settings/mirrors":
			var req gimbal.MirrorRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			if req.Name != "Lab" {
				t.Errorf("unexpected mirror request %+v", req)
			}
			okOutcome(w, "Mirror added")
		case r.Method == http.MethodDelete && r.URL.Path == "/settings/mirrors/custom_abc":
			okOutcome(w, "Mirror removed")
		case r.Method == http.MethodPost && r.URL.Path == "/settings/delete-history":
			if r.URL.Query().Get("path") != "/old" || r.URL.Query().Get("type") != "cache" {
				t.Errorf("unexpected query %s", r.URL.RawQuery)
			}
			okOutcome(w, "History item removed")
		case r.Method == http.MethodPost && r.URL.Path == "/settings/validate-token":
			_ = json.NewEncoder(w).Encode(gimbal.TokenInfo{Valid: true, Username: "alice"})
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := New(srv.URL)
	ctx := context.Background()

	if out, err := c.AddMirror(ctx, gimbal.MirrorRequest{Name: "Lab", URL: "https://mirror.lab.internal"}); err != nil || !out.Success {
		t.Errorf("add mirror: out=%+v err=%v", out, err)
	}
	if out, err := c.RemoveMirror(ctx, "custom_abc"); err != nil || !out.Success {
		t.Errorf("remove mirror: out=%+v err=%v", out, err)
	}
	if out, err := c.DeleteHistory(ctx, gimbal.HistoryCache, "/old"); err != nil || !out.Success {
		t.Errorf("delete history: out=%+v err=%v", out, err)
	}
	if info, err := c.ValidateToken(ctx, "hf_token"); err != nil || !info.Valid {
		t.Errorf("validate token: info=%+v err=%v", info, err)
	}
}

func TestUnreachableServer(t *testing.T) {
	c := New("http://127.0.0.1:1")
	if _, err := c.FetchSettings(context.Background()); err == nil {
		t.Error("expected error for unreachable server")
	}
}
