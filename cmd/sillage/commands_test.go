package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kalambet/sillage/internal/api"
	"github.com/kalambet/sillage/internal/collection"
	"github.com/kalambet/sillage/internal/config"
	"github.com/kalambet/sillage/internal/profile"
	"github.com/kalambet/sillage/internal/quota"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
	Auth   string
	User   string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
			Auth:   r.Header.Get("Authorization"),
			User:   r.Header.Get(api.UserHeader),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		user:       "ana",
		httpClient: ts.server.Client(),
	}
}

var ctx = context.Background()

func TestAPIClient_AuthAndUser(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /v1/quota": `{"quota":[]}`,
	})

	client := ts.client()
	client.token = "my-secret-token"

	resp, err := client.get(ctx, "/v1/quota")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	r := ts.requests[0]
	if r.Auth != "Bearer my-secret-token" {
		t.Errorf("auth = %q, want 'Bearer my-secret-token'", r.Auth)
	}
	if r.User != "ana" {
		t.Errorf("user header = %q, want ana", r.User)
	}
}

func TestScanRequest(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /v1/scans": `{"status":"identified","result":{"kind":"identified","identified":{"brand":"Creed","name":"Aventus","notes":{"top":["pineapple"],"heart":[],"base":[]}}},"item":{"id":"01HX","ai_data":{"brand":"Creed","name":"Aventus"}}}`,
	})

	client := ts.client()
	resp, err := client.post(ctx, "/v1/scans", api.FrameRequest{Image: "aGVsbG8=", MIMEType: "image/png"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var out api.ScanResponse
	if err := decodeJSON(resp, &out); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if out.Result.Identified == nil || out.Result.Identified.Brand != "Creed" {
		t.Fatalf("identified = %+v, want Creed", out.Result.Identified)
	}
	if out.Item == nil || out.Item.ID != "01HX" {
		t.Errorf("item = %+v, want id 01HX", out.Item)
	}

	var body map[string]any
	if err := json.Unmarshal([]byte(ts.requests[0].Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body["mime_type"] != "image/png" {
		t.Errorf("body.mime_type = %v, want image/png", body["mime_type"])
	}
}

func TestCollectionList(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /v1/collection": `[{"id":"a","ai_data":{"brand":"Dior","name":"Sauvage","user_review":{"rating":4}}}]`,
	})

	client := ts.client()
	resp, err := client.get(ctx, "/v1/collection?limit=10")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var items []collection.Item
	if err := decodeJSON(resp, &items); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if len(items) != 1 || items[0].AIData.Name != "Sauvage" {
		t.Fatalf("items = %+v", items)
	}
	if items[0].AIData.UserReview == nil || items[0].AIData.UserReview.Rating != 4 {
		t.Errorf("review = %+v, want rating 4", items[0].AIData.UserReview)
	}
	if ts.requests[0].Path != "/v1/collection?limit=10" {
		t.Errorf("path = %q", ts.requests[0].Path)
	}
}

func TestServerStopped(t *testing.T) {
	ts := newTestServer(t, map[string]string{})
	ts.server.Close()

	client := ts.client()
	_, err := client.get(ctx, "/health")
	if err == nil {
		t.Fatal("expected error for stopped server")
	}
	if !strings.Contains(err.Error(), "is sillage running") {
		t.Errorf("error = %q, want it to ask whether sillage is running", err.Error())
	}
}

func TestDecodeJSON_ErrorResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(401)
		w.Write([]byte(`{"error":{"message":"unauthorized","type":"auth_error"}}`))
	}))
	defer ts.Close()

	client := &apiClient{
		baseURL:    ts.URL,
		token:      "bad-token",
		httpClient: ts.Client(),
	}

	resp, err := client.get(ctx, "/v1/profile")
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}

	var result any
	err = decodeJSON(resp, &result)
	if err == nil {
		t.Fatal("expected error for 401 response")
	}
	if !strings.Contains(err.Error(), "401") || !strings.Contains(err.Error(), "unauthorized") {
		t.Errorf("error = %q, want status and message", err.Error())
	}
}

func TestDecodeJSON_LimitReached(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"daily scan limit reached (3/3)","type":"quota_exceeded"},"is_limit_reached":true}`))
	}))
	defer ts.Close()

	resp, err := (&apiClient{baseURL: ts.URL, httpClient: ts.Client()}).post(ctx, "/v1/scans", map[string]string{})
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}
	err = decodeJSON(resp, nil)
	if err == nil {
		t.Fatal("expected error for 429 response")
	}
	if !strings.HasPrefix(err.Error(), "daily limit reached") {
		t.Errorf("error = %q, want daily limit message", err.Error())
	}
}

func TestScanCommand_RequiresUser(t *testing.T) {
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"scan", "bottle.jpg"})
	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("expected error for missing --user")
	}
	if !strings.Contains(err.Error(), "--user is required") {
		t.Errorf("error = %q, want it to mention --user", err.Error())
	}
}

func TestNoColorFlag(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	result := colorize(colorGreen, "test message")
	if result != "test message" {
		t.Errorf("result = %q, want %q", result, "test message")
	}

	noColor = false
	result = colorize(colorGreen, "test message")
	if !strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", result)
	}
}

func TestConfigShowAll(t *testing.T) {
	cfg := config.Config{}
	cfg.Server.Port = 4100
	cfg.Server.APIToken = "secret"
	cfg.Gemini.Model = "gemini-2.0-flash"

	found := false
	for _, k := range config.ShowAll(cfg) {
		if k.Key == "server.port" && k.Value == "4100" {
			found = true
		}
		if strings.Contains(k.Value, "secret") {
			t.Errorf("ShowAll leaked a secret in %s", k.Key)
		}
	}
	if !found {
		t.Error("expected to find server.port=4100 in ShowAll output")
	}
}

func TestQuotaLabel(t *testing.T) {
	tests := []struct {
		d    quota.Decision
		want string
	}{
		{quota.Decision{Used: 1, Limit: 3, Allowed: true, Tier: profile.TierFree}, "1/3 used (free)"},
		{quota.Decision{Used: 3, Limit: 3, Tier: profile.TierFree}, "3/3 used (free), limit reached"},
		{quota.Decision{Used: 12, Allowed: true, Tier: profile.TierPro}, "12 used (pro, unlimited)"},
	}
	for _, tt := range tests {
		if got := quotaLabel(tt.d); got != tt.want {
			t.Errorf("quotaLabel(%+v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestProfilePatch(t *testing.T) {
	if got := profilePatch("scan_limit_daily", "10"); got["scan_limit_daily"] != 10 {
		t.Errorf("numeric value = %#v, want int 10", got["scan_limit_daily"])
	}
	if got := profilePatch("tier", "pro"); got["tier"] != "pro" {
		t.Errorf("string value = %#v, want pro", got["tier"])
	}
}

func TestPIDFile(t *testing.T) {
	path := pidFilePath(filepath.Join(t.TempDir(), "data"))
	if err := writePIDFile(path); err != nil {
		t.Fatalf("writePIDFile: %v", err)
	}
	pid, err := readPIDFile(path)
	if err != nil {
		t.Fatalf("readPIDFile: %v", err)
	}
	if pid <= 0 {
		t.Errorf("pid = %d, want positive", pid)
	}

	removePIDFile(path)
	if _, err := readPIDFile(path); err == nil {
		t.Error("expected error after removing PID file")
	}
}
