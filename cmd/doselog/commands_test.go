package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kalambet/doselog/internal/config"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
	Auth   string
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
		httpClient: ts.server.Client(),
	}
}

var ctx = context.Background()

func TestWeightAdd(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /weights": `{"ID":"11111111-0000-0000-0000-000000000000","WeightKg":82.4}`,
	})

	client := ts.client()
	resp, err := client.post(ctx, "/weights", map[string]any{
		"weight_kg": 82.4,
		"note":      "morning",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var entry struct {
		ID       string  `json:"ID"`
		WeightKg float64 `json:"WeightKg"`
	}
	if err := decodeJSON(resp, &entry); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if entry.WeightKg != 82.4 {
		t.Errorf("weight = %v, want 82.4", entry.WeightKg)
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	r := ts.requests[0]
	if r.Method != "POST" || r.Path != "/weights" {
		t.Errorf("request = %s %s, want POST /weights", r.Method, r.Path)
	}
	if r.Auth != "Bearer test-token" {
		t.Errorf("auth = %q, want Bearer test-token", r.Auth)
	}

	var body map[string]any
	if err := json.Unmarshal([]byte(r.Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body["weight_kg"] != 82.4 {
		t.Errorf("body.weight_kg = %v, want 82.4", body["weight_kg"])
	}
	if body["note"] != "morning" {
		t.Errorf("body.note = %v, want morning", body["note"])
	}
}

func TestShotList(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /injections": `[{"ID":"a1b2c3d4-0000-0000-0000-000000000000","InjectedAt":"2025-06-01T08:00:00Z","Medication":"semaglutide","DoseMg":0.25,"Site":"abdomen"}]`,
	})

	client := ts.client()
	resp, err := client.get(ctx, "/injections?limit=20")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var injections []struct {
		ID         string  `json:"ID"`
		Medication string  `json:"Medication"`
		DoseMg     float64 `json:"DoseMg"`
	}
	if err := decodeJSON(resp, &injections); err != nil {
		t.Fatalf("decode error: %v", err)
	}

	if len(injections) != 1 {
		t.Fatalf("expected 1 injection, got %d", len(injections))
	}
	if injections[0].Medication != "semaglutide" {
		t.Errorf("medication = %q, want semaglutide", injections[0].Medication)
	}
	if injections[0].DoseMg != 0.25 {
		t.Errorf("dose = %v, want 0.25", injections[0].DoseMg)
	}
}

func TestLoginCommand_MissingFlags(t *testing.T) {
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"login"})
	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("expected error for missing flags")
	}
	if !strings.Contains(err.Error(), "required") {
		t.Errorf("error = %q, want it to mention 'required'", err.Error())
	}
}

func TestSyncNowCommand(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /sync/now": `{"kind":"synced","display":"synced just now"}`,
	})

	old := newAPIClient
	defer func() { newAPIClient = old }()
	newAPIClient = func() (*apiClient, error) {
		return ts.client(), nil
	}

	defer rootCmd.SetArgs(nil)
	rootCmd.SetArgs([]string{"sync", "now", "--no-color"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	if ts.requests[0].Method != "POST" || ts.requests[0].Path != "/sync/now" {
		t.Errorf("request = %s %s, want POST /sync/now", ts.requests[0].Method, ts.requests[0].Path)
	}
}

func TestParsePhase(t *testing.T) {
	tests := []struct {
		spec     string
		wantDose float64
		wantDays int
		wantErr  bool
	}{
		{"0.25:28", 0.25, 28, false},
		{"2.5:56", 2.5, 56, false},
		{"0.25", 0, 0, true},
		{"abc:28", 0, 0, true},
		{"0.25:four", 0, 0, true},
	}
	for _, tt := range tests {
		dose, days, err := parsePhase(tt.spec)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parsePhase(%q) expected error", tt.spec)
			}
			continue
		}
		if err != nil {
			t.Errorf("parsePhase(%q) unexpected error: %v", tt.spec, err)
			continue
		}
		if dose != tt.wantDose || days != tt.wantDays {
			t.Errorf("parsePhase(%q) = (%v, %d), want (%v, %d)", tt.spec, dose, days, tt.wantDose, tt.wantDays)
		}
	}
}

func TestResolveID_Prefix(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /weights": `[{"ID":"aaaa1111-0000-0000-0000-000000000000"},{"ID":"bbbb2222-0000-0000-0000-000000000000"}]`,
	})

	client := ts.client()
	id, err := resolveID(ctx, client, "/weights", "aaaa")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "aaaa1111-0000-0000-0000-000000000000" {
		t.Errorf("id = %q, want the aaaa row", id)
	}
}

func TestResolveID_Ambiguous(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /weights": `[{"ID":"aaaa1111-0000-0000-0000-000000000000"},{"ID":"aaaa2222-0000-0000-0000-000000000000"}]`,
	})

	_, err := resolveID(ctx, ts.client(), "/weights", "aaaa")
	if err == nil {
		t.Fatal("expected error for ambiguous prefix")
	}
	if !strings.Contains(err.Error(), "ambiguous") {
		t.Errorf("error = %q, want it to mention 'ambiguous'", err.Error())
	}
}

func TestResolveID_FullIDSkipsLookup(t *testing.T) {
	ts := newTestServer(t, map[string]string{})

	full := "cccc3333-0000-0000-0000-000000000000"
	id, err := resolveID(ctx, ts.client(), "/weights", full)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != full {
		t.Errorf("id = %q, want %q", id, full)
	}
	if len(ts.requests) != 0 {
		t.Errorf("expected no requests for a full-length ID, got %d", len(ts.requests))
	}
}

func TestStatusCommand_Stopped(t *testing.T) {
	ts := newTestServer(t, map[string]string{})
	ts.server.Close()

	client := ts.client()
	_, err := client.get(ctx, "/health")
	if err == nil {
		t.Fatal("expected error for stopped server")
	}
	if !strings.Contains(err.Error(), "not reachable") {
		t.Errorf("error = %q, want it to mention 'not reachable'", err.Error())
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

	resp, err := client.get(ctx, "/weights")
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}

	var result any
	err = decodeJSON(resp, &result)
	if err == nil {
		t.Fatal("expected error for 401 response")
	}
	if !strings.Contains(err.Error(), "401") {
		t.Errorf("error = %q, want it to contain '401'", err.Error())
	}
}

func TestNoColorFlag(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	result := colorize(colorGreen, "test message")
	if strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=true should not contain ANSI codes, got %q", result)
	}
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
	cfg.Server.Port = 4600
	cfg.Remote.BaseURL = "https://sync.example.com"

	keys := config.ShowAll(cfg)
	if len(keys) == 0 {
		t.Fatal("expected non-empty keys from ShowAll")
	}

	found := false
	for _, k := range keys {
		if k.Key == "server.api_token" {
			t.Error("ShowAll must not expose secret keys")
		}
		if k.Key == "server.port" && k.Value == "4600" {
			found = true
		}
	}
	if !found {
		t.Error("expected to find server.port=4600 in ShowAll output")
	}
}
