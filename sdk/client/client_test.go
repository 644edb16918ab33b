package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func writeEnvelope(w http.ResponseWriter, code int, body map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

func TestNewClient(t *testing.T) {
	// Test with nil config
	client := NewClient(nil)
	if client.config.BaseURL != "http://localhost:8080" {
		t.Errorf("Expected default BaseURL, got %s", client.config.BaseURL)
	}
	if client.client != http.DefaultClient {
		t.Error("Expected default HTTP client")
	}

	// Test with custom config
	customConfig := &Config{
		BaseURL:    "http://example.com",
		Timeout:    5 * time.Second,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
	client = NewClient(customConfig)
	if client.config.BaseURL != "http://example.com" {
		t.Errorf("Expected custom BaseURL, got %s", client.config.BaseURL)
	}
	if client.client != customConfig.HTTPClient {
		t.Error("Expected custom HTTP client")
	}
}

func TestLoginStoresToken(t *testing.T) {
	var sawAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/login":
			if r.Method != http.MethodPost {
				t.Errorf("Expected POST request, got %s", r.Method)
			}
			var req LoginRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("Failed to decode request: %v", err)
			}
			if req.Email != "alice@example.com" {
				t.Errorf("Expected alice@example.com, got %s", req.Email)
			}
			writeEnvelope(w, http.StatusOK, map[string]interface{}{
				"success": true,
				"data": map[string]interface{}{
					"token": "jwt-123",
					"user":  map[string]interface{}{"id": "u1", "email": req.Email, "role": "user"},
				},
			})
		case "/api/auth/me":
			sawAuth = r.Header.Get("Authorization")
			writeEnvelope(w, http.StatusOK, map[string]interface{}{
				"success": true,
				"data": map[string]interface{}{
					"user":        map[string]interface{}{"id": "u1", "email": "alice@example.com"},
					"permissions": []string{"view_dashboard"},
				},
			})
		default:
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	c := NewClient(&Config{BaseURL: server.URL, Timeout: 5 * time.Second})

	session, err := c.Login(context.Background(), &LoginRequest{Email: "alice@example.com", Password: "pw"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if session.Token != "jwt-123" || session.User.Email != "alice@example.com" {
		t.Errorf("Unexpected session %+v", session)
	}

	profile, err := c.Me(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if sawAuth != "Bearer jwt-123" {
		t.Errorf("Expected bearer token, got %q", sawAuth)
	}
	if len(profile.Permissions) != 1 || profile.Permissions[0] != "view_dashboard" {
		t.Errorf("Unexpected permissions %v", profile.Permissions)
	}
}

func TestLoginValidation(t *testing.T) {
	c := NewClient(&Config{BaseURL: "http://127.0.0.1:0"})

	if _, err := c.Login(context.Background(), nil); err == nil {
		t.Error("Expected error for nil request")
	}
	if _, err := c.Login(context.Background(), &LoginRequest{Email: "a@b.com"}); err == nil {
		t.Error("Expected error for missing password")
	}
}

func TestAPIErrorDecoding(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusBadRequest, map[string]interface{}{
			"success": false,
			"error":   "Validation failed",
			"errors":  map[string]string{"name": "is required"},
		})
	}))
	defer server.Close()

	c := NewClient(&Config{BaseURL: server.URL, Token: "t"})
	_, err := c.CreateOrganization(context.Background(), &CreateOrganizationRequest{Name: "Acme"})
	if err == nil {
		t.Fatal("Expected error")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected APIError, got %T", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", apiErr.StatusCode)
	}
	if apiErr.Message != "Validation failed" {
		t.Errorf("Unexpected message %q", apiErr.Message)
	}
	if apiErr.Fields["name"] != "is required" {
		t.Errorf("Unexpected fields %v", apiErr.Fields)
	}
	if !IsStatus(err, http.StatusBadRequest) {
		t.Error("Expected IsStatus to match 400")
	}
}

func TestUndecodableErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer server.Close()

	c := NewClient(&Config{BaseURL: server.URL})
	_, err := c.PublicSettings(context.Background())
	if !IsStatus(err, http.StatusBadGateway) {
		t.Errorf("Expected 502 APIError, got %v", err)
	}
}

func TestInvitationFlow(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/organizations/org-1/invitations":
			writeEnvelope(w, http.StatusCreated, map[string]interface{}{
				"success": true,
				"data": map[string]interface{}{
					"invitation": map[string]interface{}{"id": "inv-1", "email": "bob@example.com", "role": "member", "status": "pending"},
					"token":      "raw-token",
					"email_sent": true,
				},
			})
		case r.Method == http.MethodGet && r.URL.Path == "/api/invitations/raw-token":
			writeEnvelope(w, http.StatusOK, map[string]interface{}{
				"success": true,
				"data":    map[string]interface{}{"id": "inv-1", "organization_name": "Acme", "role": "member"},
			})
		case r.Method == http.MethodPost && r.URL.Path == "/api/invitations/accept":
			var body map[string]string
			json.NewDecoder(r.Body).Decode(&body)
			if body["token"] != "raw-token" {
				t.Errorf("Expected raw-token, got %q", body["token"])
			}
			writeEnvelope(w, http.StatusOK, map[string]interface{}{
				"success": true,
				"data":    map[string]interface{}{"organization_id": "org-1", "role": "member"},
			})
		default:
			t.Errorf("Unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	c := NewClient(&Config{BaseURL: server.URL, Token: "t"})
	ctx := context.Background()

	result, err := c.CreateInvitation(ctx, "org-1", &CreateInvitationRequest{Email: "bob@example.com", Role: "member"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result.Token != "raw-token" || !result.EmailSent || result.Invitation.Status != "pending" {
		t.Errorf("Unexpected result %+v", result)
	}

	preview, err := c.LookupInvitation(ctx, result.Token)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if preview.OrganizationName != "Acme" {
		t.Errorf("Expected Acme, got %s", preview.OrganizationName)
	}

	member, err := c.AcceptInvitation(ctx, result.Token)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if member.OrganizationID != "org-1" || member.Role != "member" {
		t.Errorf("Unexpected membership %+v", member)
	}
}

func TestListUsersQuery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("search") != "bob" || q.Get("page") != "2" || q.Get("page_size") != "5" {
			t.Errorf("Unexpected query %s", r.URL.RawQuery)
		}
		writeEnvelope(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"data": map[string]interface{}{
				"items":       []map[string]interface{}{{"id": "u2", "email": "bob@example.com"}},
				"total":       6,
				"page":        2,
				"page_size":   5,
				"total_pages": 2,
			},
		})
	}))
	defer server.Close()

	c := NewClient(&Config{BaseURL: server.URL, Token: "t"})
	page, err := c.ListUsers(context.Background(), "bob", 2, 5)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if page.Total != 6 || page.TotalPages != 2 || len(page.Items) != 1 {
		t.Errorf("Unexpected page %+v", page)
	}
}

func TestExpireInvitations(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(ServiceKeyHeader) != "svc" {
			writeEnvelope(w, http.StatusUnauthorized, map[string]interface{}{"success": false, "error": "invalid service key"})
			return
		}
		writeEnvelope(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"data":    map[string]interface{}{"expired": 4},
		})
	}))
	defer server.Close()

	if _, err := NewClient(&Config{BaseURL: server.URL}).ExpireInvitations(context.Background()); err == nil {
		t.Error("Expected error without service key")
	}

	n, err := NewClient(&Config{BaseURL: server.URL, ServiceKey: "svc"}).ExpireInvitations(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if n != 4 {
		t.Errorf("Expected 4, got %d", n)
	}
}

func TestDeleteOrganizationNoContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != "/api/organizations/org-1" {
			t.Errorf("Unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	c := NewClient(&Config{BaseURL: server.URL, Token: "t"})
	if err := c.DeleteOrganization(context.Background(), "org-1"); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
}
