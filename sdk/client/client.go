package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ServiceKeyHeader carries the service-role key on machine routes.
const ServiceKeyHeader = "X-Service-Key"

// Config represents the configuration for the TenantKit API client
type Config struct {
	// BaseURL is the base URL of the API, without the /api prefix
	BaseURL string
	// Token is a bearer token sent on every request when set
	Token string
	// ServiceKey authenticates machine routes
	ServiceKey string
	// HTTPClient is an optional custom HTTP client
	HTTPClient *http.Client
	// Timeout is the default request timeout
	Timeout time.Duration
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		BaseURL:    "http://localhost:8080",
		HTTPClient: http.DefaultClient,
		Timeout:    10 * time.Second,
	}
}

// Client talks to the TenantKit HTTP API.
type Client struct {
	config *Config
	client *http.Client
}

// NewClient creates a new API client with the given configuration
func NewClient(config *Config) *Client {
	if config == nil {
		config = DefaultConfig()
	}

	client := config.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	return &Client{
		config: config,
		client: client,
	}
}

// SetToken replaces the bearer token used for later requests.
func (c *Client) SetToken(token string) {
	c.config.Token = token
}

// User is an account as the API renders it.
type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	Role         string     `json:"role"`
	IsActive     bool       `json:"is_active"`
	LastSignInAt *time.Time `json:"last_sign_in_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Session is returned by signup, login and bootstrap.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      *User     `json:"user"`
}

type Organization struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	Slug               string    `json:"slug"`
	PlanType           string    `json:"plan_type"`
	SubscriptionStatus string    `json:"subscription_status"`
	MaxMembers         int       `json:"max_members"`
	CreatedAt          time.Time `json:"created_at"`
}

type Membership struct {
	ID             string        `json:"id"`
	OrganizationID string        `json:"organization_id"`
	UserID         string        `json:"user_id"`
	Role           string        `json:"role"`
	JoinedAt       time.Time     `json:"joined_at"`
	Organization   *Organization `json:"organization,omitempty"`
	User           *User         `json:"user,omitempty"`
}

// Profile is the signed-in user with permissions and memberships.
type Profile struct {
	User        *User         `json:"user"`
	Permissions []string      `json:"permissions"`
	Memberships []*Membership `json:"memberships"`
}

type Invitation struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Email          string    `json:"email"`
	Role           string    `json:"role"`
	Status         string    `json:"status"`
	ExpiresAt      time.Time `json:"expires_at"`
	CreatedAt      time.Time `json:"created_at"`
}

// InvitationResult carries the raw token, which the API returns only once.
type InvitationResult struct {
	Invitation *Invitation `json:"invitation"`
	Token      string      `json:"token"`
	EmailSent  bool        `json:"email_sent"`
}

// InvitationPreview is what an invitee sees before accepting.
type InvitationPreview struct {
	ID               string    `json:"id"`
	OrganizationID   string    `json:"organization_id"`
	OrganizationName string    `json:"organization_name"`
	OrganizationSlug string    `json:"organization_slug"`
	Email            string    `json:"email"`
	Role             string    `json:"role"`
	ExpiresAt        time.Time `json:"expires_at"`
}

// Page is one window of a paginated listing.
type Page[T any] struct {
	Items      []T   `json:"items"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalPages int   `json:"total_pages"`
}

type SignupRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type CreateOrganizationRequest struct {
	Name     string `json:"name"`
	Slug     string `json:"slug,omitempty"`
	PlanType string `json:"plan_type,omitempty"`
}

type CreateInvitationRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Signup registers an account and stores the returned token on the client.
func (c *Client) Signup(ctx context.Context, req *SignupRequest) (*Session, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}
	if req.Email == "" || req.Password == "" {
		return nil, errors.New("email and password are required")
	}

	var session Session
	if err := c.post(ctx, "/api/auth/signup", req, &session); err != nil {
		return nil, fmt.Errorf("failed to sign up: %w", err)
	}
	c.SetToken(session.Token)
	return &session, nil
}

// Login signs in and stores the returned token on the client.
func (c *Client) Login(ctx context.Context, req *LoginRequest) (*Session, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}
	if req.Email == "" || req.Password == "" {
		return nil, errors.New("email and password are required")
	}

	var session Session
	if err := c.post(ctx, "/api/auth/login", req, &session); err != nil {
		return nil, fmt.Errorf("failed to log in: %w", err)
	}
	c.SetToken(session.Token)
	return &session, nil
}

func (c *Client) Me(ctx context.Context) (*Profile, error) {
	var profile Profile
	if err := c.get(ctx, "/api/auth/me", &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// PublicSettings returns the settings exposed to anonymous callers.
func (c *Client) PublicSettings(ctx context.Context) (map[string]interface{}, error) {
	settings := map[string]interface{}{}
	if err := c.get(ctx, "/api/settings/public", &settings); err != nil {
		return nil, err
	}
	return settings, nil
}

// ListOrganizations returns the caller's memberships.
func (c *Client) ListOrganizations(ctx context.Context) ([]*Membership, error) {
	var memberships []*Membership
	if err := c.get(ctx, "/api/organizations", &memberships); err != nil {
		return nil, err
	}
	return memberships, nil
}

func (c *Client) CreateOrganization(ctx context.Context, req *CreateOrganizationRequest) (*Organization, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, errors.New("name is required")
	}

	var org Organization
	if err := c.post(ctx, "/api/organizations", req, &org); err != nil {
		return nil, fmt.Errorf("failed to create organization: %w", err)
	}
	return &org, nil
}

// DeleteOrganization removes an organization the caller owns.
func (c *Client) DeleteOrganization(ctx context.Context, orgID string) error {
	if orgID == "" {
		return errors.New("organization id is required")
	}
	return c.delete(ctx, "/api/organizations/"+url.PathEscape(orgID))
}

func (c *Client) CreateInvitation(ctx context.Context, orgID string, req *CreateInvitationRequest) (*InvitationResult, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}
	if orgID == "" || req.Email == "" || req.Role == "" {
		return nil, errors.New("organization id, email and role are required")
	}

	var result InvitationResult
	endpoint := fmt.Sprintf("/api/organizations/%s/invitations", url.PathEscape(orgID))
	if err := c.post(ctx, endpoint, req, &result); err != nil {
		return nil, fmt.Errorf("failed to create invitation: %w", err)
	}
	return &result, nil
}

// LookupInvitation previews an invitation by its raw token.
func (c *Client) LookupInvitation(ctx context.Context, token string) (*InvitationPreview, error) {
	if token == "" {
		return nil, errors.New("token is required")
	}

	var preview InvitationPreview
	if err := c.get(ctx, "/api/invitations/"+url.PathEscape(token), &preview); err != nil {
		return nil, err
	}
	return &preview, nil
}

// AcceptInvitation joins the organization the token points at.
func (c *Client) AcceptInvitation(ctx context.Context, token string) (*Membership, error) {
	if token == "" {
		return nil, errors.New("token is required")
	}

	var member Membership
	if err := c.post(ctx, "/api/invitations/accept", map[string]string{"token": token}, &member); err != nil {
		return nil, fmt.Errorf("failed to accept invitation: %w", err)
	}
	return &member, nil
}

// ListUsers pages through accounts. Requires an admin token.
func (c *Client) ListUsers(ctx context.Context, search string, page, pageSize int) (*Page[User], error) {
	q := url.Values{}
	if search != "" {
		q.Set("search", search)
	}
	if page > 0 {
		q.Set("page", fmt.Sprint(page))
	}
	if pageSize > 0 {
		q.Set("page_size", fmt.Sprint(pageSize))
	}

	endpoint := "/api/admin/users"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	var result Page[User]
	if err := c.get(ctx, endpoint, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ExpireInvitations runs the stale-invitation sweep through the service route.
func (c *Client) ExpireInvitations(ctx context.Context) (int64, error) {
	if c.config.ServiceKey == "" {
		return 0, errors.New("service key is required")
	}

	var resp struct {
		Expired int64 `json:"expired"`
	}
	if err := c.post(ctx, "/api/service/invitations/expire", nil, &resp); err != nil {
		return 0, fmt.Errorf("failed to expire invitations: %w", err)
	}
	return resp.Expired, nil
}

// APIError defines a standardized error response from the API
type APIError struct {
	StatusCode int               `json:"-"`
	Message    string            `json:"error"`
	Fields     map[string]string `json:"errors,omitempty"`
	Redirect   string            `json:"redirect,omitempty"`
}

func (e *APIError) Error() string {
	if len(e.Fields) > 0 {
		return fmt.Sprintf("%s %v (Status: %d)", e.Message, e.Fields, e.StatusCode)
	}
	return fmt.Sprintf("%s (Status: %d)", e.Message, e.StatusCode)
}

// IsStatus reports whether err is an APIError with the given status code.
func IsStatus(err error, code int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == code
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	APIError
}

// post performs a POST request and decodes the envelope's data into resp
func (c *Client) post(ctx context.Context, endpoint string, req interface{}, resp interface{}) error {
	var body io.Reader
	if req != nil {
		reqBody, err := json.Marshal(req)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(reqBody)
	}
	return c.do(ctx, http.MethodPost, endpoint, body, resp)
}

// get performs a GET request and decodes the envelope's data into resp
func (c *Client) get(ctx context.Context, endpoint string, resp interface{}) error {
	return c.do(ctx, http.MethodGet, endpoint, nil, resp)
}

// delete performs a DELETE request to the specified endpoint
func (c *Client) delete(ctx context.Context, endpoint string) error {
	return c.do(ctx, http.MethodDelete, endpoint, nil, nil)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body io.Reader, resp interface{}) error {
	// Set up context with timeout
	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.config.BaseURL, "/")+endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.config.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.Token)
	}
	if c.config.ServiceKey != "" {
		httpReq.Header.Set(ServiceKeyHeader, c.config.ServiceKey)
	}

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode == http.StatusNoContent {
		return nil
	}

	var env envelope
	if err := json.NewDecoder(httpResp.Body).Decode(&env); err != nil {
		if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
			// If we can't decode the error, create a generic one
			return &APIError{
				StatusCode: httpResp.StatusCode,
				Message:    fmt.Sprintf("request failed with status code %d", httpResp.StatusCode),
			}
		}
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 || !env.Success {
		apiErr := env.APIError
		apiErr.StatusCode = httpResp.StatusCode
		if apiErr.Message == "" {
			apiErr.Message = fmt.Sprintf("request failed with status code %d", httpResp.StatusCode)
		}
		return &apiErr
	}

	if resp == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, resp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
