package marzban

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"marzban-vpn-bot/internal/config"
	"marzban-vpn-bot/internal/constants"
	errs "marzban-vpn-bot/internal/errors"
)

const tokenCacheKey = "admin_token"

// Client represents a Marzban panel API client. It owns its bearer token:
// login is lazy on first use and the token is cached until the panel
// rejects it.
type Client struct {
	httpClient *resty.Client
	cfg        config.PanelConfig
	tokenCache *cache.Cache
	logger     *logrus.Logger
}

// NewClient creates a new Marzban API client
func NewClient(cfg config.PanelConfig, logger *logrus.Logger) *Client {
	httpClient := resty.New().
		SetTimeout(constants.DefaultTimeout * time.Second).
		SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})

	return &Client{
		httpClient: httpClient,
		cfg:        cfg,
		tokenCache: cache.New(constants.TokenCacheExpiration*time.Minute, constants.CacheCleanupInterval*time.Minute),
		logger:     logger,
	}
}

// Request performs an authenticated API call and returns the HTTP status
// with the raw body. Transport failures surface as the synthetic status 0
// with the error text as the body. On 401 the cached token is dropped and
// the call is retried exactly once after a fresh login; a second 401 is
// returned as-is and must be treated as terminal by the caller.
func (c *Client) Request(ctx context.Context, method, path string, body interface{}) (int, []byte) {
	status, respBody := c.do(ctx, method, path, body)
	if status == http.StatusUnauthorized {
		c.logger.Warnf("Panel rejected token for %s %s, re-logging in", method, path)
		c.tokenCache.Delete(tokenCacheKey)
		status, respBody = c.do(ctx, method, path, body)
	}
	return status, respBody
}

// do performs a single authenticated call, logging in first if needed
func (c *Client) do(ctx context.Context, method, path string, body interface{}) (int, []byte) {
	token, status, errBody := c.ensureToken(ctx)
	if token == "" {
		return status, errBody
	}

	req := c.httpClient.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetHeader("Content-Type", "application/json")
	if body != nil {
		req.SetBody(body)
	}

	resp, err := req.Execute(method, c.cfg.APIURL+path)
	if err != nil {
		c.logger.Errorf("Panel request %s %s failed: %v", method, path, err)
		return 0, []byte(err.Error())
	}

	return resp.StatusCode(), resp.Body()
}

// ensureToken returns a valid bearer token, performing the admin login call
// when none is cached. On failure the token is empty and the status/body
// pair describes the login outcome.
func (c *Client) ensureToken(ctx context.Context) (string, int, []byte) {
	if token, found := c.tokenCache.Get(tokenCacheKey); found {
		return token.(string), 0, nil
	}

	c.logger.Infof("Logging in to panel at %s", c.cfg.APIURL)

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"username":   c.cfg.User,
			"password":   c.cfg.Password,
			"grant_type": "password",
		}).
		Post(c.cfg.APIURL + "/api/admin/token")

	if err != nil {
		c.logger.Errorf("Panel login failed: %v", err)
		return "", 0, []byte(err.Error())
	}

	if resp.StatusCode() != http.StatusOK {
		c.logger.Errorf("Panel login failed - Status: %d, Response: %s", resp.StatusCode(), string(resp.Body()))
		return "", resp.StatusCode(), resp.Body()
	}

	var tr tokenResponse
	if err := json.Unmarshal(resp.Body(), &tr); err != nil || tr.AccessToken == "" {
		return "", 0, []byte("failed to parse token response")
	}

	c.tokenCache.Set(tokenCacheKey, tr.AccessToken, cache.DefaultExpiration)
	c.logger.Info("Successfully logged in to panel")
	return tr.AccessToken, 0, nil
}

// GetUser fetches a panel account by username
func (c *Client) GetUser(ctx context.Context, username string) (*User, error) {
	status, body := c.Request(ctx, http.MethodGet, userPath(username), nil)
	if err := classify("get user", username, status, body); err != nil {
		return nil, err
	}
	return parseUser("get user", body)
}

// UserExists checks whether an account exists on the panel. A 404 is an
// expected condition, not an error.
func (c *Client) UserExists(ctx context.Context, username string) (bool, error) {
	status, body := c.Request(ctx, http.MethodGet, userPath(username), nil)
	if status == http.StatusNotFound {
		return false, nil
	}
	if err := classify("check user", username, status, body); err != nil {
		return false, err
	}
	return true, nil
}

// CreateUser creates a new panel account
func (c *Client) CreateUser(ctx context.Context, user User) (*User, error) {
	status, body := c.Request(ctx, http.MethodPost, "/api/user", user)
	if err := classify("create user", user.Username, status, body); err != nil {
		return nil, err
	}
	return parseUser("create user", body)
}

// ModifyUser performs a partial update of an account. Only the supplied
// fields are sent, so absent fields stay untouched on the panel.
func (c *Client) ModifyUser(ctx context.Context, username string, fields map[string]interface{}) (*User, error) {
	status, body := c.Request(ctx, http.MethodPut, userPath(username), fields)
	if err := classify("modify user", username, status, body); err != nil {
		return nil, err
	}
	return parseUser("modify user", body)
}

// RevokeSubscription rotates an account's subscription link
func (c *Client) RevokeSubscription(ctx context.Context, username string) (*User, error) {
	status, body := c.Request(ctx, http.MethodPost, userPath(username)+"/revoke_sub", nil)
	if err := classify("revoke subscription", username, status, body); err != nil {
		return nil, err
	}
	return parseUser("revoke subscription", body)
}

// GetUsage fetches the per-node traffic report for an account
func (c *Client) GetUsage(ctx context.Context, username string) (*UserUsage, error) {
	status, body := c.Request(ctx, http.MethodGet, userPath(username)+"/usage", nil)
	if err := classify("get usage", username, status, body); err != nil {
		return nil, err
	}

	var usage UserUsage
	if err := json.Unmarshal(body, &usage); err != nil {
		return nil, &errs.HTTPError{Operation: "get usage", Code: http.StatusOK, Body: "unparseable response"}
	}
	return &usage, nil
}

// SearchUsers queries the panel's user search endpoint
func (c *Client) SearchUsers(ctx context.Context, query string, limit, offset int) (*UsersPage, error) {
	path := fmt.Sprintf("/api/users?username=%s&limit=%d&offset=%d", url.QueryEscape(query), limit, offset)
	status, body := c.Request(ctx, http.MethodGet, path, nil)
	if err := classify("search users", query, status, body); err != nil {
		return nil, err
	}

	var page UsersPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, &errs.HTTPError{Operation: "search users", Code: http.StatusOK, Body: "unparseable response"}
	}
	return &page, nil
}

// SubscriptionURL returns the user-facing subscription link for an account.
// The panel reports a relative path; the configured prefix makes it absolute.
func (c *Client) SubscriptionURL(user *User) string {
	if user.SubscriptionURL == "" {
		return ""
	}
	if c.cfg.SubURLPrefix == "" {
		return user.SubscriptionURL
	}
	return c.cfg.SubURLPrefix + user.SubscriptionURL
}

// userPath builds the API path for an account, percent-encoding the username
func userPath(username string) string {
	return "/api/user/" + url.PathEscape(username)
}

// classify maps a status/body pair onto the shared error taxonomy.
// Success statuses return nil; 409 is reported as a plain HTTPError so
// callers that treat conflicts as success can branch on the code.
func classify(operation, key string, status int, body []byte) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == 0:
		return &errs.TransportError{Operation: operation, Cause: string(body)}
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &errs.AuthError{Operation: operation}
	case status == http.StatusNotFound:
		return &errs.NotFoundError{Entity: "panel user", Key: key}
	case status == http.StatusUnprocessableEntity:
		return &errs.ValidationError{Operation: operation, Detail: string(body)}
	default:
		return &errs.HTTPError{Operation: operation, Code: status, Body: string(body)}
	}
}

// parseUser decodes a panel user response body
func parseUser(operation string, body []byte) (*User, error) {
	var user User
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, &errs.HTTPError{Operation: operation, Code: http.StatusOK, Body: "unparseable response"}
	}
	return &user, nil
}
