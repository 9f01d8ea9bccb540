// Package trackvia is a minimal TrackVia OpenAPI client covering the surface
// the merge pipeline consumes: session auth, view reads, file transfer, and
// record writes.
package trackvia

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"docxmerge/internal/merge"
)

// DefaultHost is the production record-store endpoint.
const DefaultHost = "https://go.trackvia.com"

// oauthClientID identifies this integration to the token endpoint.
const oauthClientID = "TrackViaAPI"

// tokenExpiryMargin renews the access token this long before it would
// actually expire.
const tokenExpiryMargin = 60 * time.Second

// Client is a record-store session. Safe for concurrent use; token refresh is
// handled internally.
type Client struct {
	apiKey     string
	host       string
	httpClient *http.Client
	log        *zap.Logger

	mu           sync.Mutex
	username     string
	password     string
	accessToken  string
	refreshToken string
	expiry       time.Time
}

// Option customizes a Client.
type Option func(*Client)

// WithHost points the client at a non-production environment.
func WithHost(host string) Option {
	return func(c *Client) { c.host = strings.TrimRight(host, "/") }
}

// WithHTTPClient injects the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger attaches a logger for request-level debug output.
func WithLogger(log *zap.Logger) Option {
	return func(c *Client) { c.log = log }
}

// New returns a client for the given API key.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:     apiKey,
		host:       DefaultHost,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// Login authenticates as the given user. Access and refresh tokens are kept
// and renewed internally; credentials are retained so an expired session can
// re-authenticate mid-run.
func (c *Client) Login(ctx context.Context, username, password string) error {
	tok, err := c.requestToken(ctx, url.Values{
		"client_id":  {oauthClientID},
		"grant_type": {"password"},
		"username":   {username},
		"password":   {password},
	})
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.username, c.password = username, password
	c.storeToken(tok)
	c.log.Debug("logged in", zap.String("username", username))
	return nil
}

// requestToken runs one grant against the token endpoint.
func (c *Client) requestToken(ctx context.Context, form url.Values) (*tokenResponse, error) {
	endpoint := c.host + "/oauth/token"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("building token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &AuthError{Op: "login", Status: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return nil, fmt.Errorf("parsing token response: %w", err)
	}
	if tok.AccessToken == "" {
		return nil, &AuthError{Op: "login", Status: resp.StatusCode, Message: "access token not returned from login"}
	}
	return &tok, nil
}

// storeToken records a grant result. Caller holds c.mu.
func (c *Client) storeToken(tok *tokenResponse) {
	c.accessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		c.refreshToken = tok.RefreshToken
	}
	c.expiry = time.Now().Add(time.Duration(tok.ExpiresIn)*time.Second - tokenExpiryMargin)
}

// token returns a live access token, refreshing or re-authenticating as
// needed.
func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.expiry) {
		return c.accessToken, nil
	}
	if c.refreshToken != "" {
		tok, err := c.requestToken(ctx, url.Values{
			"client_id":     {oauthClientID},
			"grant_type":    {"refresh_token"},
			"refresh_token": {c.refreshToken},
		})
		if err == nil {
			c.storeToken(tok)
			c.log.Debug("refreshed access token")
			return c.accessToken, nil
		}
		c.log.Debug("token refresh failed, re-authenticating", zap.Error(err))
	}
	if c.username != "" {
		tok, err := c.requestToken(ctx, url.Values{
			"client_id":  {oauthClientID},
			"grant_type": {"password"},
			"username":   {c.username},
			"password":   {c.password},
		})
		if err != nil {
			return "", err
		}
		c.storeToken(tok)
		return c.accessToken, nil
	}
	return "", &AuthError{Op: "token", Message: "no session; call Login first"}
}

// do issues one authenticated request and returns the raw response. Non-2xx
// statuses map to the error taxonomy: 401 auth, 404 not-found, anything else
// remote.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body io.Reader, contentType string) (*http.Response, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	if query == nil {
		query = url.Values{}
	}
	query.Set("user_key", c.apiKey)
	endpoint := c.host + path + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("%s: building request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: request failed: %w", op, err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return resp, nil
	case resp.StatusCode == http.StatusUnauthorized:
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &AuthError{Op: op, Status: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		return nil, &NotFoundError{Op: op, URL: c.host + path}
	default:
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &RemoteError{Op: op, URL: c.host + path, Status: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}
}

// doJSON issues a request and decodes the JSON response into out (nil to
// discard).
func (c *Client) doJSON(ctx context.Context, op, method, path string, query url.Values, payload any, out any) error {
	var body io.Reader
	contentType := ""
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("%s: encoding request: %w", op, err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}

	resp, err := c.do(ctx, op, method, path, query, body, contentType)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decoding response: %w", op, err)
	}
	return nil
}

// recordEnvelope is the {"data": [...]} wrapper record writes travel in.
type recordEnvelope struct {
	Data []map[string]any `json:"data"`
}

// GetView fetches one page of view data plus the view's field schema.
func (c *Client) GetView(ctx context.Context, viewID int, paging *merge.Paging) (*merge.View, error) {
	query := url.Values{}
	if paging != nil {
		query.Set("start", strconv.Itoa(paging.Start))
		query.Set("max", strconv.Itoa(paging.Max))
	}

	var payload struct {
		Data       []merge.Record      `json:"data"`
		Structure  []merge.FieldSchema `json:"structure"`
		TotalCount int                 `json:"totalCount"`
	}
	path := fmt.Sprintf("/openapi/views/%d", viewID)
	if err := c.doJSON(ctx, "getView", http.MethodGet, path, query, nil, &payload); err != nil {
		return nil, err
	}
	return &merge.View{Data: payload.Data, Structure: payload.Structure, TotalCount: payload.TotalCount}, nil
}

// GetFile downloads a binary field from a record. A missing file surfaces as
// a NotFoundError, distinguishable from every other failure.
func (c *Client) GetFile(ctx context.Context, viewID int, recordID int64, field string, opts *merge.FileOptions) (*merge.File, error) {
	query := url.Values{}
	if opts != nil {
		// width and maxDimension are mutually exclusive; width wins.
		if opts.Width > 0 {
			query.Set("width", strconv.Itoa(opts.Width))
		} else if opts.MaxDimension > 0 {
			query.Set("maxDimension", strconv.Itoa(opts.MaxDimension))
		}
	}

	path := fmt.Sprintf("/openapi/views/%d/records/%d/files/%s", viewID, recordID, url.PathEscape(field))
	resp, err := c.do(ctx, "getFile", http.MethodGet, path, query, nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("getFile: reading body: %w", err)
	}
	return &merge.File{
		Body:               body,
		ContentType:        resp.Header.Get("Content-Type"),
		ContentDisposition: resp.Header.Get("Content-Disposition"),
	}, nil
}

// UpdateRecord updates only the given fields of a record.
func (c *Client) UpdateRecord(ctx context.Context, viewID int, recordID int64, fields map[string]any) error {
	path := fmt.Sprintf("/openapi/views/%d/records/%d", viewID, recordID)
	return c.doJSON(ctx, "updateRecord", http.MethodPut, path, nil, recordEnvelope{Data: []map[string]any{fields}}, nil)
}

// AddRecord creates a record in a view and returns its generated identifier.
func (c *Client) AddRecord(ctx context.Context, viewID int, fields map[string]any) (int64, error) {
	var payload struct {
		Data []merge.Record `json:"data"`
	}
	path := fmt.Sprintf("/openapi/views/%d/records", viewID)
	if err := c.doJSON(ctx, "addRecord", http.MethodPost, path, nil, recordEnvelope{Data: []map[string]any{fields}}, &payload); err != nil {
		return 0, err
	}
	if len(payload.Data) == 0 {
		return 0, &RemoteError{Op: "addRecord", URL: c.host + path, Status: http.StatusOK, Body: "no record returned"}
	}
	return payload.Data[0].ID(), nil
}

// AttachFile uploads a file into a record's document field, overwriting any
// existing file.
func (c *Client) AttachFile(ctx context.Context, viewID int, recordID int64, field, filename string, contents []byte) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return fmt.Errorf("attachFile: building form: %w", err)
	}
	if _, err := part.Write(contents); err != nil {
		return fmt.Errorf("attachFile: building form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("attachFile: building form: %w", err)
	}

	path := fmt.Sprintf("/openapi/views/%d/records/%d/files/%s", viewID, recordID, url.PathEscape(field))
	resp, err := c.do(ctx, "attachFile", http.MethodPost, path, nil, &buf, mw.FormDataContentType())
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
