// Package client talks to a running boofi agent over its HTTP API.
package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/soofff/boofi/internal/journal"
	"github.com/soofff/boofi/internal/task"
	"github.com/soofff/boofi/internal/version"
)

const (
	defaultHTTPTimeout = 60 * time.Second
	maxErrorBody       = 8 << 10

	EnvURL      = "BOOFI_URL"
	EnvService  = "BOOFI_SERVICE"
	EnvUser     = "BOOFI_USER"
	EnvPassword = "BOOFI_PASSWORD"
	EnvToken    = "BOOFI_TOKEN"
)

// ErrNoCredentials is returned when neither a token nor a username is set.
var ErrNoCredentials = errors.New("client: no token or username configured")

// APIError is a non-success answer of the agent.
type APIError struct {
	Status  int
	Message string
}

func (e APIError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, http.StatusText(e.Status), e.Message)
}

// Options configures a Client. A token takes precedence over basic
// credentials.
type Options struct {
	BaseURL  string
	Service  string
	Username string
	Password string
	Token    string
	Insecure bool // skip TLS certificate verification
}

// OptionsFromEnv fills unset fields of opts from the BOOFI_* variables.
func OptionsFromEnv(opts Options, lookup func(string) (string, bool)) Options {
	fill := func(dst *string, key string) {
		if *dst != "" {
			return
		}
		if v, ok := lookup(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	fill(&opts.BaseURL, EnvURL)
	fill(&opts.Service, EnvService)
	fill(&opts.Username, EnvUser)
	fill(&opts.Password, EnvPassword)
	fill(&opts.Token, EnvToken)
	return opts
}

// Client is bound to one service of one agent.
type Client struct {
	baseURL    string
	service    string
	httpClient *http.Client
	username   string
	password   string
	token      string
}

func New(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	u, err := url.Parse(base)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("client: invalid base URL %q", opts.BaseURL)
	}
	if opts.Service == "" {
		return nil, errors.New("client: service is required")
	}
	if opts.Token == "" && opts.Username == "" {
		return nil, ErrNoCredentials
	}

	httpClient := &http.Client{Timeout: defaultHTTPTimeout}
	if opts.Insecure {
		httpClient.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}
	return &Client{
		baseURL:    base,
		service:    opts.Service,
		httpClient: httpClient,
		username:   opts.Username,
		password:   opts.Password,
		token:      strings.TrimSpace(opts.Token),
	}, nil
}

func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) Service() string { return c.service }

// IssueToken exchanges the basic credentials for a bearer token, which the
// client uses from then on.
func (c *Client) IssueToken(ctx context.Context) (string, error) {
	if c.username == "" {
		return "", ErrNoCredentials
	}
	req, err := c.newRequest(ctx, http.MethodGet, "/token", nil, nil)
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.username, c.password)

	var payload struct {
		Token string `json:"token"`
	}
	if err := c.do(req, http.StatusOK, &payload); err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}
	c.token = payload.Token
	return payload.Token, nil
}

// RevokeToken deletes the current token. It reports whether the agent still
// knew it.
func (c *Client) RevokeToken(ctx context.Context) (bool, error) {
	if c.token == "" {
		return false, errors.New("revoke token: no token configured")
	}
	req, err := c.newRequest(ctx, http.MethodDelete, "/token", nil, nil)
	if err != nil {
		return false, err
	}
	resp, err := c.send(req)
	if err != nil {
		return false, fmt.Errorf("revoke token: %w", err)
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusAccepted:
		c.token = ""
		return true, nil
	case http.StatusOK:
		c.token = ""
		return false, nil
	}
	return false, fmt.Errorf("revoke token: %w", readAPIError(resp))
}

// Apps returns the help of every app on the service.
func (c *Client) Apps(ctx context.Context) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.call(ctx, http.MethodGet, "/apps", nil, nil, http.StatusOK, &out); err != nil {
		return nil, fmt.Errorf("list apps: %w", err)
	}
	return out, nil
}

// RunApp runs name with input. With async the answer is the created task.
func (c *Client) RunApp(ctx context.Context, name string, input json.RawMessage, async bool) (json.RawMessage, error) {
	query := url.Values{}
	if async {
		query.Set("async", "true")
	}
	var out json.RawMessage
	if err := c.call(ctx, http.MethodPost, "/apps/"+url.PathEscape(name), query, input, http.StatusOK, &out); err != nil {
		return nil, fmt.Errorf("run %s: %w", name, err)
	}
	return out, nil
}

func (c *Client) Tasks(ctx context.Context) ([]task.Task, error) {
	var out []task.Task
	if err := c.call(ctx, http.MethodGet, "/tasks", nil, nil, http.StatusOK, &out); err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return out, nil
}

func (c *Client) Task(ctx context.Context, id uint64) (task.Task, error) {
	var out task.Task
	if err := c.call(ctx, http.MethodGet, "/tasks/"+strconv.FormatUint(id, 10), nil, nil, http.StatusOK, &out); err != nil {
		return task.Task{}, fmt.Errorf("get task %d: %w", id, err)
	}
	return out, nil
}

// WaitTask polls the task until it reaches a terminal status.
func (c *Client) WaitTask(ctx context.Context, id uint64, interval time.Duration) (task.Task, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		t, err := c.Task(ctx, id)
		if err != nil || t.Status.Terminal() {
			return t, err
		}
		select {
		case <-ctx.Done():
			return t, ctx.Err()
		case <-ticker.C:
		}
	}
}

// ReadFile returns the directory listing or the handler output for p.
func (c *Client) ReadFile(ctx context.Context, p, handler string) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.call(ctx, http.MethodGet, filesPath(p), handlerQuery(handler), nil, http.StatusOK, &out); err != nil {
		return nil, fmt.Errorf("read %s: %w", p, err)
	}
	return out, nil
}

func (c *Client) WriteFile(ctx context.Context, p, handler string, content json.RawMessage) error {
	if err := c.call(ctx, http.MethodPost, filesPath(p), handlerQuery(handler), content, http.StatusAccepted, nil); err != nil {
		return fmt.Errorf("write %s: %w", p, err)
	}
	return nil
}

func (c *Client) DeleteFile(ctx context.Context, p, handler string) error {
	if err := c.call(ctx, http.MethodDelete, filesPath(p), handlerQuery(handler), nil, http.StatusAccepted, nil); err != nil {
		return fmt.Errorf("delete %s: %w", p, err)
	}
	return nil
}

// Journal returns up to limit recorded task runs, newest first. Zero means
// the agent default.
func (c *Client) Journal(ctx context.Context, limit int) ([]journal.Entry, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var out []journal.Entry
	if err := c.call(ctx, http.MethodGet, "/journal", query, nil, http.StatusOK, &out); err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}
	return out, nil
}

func filesPath(p string) string {
	segments := strings.Split(strings.Trim(p, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	out := "/files/" + strings.Join(segments, "/")
	if strings.HasSuffix(p, "/") && p != "/" {
		out += "/"
	}
	return out
}

func handlerQuery(handler string) url.Values {
	if handler == "" {
		return nil
	}
	return url.Values{"name": {handler}}
}

func (c *Client) call(ctx context.Context, method, endpoint string, query url.Values, body json.RawMessage, want int, out any) error {
	req, err := c.newRequest(ctx, method, endpoint, query, body)
	if err != nil {
		return err
	}
	return c.do(req, want, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, query url.Values, body json.RawMessage) (*http.Request, error) {
	target := c.baseURL + "/" + url.PathEscape(c.service) + endpoint
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	var reader io.Reader = http.NoBody
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", version.UserAgent())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) send(req *http.Request) (*http.Response, error) {
	if req.Header.Get("Authorization") == "" {
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		} else {
			req.SetBasicAuth(c.username, c.password)
		}
	}
	return c.httpClient.Do(req)
}

func (c *Client) do(req *http.Request, want int, out any) error {
	resp, err := c.send(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		return readAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func readAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	apiErr := APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	if strings.HasPrefix(apiErr.Message, "{") {
		var payload struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal([]byte(apiErr.Message), &payload); err == nil && strings.TrimSpace(payload.Error) != "" {
			apiErr.Message = strings.TrimSpace(payload.Error)
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
