package jss

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/beevik/etree"
)

// APIError is returned for any non-2xx response
type APIError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("%s %s: %s", e.Method, e.URL, http.StatusText(e.StatusCode))
	if body := strings.TrimSpace(e.Body); body != "" {
		msg += ": " + body
	}
	return msg
}

// Is reports a 404 as ErrNotFound
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// Client is a Store backed by the Classic API
type Client struct {
	baseURL  string
	user     string
	password string
	http     *http.Client
	logger   *slog.Logger
}

// NewClient creates a client for the JSS at baseURL. With verify false the
// server's TLS certificate is not checked.
func NewClient(baseURL, user, password string, verify bool, logger *slog.Logger) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if !verify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} // #nosec G402 -- opt-in via the verify preference
	}

	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		user:     user,
		password: password,
		http: &http.Client{
			Transport: transport,
			Timeout:   60 * time.Second,
		},
		logger: logger,
	}
}

// URL returns the server URL
func (c *Client) URL() string { return c.baseURL }

// User returns the API user
func (c *Client) User() string { return c.user }

// Load fetches the object of the given kind by name
func (c *Client) Load(ctx context.Context, kind Kind, name string) (*Object, error) {
	body, err := c.do(ctx, http.MethodGet, c.resourceURL(kind, "name", name), nil)
	if err != nil {
		return nil, err
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil {
		return nil, fmt.Errorf("failed to parse %s %q: %w", kind, name, err)
	}
	if doc.Root() == nil {
		return nil, fmt.Errorf("empty document for %s %q", kind, name)
	}

	c.logger.Debug("loaded object", "kind", kind, "name", name)
	return &Object{Kind: kind, Name: name, Doc: doc}, nil
}

// Save writes the object back, addressing it by id when it has one
func (c *Client) Save(ctx context.Context, obj *Object) error {
	body, err := obj.Doc.WriteToBytes()
	if err != nil {
		return fmt.Errorf("failed to serialize %s %q: %w", obj.Kind, obj.Name, err)
	}

	target := c.resourceURL(obj.Kind, "name", obj.Name)
	if id := obj.ID(); id != "" {
		target = c.resourceURL(obj.Kind, "id", id)
	}

	if _, err := c.do(ctx, http.MethodPut, target, body); err != nil {
		return err
	}
	c.logger.Debug("saved object", "kind", obj.Kind, "name", obj.Name, "bytes", len(body))
	return nil
}

func (c *Client) resourceURL(kind Kind, by, value string) string {
	return fmt.Sprintf("%s/JSSResource/%s/%s/%s", c.baseURL, kind.Endpoint(), by, url.PathEscape(value))
}

func (c *Client) do(ctx context.Context, method, target string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.SetBasicAuth(c.user, c.password)
	req.Header.Set("Accept", "application/xml")
	if body != nil {
		req.Header.Set("Content-Type", "application/xml")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, target, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response of %s %s: %w", method, target, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Method: method, URL: target, StatusCode: resp.StatusCode, Body: string(data)}
		if errors.Is(apiErr, ErrNotFound) {
			c.logger.Debug("object not found", "url", target)
		}
		return nil, apiErr
	}
	return data, nil
}
