package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/caleb/fittrack/internal/models"
)

// Client is the HTTP implementation of Store. Entities live under
// /v1/accounts/{account}/{collection}[/{id}] as flat JSON documents; the
// server responds with {"id": ...} on create and a JSON array on list.
type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

// NewClient creates a client for the given server. The API key is sent as a
// bearer token on every request.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

// apiError is the error body the server returns for 4xx/5xx responses.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// createResponse is the body returned from a create.
type createResponse struct {
	ID string `json:"id"`
}

// Create implements Store.
func (c *Client) Create(ctx context.Context, kind models.EntityKind, owner string, payload json.RawMessage) (string, error) {
	var resp createResponse
	path := c.collectionPath(kind, owner)
	if err := c.do(ctx, http.MethodPost, path, payload, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", fmt.Errorf("%w: create returned no id", ErrInvalid)
	}
	return resp.ID, nil
}

// Update implements Store.
func (c *Client) Update(ctx context.Context, kind models.EntityKind, owner, remoteID string, payload json.RawMessage) error {
	path := c.collectionPath(kind, owner) + "/" + url.PathEscape(remoteID)
	return c.do(ctx, http.MethodPut, path, payload, nil)
}

// Delete implements Store.
func (c *Client) Delete(ctx context.Context, kind models.EntityKind, owner, remoteID string) error {
	path := c.collectionPath(kind, owner) + "/" + url.PathEscape(remoteID)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// List implements Store.
func (c *Client) List(ctx context.Context, kind models.EntityKind, owner string) ([]Object, error) {
	var docs []json.RawMessage
	if err := c.do(ctx, http.MethodGet, c.collectionPath(kind, owner), nil, &docs); err != nil {
		return nil, err
	}

	objects := make([]Object, 0, len(docs))
	for _, doc := range docs {
		var envelope struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(doc, &envelope); err != nil {
			return nil, fmt.Errorf("decode %s object: %w", kind, err)
		}
		if envelope.ID == "" {
			return nil, fmt.Errorf("%w: %s object without id", ErrInvalid, kind)
		}
		objects = append(objects, Object{ID: envelope.ID, Data: doc})
	}
	return objects, nil
}

func (c *Client) collectionPath(kind models.EntityKind, owner string) string {
	return "/v1/accounts/" + url.PathEscape(owner) + "/" + Collection(kind)
}

func (c *Client) do(ctx context.Context, method, path string, body json.RawMessage, result any) error {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}

	if resp.StatusCode >= 400 {
		return classifyStatus(resp.StatusCode, respBody)
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}

	return nil
}

// classifyStatus maps an HTTP error status onto the sentinel taxonomy. The
// server's error message is carried along when it sent one.
func classifyStatus(status int, body []byte) error {
	message := fmt.Sprintf("HTTP %d", status)
	var apiErr apiError
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Message != "" {
		message = apiErr.Message
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrAuthRequired, message)
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, message)
	case status == http.StatusConflict:
		return fmt.Errorf("%w: %s", ErrConflict, message)
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", ErrInvalid, message)
	case status == http.StatusRequestTimeout || status == http.StatusTooManyRequests || status >= 500:
		return fmt.Errorf("%w: %s", ErrUnavailable, message)
	default:
		return fmt.Errorf("%w: %s", ErrInvalid, message)
	}
}
