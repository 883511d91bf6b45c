package portainer

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
	"sort"
	"strconv"
	"time"

	"github.com/appbridge/appbridge/internal/deploy"
)

// Stack is one deployed stack as reported by the backend.
type Stack struct {
	ID         int    `json:"Id"`
	Name       string `json:"Name"`
	EndpointID int    `json:"EndpointId"`
	Status     int    `json:"Status"`
}

// Client deploys translated payloads to a stack backend.
type Client interface {
	// DeployStack creates a standalone stack from a rendered manifest.
	DeployStack(ctx context.Context, payload *deploy.Payload) (*Stack, error)
	// ValidateConnection checks reachability and credential validity.
	ValidateConnection(ctx context.Context) error
	// ListStacks returns the stacks visible to the configured API key.
	ListStacks(ctx context.Context) ([]Stack, error)
	// DeleteStack removes a stack by backend ID.
	DeleteStack(ctx context.Context, stackID int) error
}

// APIError is a non-2xx response from the Portainer API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("portainer api error (status %d): %s", e.StatusCode, e.Message)
}

// ErrNotConfigured is returned by the HTTP client when the base URL or
// API key is missing.
var ErrNotConfigured = errors.New("portainer connection is not configured")

// HTTPClient talks to a real Portainer instance.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	endpointID int
	httpClient *http.Client
}

// NewHTTPClient builds a Portainer client. endpointID is the default
// endpoint used when a payload does not name one. verifySSL disables
// certificate checks when false, for self-signed Portainer instances.
func NewHTTPClient(baseURL, apiKey string, endpointID int, verifySSL bool) *HTTPClient {
	transport := http.DefaultTransport
	if !verifySSL {
		transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}
	return &HTTPClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		endpointID: endpointID,
		httpClient: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
	}
}

type stackCreateBody struct {
	Name             string    `json:"Name"`
	StackFileContent string    `json:"StackFileContent"`
	Env              []envPair `json:"Env"`
}

type envPair struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func (c *HTTPClient) DeployStack(ctx context.Context, payload *deploy.Payload) (*Stack, error) {
	if c.baseURL == "" || c.apiKey == "" {
		return nil, ErrNotConfigured
	}

	endpointID := payload.EndpointID
	if endpointID == 0 {
		endpointID = c.endpointID
	}

	body := stackCreateBody{
		Name:             payload.StackName,
		StackFileContent: payload.StackFileContent,
		Env:              make([]envPair, 0, len(payload.Env)),
	}
	keys := make([]string, 0, len(payload.Env))
	for key := range payload.Env {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		body.Env = append(body.Env, envPair{Name: key, Value: payload.Env[key]})
	}

	endpoint := c.baseURL + "/api/stacks/create/standalone/string?endpointId=" + strconv.Itoa(endpointID)
	var stack Stack
	if err := c.do(ctx, http.MethodPost, endpoint, body, &stack); err != nil {
		return nil, err
	}
	return &stack, nil
}

func (c *HTTPClient) ValidateConnection(ctx context.Context) error {
	if c.baseURL == "" || c.apiKey == "" {
		return ErrNotConfigured
	}
	_, err := c.ListStacks(ctx)
	return err
}

func (c *HTTPClient) ListStacks(ctx context.Context) ([]Stack, error) {
	if c.baseURL == "" || c.apiKey == "" {
		return nil, ErrNotConfigured
	}
	var stacks []Stack
	if err := c.do(ctx, http.MethodGet, c.baseURL+"/api/stacks", nil, &stacks); err != nil {
		return nil, err
	}
	return stacks, nil
}

func (c *HTTPClient) DeleteStack(ctx context.Context, stackID int) error {
	if c.baseURL == "" || c.apiKey == "" {
		return ErrNotConfigured
	}
	query := url.Values{"endpointId": {strconv.Itoa(c.endpointID)}}
	endpoint := fmt.Sprintf("%s/api/stacks/%d?%s", c.baseURL, stackID, query.Encode())
	return c.do(ctx, http.MethodDelete, endpoint, nil, nil)
}

func (c *HTTPClient) do(ctx context.Context, method, endpoint string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("X-API-Key", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("portainer request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Message: readErrorMessage(resp.Body)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode portainer response: %w", err)
	}
	return nil
}

func readErrorMessage(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(raw) == 0 {
		return "no response body"
	}

	var parsed struct {
		Message string `json:"message"`
		Details string `json:"details"`
	}
	if json.Unmarshal(raw, &parsed) == nil && parsed.Message != "" {
		if parsed.Details != "" {
			return parsed.Message + ": " + parsed.Details
		}
		return parsed.Message
	}
	return string(raw)
}
