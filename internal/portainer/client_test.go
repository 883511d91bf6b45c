package portainer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/appbridge/appbridge/internal/deploy"
)

func TestHTTPClient_DeployStack(t *testing.T) {
	var gotPath, gotQuery, gotAPIKey string
	var gotBody stackCreateBody

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotAPIKey = r.Header.Get("X-API-Key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(Stack{ID: 42, Name: gotBody.Name, EndpointID: 1, Status: 1})
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "ptr_key", 1, true)
	payload := &deploy.Payload{
		StackName:        "jellyfin",
		StackFileContent: "services:\n  app:\n    image: jellyfin/jellyfin\n",
		Env:              map[string]string{"TZ": "Europe/Berlin", "PUID": "1000"},
	}

	stack, err := client.DeployStack(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, 42, stack.ID)
	assert.Equal(t, "jellyfin", stack.Name)

	assert.Equal(t, "/api/stacks/create/standalone/string", gotPath)
	assert.Equal(t, "endpointId=1", gotQuery)
	assert.Equal(t, "ptr_key", gotAPIKey)
	assert.Equal(t, "jellyfin", gotBody.Name)
	assert.Equal(t, payload.StackFileContent, gotBody.StackFileContent)
	// Env pairs are sorted by name.
	require.Len(t, gotBody.Env, 2)
	assert.Equal(t, envPair{Name: "PUID", Value: "1000"}, gotBody.Env[0])
	assert.Equal(t, envPair{Name: "TZ", Value: "Europe/Berlin"}, gotBody.Env[1])
}

func TestHTTPClient_DeployStack_PayloadEndpointWins(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		json.NewEncoder(w).Encode(Stack{ID: 1})
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "key", 1, true)
	_, err := client.DeployStack(context.Background(), &deploy.Payload{
		StackName:        "gitea",
		StackFileContent: "services: {}\n",
		EndpointID:       3,
	})
	require.NoError(t, err)
	assert.Equal(t, "endpointId=3", gotQuery)
}

func TestHTTPClient_DeployStack_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{
			"message": "conflict",
			"details": "a stack named gitea already exists",
		})
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "key", 1, true)
	_, err := client.DeployStack(context.Background(), &deploy.Payload{
		StackName:        "gitea",
		StackFileContent: "services: {}\n",
	})

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
	assert.Equal(t, "conflict: a stack named gitea already exists", apiErr.Message)
}

func TestHTTPClient_ListStacks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/stacks", r.URL.Path)
		assert.Equal(t, http.MethodGet, r.Method)
		json.NewEncoder(w).Encode([]Stack{{ID: 1, Name: "jellyfin"}, {ID: 2, Name: "gitea"}})
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "key", 1, true)
	stacks, err := client.ListStacks(context.Background())
	require.NoError(t, err)
	require.Len(t, stacks, 2)
	assert.Equal(t, "jellyfin", stacks[0].Name)
}

func TestHTTPClient_DeleteStack(t *testing.T) {
	var gotPath, gotQuery, gotMethod string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotMethod = r.Method
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "key", 2, true)
	require.NoError(t, client.DeleteStack(context.Background(), 7))
	assert.Equal(t, "/api/stacks/7", gotPath)
	assert.Equal(t, "endpointId=2", gotQuery)
	assert.Equal(t, http.MethodDelete, gotMethod)
}

func TestHTTPClient_NotConfigured(t *testing.T) {
	client := NewHTTPClient("", "", 1, true)

	_, err := client.DeployStack(context.Background(), &deploy.Payload{StackName: "x"})
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.ErrorIs(t, client.ValidateConnection(context.Background()), ErrNotConfigured)
	_, err = client.ListStacks(context.Background())
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.ErrorIs(t, client.DeleteStack(context.Background(), 1), ErrNotConfigured)
}

func TestHTTPClient_NonJSONErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream unavailable"))
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "key", 1, true)
	_, err := client.ListStacks(context.Background())

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Equal(t, "upstream unavailable", apiErr.Message)
}
