package platform

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewHTTPClient(t *testing.T) {
	t.Run("requires base URL", func(t *testing.T) {
		_, err := NewHTTPClient(HTTPConfig{}, zap.NewNop())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "base URL is required")
	})

	t.Run("defaults timeout", func(t *testing.T) {
		client, err := NewHTTPClient(HTTPConfig{BaseURL: "http://localhost:1"}, nil)
		require.NoError(t, err)
		assert.Equal(t, 30*time.Second, client.client.Timeout)
	})
}

func TestHTTPClientExecute(t *testing.T) {
	t.Run("decodes success payload", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/execute", r.URL.Path)
			assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

			var op Operation
			require.NoError(t, json.NewDecoder(r.Body).Decode(&op))
			assert.Equal(t, "property.update", op.Name)
			assert.Equal(t, "ctr_ABC", op.Scope)

			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"propertyId":"prp_1"}`))
		}))
		defer srv.Close()

		client, err := NewHTTPClient(HTTPConfig{BaseURL: srv.URL, Token: "test-token"}, zap.NewNop())
		require.NoError(t, err)

		result, err := client.Execute(context.Background(), Operation{Name: "property.update", Scope: "ctr_ABC"})
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, result.Status)

		body, ok := result.Body.(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "prp_1", body["propertyId"])
	})

	t.Run("error status yields OperationError with verbatim payload", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/problem+json")
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"type":"insufficient_permissions","status":403}`))
		}))
		defer srv.Close()

		client, err := NewHTTPClient(HTTPConfig{BaseURL: srv.URL}, zap.NewNop())
		require.NoError(t, err)

		_, err = client.Execute(context.Background(), Operation{Name: "property.update"})
		require.Error(t, err)

		var opErr *OperationError
		require.True(t, errors.As(err, &opErr))
		assert.Equal(t, "property.update", opErr.Operation)
		assert.Equal(t, http.StatusForbidden, opErr.Status)

		payload, ok := opErr.Payload.(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "insufficient_permissions", payload["type"])
	})

	t.Run("non-JSON error payload kept as string", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("upstream unavailable"))
		}))
		defer srv.Close()

		client, err := NewHTTPClient(HTTPConfig{BaseURL: srv.URL}, zap.NewNop())
		require.NoError(t, err)

		_, err = client.Execute(context.Background(), Operation{Name: "resources.list"})
		var opErr *OperationError
		require.True(t, errors.As(err, &opErr))
		assert.Equal(t, "upstream unavailable", opErr.Payload)
	})
}

func TestHTTPClientProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/probe", r.URL.Path)
		_, _ = w.Write([]byte(`{"allowed":true}`))
	}))
	defer srv.Close()

	client, err := NewHTTPClient(HTTPConfig{BaseURL: srv.URL}, zap.NewNop())
	require.NoError(t, err)

	result, err := client.Probe(context.Background(), Operation{Name: "permissions.write-check"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, result.Status)
}

func TestHTTPClientListScopes(t *testing.T) {
	t.Run("returns scopes", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/scopes", r.URL.Path)
			_, _ = w.Write([]byte(`{"scopes":["ctr_ABC","ctr_XYZ"]}`))
		}))
		defer srv.Close()

		client, err := NewHTTPClient(HTTPConfig{BaseURL: srv.URL}, zap.NewNop())
		require.NoError(t, err)

		scopes, err := client.ListScopes(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []string{"ctr_ABC", "ctr_XYZ"}, scopes)
	})

	t.Run("error status fails", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer srv.Close()

		client, err := NewHTTPClient(HTTPConfig{BaseURL: srv.URL}, zap.NewNop())
		require.NoError(t, err)

		_, err = client.ListScopes(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "status 401")
	})
}
