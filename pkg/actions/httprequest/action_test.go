package httprequest

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hookflow/hookflow/pkg/models"
)

func execute(t *testing.T, config map[string]any) (map[string]any, error) {
	t.Helper()

	action := NewAction()
	out, err := action.Execute(context.Background(), models.ExecutionContext{}, config, slog.Default())
	if err != nil {
		return nil, err
	}

	result, ok := out.(map[string]any)
	require.True(t, ok)

	return result, nil
}

func TestValidateConfig(t *testing.T) {
	action := NewAction()

	assert.NoError(t, action.ValidateConfig(map[string]any{"url": "http://example.com"}))
	assert.ErrorIs(t, action.ValidateConfig(map[string]any{}), ErrURLRequired)
	assert.ErrorIs(t, action.ValidateConfig(map[string]any{"url": ""}), ErrURLRequired)
}

func TestExecute_GetJSONResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"order_id": 42}`))
	}))
	defer server.Close()

	result, err := execute(t, map[string]any{"url": server.URL})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, result["status_code"])

	body, ok := result["body"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(42), body["order_id"])
}

func TestExecute_PostWithBodyAndHeaders(t *testing.T) {
	var (
		gotBody   map[string]any
		gotHeader string
	)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		gotHeader = r.Header.Get("X-Api-Key")

		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)

		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	result, err := execute(t, map[string]any{
		"url":     server.URL,
		"method":  "post",
		"body":    map[string]any{"name": "order"},
		"headers": map[string]any{"X-Api-Key": "k1"},
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, result["status_code"])
	assert.Equal(t, "k1", gotHeader)
	assert.Equal(t, "order", gotBody["name"])
}

func TestExecute_NonJSONBodyKeptAsString(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("plain text"))
	}))
	defer server.Close()

	result, err := execute(t, map[string]any{"url": server.URL})
	require.NoError(t, err)

	assert.Equal(t, "plain text", result["body"])
}

func TestExecute_ClientErrorStatusIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	result, err := execute(t, map[string]any{"url": server.URL})
	require.NoError(t, err)

	assert.Equal(t, http.StatusNotFound, result["status_code"])
}

func TestExecute_ServerErrorStatusFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := execute(t, map[string]any{"url": server.URL})
	assert.ErrorIs(t, err, ErrServerStatus)
}
