package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetJSON_DecodesAndSendsCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/items", r.URL.Path)
		assert.Equal(t, "5", r.URL.Query().Get("count"))
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"ok"}`))
	}))
	defer srv.Close()

	c := New(&Config{BaseURL: srv.URL + "/", APIKey: "secret", APIKeyHeader: "X-Api-Key"})
	var out struct {
		Name string `json:"name"`
	}
	require.NoError(t, c.GetJSON(context.Background(), "/api/items", map[string]string{"count": "5"}, &out))
	assert.Equal(t, "ok", out.Name)
}

func TestGetJSON_BearerToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := New(&Config{BaseURL: srv.URL, APIKey: "tok", APIKeyHeader: "Authorization"})
	var out map[string]interface{}
	require.NoError(t, c.GetJSON(context.Background(), "/", nil, &out))
}

func TestGetJSON_StatusErrorCarriesPlatformMessage(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		message string
		temp    bool
	}{
		{"error string", http.StatusForbidden, `{"error":"forbidden"}`, "forbidden", false},
		{"error object", http.StatusUnauthorized, `{"error":{"name":"invalidToken"}}`, "invalidToken", false},
		{"message field", http.StatusTooManyRequests, `{"message":"slow down"}`, "slow down", true},
		{"no body", http.StatusBadGateway, ``, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := New(&Config{BaseURL: srv.URL})
			var out map[string]interface{}
			err := c.GetJSON(context.Background(), "/x", nil, &out)

			var statusErr *StatusError
			require.True(t, errors.As(err, &statusErr))
			assert.Equal(t, tt.status, statusErr.StatusCode)
			assert.Equal(t, tt.message, statusErr.Message)
			assert.Equal(t, tt.temp, statusErr.Temporary())
			assert.NotEmpty(t, statusErr.Error())
		})
	}
}

func TestGetBytes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte{0x89, 'P', 'N', 'G'})
	}))
	defer srv.Close()

	c := New(&Config{})
	body, contentType, err := c.GetBytes(context.Background(), srv.URL+"/art.png")
	require.NoError(t, err)
	assert.Equal(t, "image/png", contentType)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, body)

	_, _, err = c.GetBytes(context.Background(), srv.URL+"/missing")
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
}

func TestWait_RespectsCancelledContext(t *testing.T) {
	c := New(&Config{RatePerSecond: 0.001})
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, c.wait(ctx))
	cancel()
	assert.Error(t, c.wait(ctx))
}

func TestGetBytes_RetriesTemporaryFailures(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := New(&Config{RetryCount: 2})
	body, _, err := c.GetBytes(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestGetBytes_EnforcesSizeLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/small":
			_, _ = w.Write([]byte("12345678"))
		case "/declared":
			_, _ = w.Write([]byte("1234567890"))
		case "/streamed":
			// No Content-Length: the limit applies while reading.
			_, _ = w.Write([]byte("123456"))
			w.(http.Flusher).Flush()
			_, _ = w.Write([]byte("789012"))
		}
	}))
	defer srv.Close()

	c := New(&Config{MaxBodyBytes: 8})

	body, _, err := c.GetBytes(context.Background(), srv.URL+"/small")
	require.NoError(t, err)
	assert.Equal(t, "12345678", string(body))

	_, _, err = c.GetBytes(context.Background(), srv.URL+"/declared")
	assert.ErrorIs(t, err, ErrBodyTooLarge)

	_, _, err = c.GetBytes(context.Background(), srv.URL+"/streamed")
	assert.ErrorIs(t, err, ErrBodyTooLarge)
}
