package photoroom

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/cutout-bot/internal/apperror"
	"github.com/sakif/cutout-bot/internal/model"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, mutate ...func(*Config)) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := Config{APIKey: "test-key", Endpoint: srv.URL, Timeout: 2 * time.Second, RPS: 100, Burst: 10}
	for _, m := range mutate {
		m(&cfg)
	}
	c, err := New(cfg)
	require.NoError(t, err)
	return c
}

func TestRemove_Success(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))

		file, header, err := r.FormFile("imageFile")
		if !assert.NoError(t, err) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer file.Close()

		assert.Equal(t, "image.png", header.Filename)
		assert.Equal(t, "image/png", header.Header.Get("Content-Type"))
		data, _ := io.ReadAll(file)
		assert.Equal(t, "source-bytes", string(data))

		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("cutout-bytes"))
	})

	res, err := c.Remove(context.Background(), []byte("source-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "cutout-bytes", string(res.Image))
	assert.Equal(t, "image/png", res.ContentType)
}

func TestRemove_NonOKIsAPIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"detail":"credits exhausted"}` + strings.Repeat("x", 2000)))
	})

	_, err := c.Remove(context.Background(), []byte("img"))
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusPaymentRequired, apiErr.Status)
	assert.Contains(t, apiErr.Body, "credits exhausted")
	assert.LessOrEqual(t, len([]rune(apiErr.Body)), model.MaxEventMetaLength)
	assert.True(t, errors.Is(err, apperror.ErrRemovalFailed))
}

func TestRemove_EmptyBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	_, err := c.Remove(context.Background(), []byte("img"))
	assert.ErrorIs(t, err, apperror.ErrRemovalFailed)
}

func TestRemove_OversizeBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte(strings.Repeat("x", 17)))
	}, func(cfg *Config) { cfg.MaxResponseBytes = 16 })

	_, err := c.Remove(context.Background(), []byte("img"))
	require.ErrorIs(t, err, apperror.ErrRemovalFailed)
	assert.Contains(t, err.Error(), "exceeds 16 bytes")
}

func TestRemove_BodyAtLimit(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 16)))
	}, func(cfg *Config) { cfg.MaxResponseBytes = 16 })

	res, err := c.Remove(context.Background(), []byte("img"))
	require.NoError(t, err)
	assert.Len(t, res.Image, 16)
}

func TestRemove_Timeout(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}, func(cfg *Config) { cfg.Timeout = 50 * time.Millisecond })

	_, err := c.Remove(context.Background(), []byte("img"))
	assert.ErrorIs(t, err, apperror.ErrRemovalFailed)
}

func TestRemove_EmptyInput(t *testing.T) {
	called := false
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) { called = true })

	_, err := c.Remove(context.Background(), nil)
	assert.ErrorIs(t, err, apperror.ErrRemovalFailed)
	assert.False(t, called)
}

func TestRemove_RateLimiterHonoursContext(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}, func(cfg *Config) { cfg.RPS = 0.001; cfg.Burst = 1 })

	_, err := c.Remove(context.Background(), []byte("img"))
	require.NoError(t, err)

	// the single token is spent; the next call would wait ~1000s
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.Remove(ctx, []byte("img"))
	assert.ErrorIs(t, err, apperror.ErrRemovalFailed)
}

func TestNew_RequiresAPIKey(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, apperror.ErrConfigMissing)

	c, err := New(Config{APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Endpoint, c.config.Endpoint)
	assert.Equal(t, 60*time.Second, c.config.Timeout)
	assert.Equal(t, int64(64<<20), c.config.MaxResponseBytes)
}
