// Package photoroom implements remover.Remover on top of the PhotoRoom edit API.
package photoroom

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"golang.org/x/time/rate"

	"github.com/sakif/cutout-bot/internal/apperror"
	"github.com/sakif/cutout-bot/internal/model"
	"github.com/sakif/cutout-bot/internal/remover"
)

const (
	formField    = "imageFile"
	formFilename = "image.png"
)

var _ remover.Remover = (*Client)(nil)

// APIError is a non-200 answer from PhotoRoom. Body is truncated to
// model.MaxEventMetaLength so it can go straight into event meta.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("photoroom: status %d: %s", e.Status, e.Body)
}

// Unwrap lets callers match every API failure with apperror.ErrRemovalFailed.
func (e *APIError) Unwrap() error { return apperror.ErrRemovalFailed }

// Client calls the PhotoRoom edit endpoint.
type Client struct {
	config     Config
	httpClient *http.Client
	limiter    *rate.Limiter
}

// New creates a client. Zero fields in cfg fall back to DefaultConfig.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, apperror.ConfigMissing("PHOTOROOM_API_KEY")
	}
	def := DefaultConfig()
	if cfg.Endpoint == "" {
		cfg.Endpoint = def.Endpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.RPS <= 0 {
		cfg.RPS = def.RPS
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	if cfg.MaxResponseBytes <= 0 {
		cfg.MaxResponseBytes = def.MaxResponseBytes
	}

	return &Client{
		config: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
	}, nil
}

// Remove uploads image and returns the cut-out PNG.
//
// Any failure (limiter wait cancelled, transport error, timeout, non-200,
// empty or oversize body) is returned as an error matching apperror.ErrRemovalFailed.
// Nothing is retried.
func (c *Client) Remove(ctx context.Context, image []byte) (*remover.Result, error) {
	start := time.Now()

	body, contentType, err := encodeForm(image)
	if err != nil {
		return nil, fmt.Errorf("photoroom: building form: %w: %w", apperror.ErrRemovalFailed, err)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("photoroom: rate limiter: %w: %w", apperror.ErrRemovalFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("photoroom: creating request: %w: %w", apperror.ErrRemovalFailed, err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-api-key", c.config.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("photoroom: sending request: %w: %w", apperror.ErrRemovalFailed, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 4096)) //nolint:errcheck
		return nil, &APIError{Status: resp.StatusCode, Body: model.TruncateMeta(string(excerpt))}
	}

	out, err := io.ReadAll(io.LimitReader(resp.Body, c.config.MaxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("photoroom: reading response: %w: %w", apperror.ErrRemovalFailed, err)
	}
	if int64(len(out)) > c.config.MaxResponseBytes {
		return nil, fmt.Errorf("photoroom: %w: response exceeds %d bytes", apperror.ErrRemovalFailed, c.config.MaxResponseBytes)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("photoroom: %w: empty response body", apperror.ErrRemovalFailed)
	}

	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = "image/png"
	}
	return &remover.Result{Image: out, ContentType: ct, Duration: time.Since(start)}, nil
}

// encodeForm writes image as the single imageFile part.
func encodeForm(image []byte) (*bytes.Buffer, string, error) {
	if len(image) == 0 {
		return nil, "", errors.New("empty image")
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	// CreateFormFile hardcodes application/octet-stream, so build the header by hand.
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, formField, formFilename))
	h.Set("Content-Type", "image/png")

	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(image); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
