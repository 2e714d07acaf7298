package photoroom

import (
	"time"
)

// Config holds the configuration for the PhotoRoom client.
type Config struct {
	// APIKey is sent in the x-api-key header.
	APIKey string
	// Endpoint is the edit URL. Tests point it at an httptest server.
	Endpoint string
	// Timeout bounds one request including the response body.
	Timeout time.Duration
	// RPS and Burst configure the outbound rate limiter.
	RPS   float64
	Burst int
	// MaxResponseBytes caps the buffered result. Larger answers are an error.
	MaxResponseBytes int64
}

// DefaultConfig provides the production endpoint and limits.
func DefaultConfig() Config {
	return Config{
		Endpoint: "https://image-api.photoroom.com/v2/edit",
		// Large images can take a while to cut out
		Timeout: 60 * time.Second,
		RPS:     5,
		Burst:   5,

		MaxResponseBytes: 64 << 20,
	}
}
