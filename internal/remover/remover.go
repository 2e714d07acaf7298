package remover

import (
	"context"
	"time"
)

// Result is the output of a background removal.
type Result struct {
	Image       []byte        `json:"-"`
	ContentType string        `json:"contentType"`
	Duration    time.Duration `json:"duration"`
}

// Remover represents the external service that cuts the background out of an
// image. Implementations must honour ctx cancellation and must not retry.
type Remover interface {
	Remove(ctx context.Context, image []byte) (*Result, error)
}
