// Package service contains the business logic layer of the bot.
//
// THE LAYERS:
//
//	Front-end (Telegram bot, operator HTTP API) → parses updates/requests, renders replies
//	Service (this package)                      → enforces the quota funnel, orchestrates
//	Repository (sqlite, postgres)               → reads/writes the tables
//
// Services never see Telegram types or HTTP requests. They take primitives
// and small domain structs, and return domain results plus apperror values.
// Each front-end translates those into its own vocabulary (a chat message,
// a status code).
//
// DEPENDENCY INJECTION:
// Every collaborator is an interface (repository.UsageRepository,
// remover.Remover, ImageSource ...). main.go wires the real ones; the tests in
// this package pass fakes, or a real in-memory SQLite store.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/cutout-bot/internal/apperror"
	"github.com/sakif/cutout-bot/internal/model"
	"github.com/sakif/cutout-bot/internal/quota"
	"github.com/sakif/cutout-bot/internal/remover"
	"github.com/sakif/cutout-bot/internal/repository"
)

// DefaultMaxImageBytes is the source size ceiling (12 MB).
const DefaultMaxImageBytes int64 = 12 << 20

// ImageSource downloads the bytes behind a platform file reference.
type ImageSource interface {
	Fetch(ctx context.Context, fileRef string) ([]byte, error)
}

// Subscription is the oracle the quota engine consults in the bonus tier.
// *subscription.Checker satisfies it.
type Subscription interface {
	IsSubscribed(ctx context.Context, userID int64) bool
}

// ImageStore is the slice of the persistence store the orchestrator needs.
type ImageStore interface {
	repository.UserRepository
	repository.UsageRepository
	repository.EventRepository
}

// ImageKind says which kind of attachment carried the image.
type ImageKind string

const (
	KindPhoto    ImageKind = "photo"
	KindDocument ImageKind = "document"
)

// InboundImage is the normalized form of an incoming image. A compressed
// photo and an image sent "as file" both end up here.
type InboundImage struct {
	FileRef  string    `json:"fileRef"`
	Kind     ImageKind `json:"kind"`
	MimeType string    `json:"mimeType,omitempty"` // documents only
	Size     int64     `json:"size,omitempty"`     // as reported by the platform, 0 if unknown
}

// Validate rejects references that are not images.
func (img InboundImage) Validate() error {
	if strings.TrimSpace(img.FileRef) == "" {
		return apperror.ValidationFailed("fileRef", "file reference is required")
	}
	switch img.Kind {
	case KindPhoto:
		return nil
	case KindDocument:
		if !strings.HasPrefix(strings.ToLower(img.MimeType), "image/") {
			return apperror.ValidationFailed("mimeType",
				fmt.Sprintf("document of type %q is not an image", img.MimeType))
		}
		return nil
	default:
		return apperror.ValidationFailed("kind", fmt.Sprintf("unknown attachment kind %q", img.Kind))
	}
}

// ProcessStatus is the terminal state of a processing request that did not error.
type ProcessStatus string

const (
	StatusProcessed ProcessStatus = "processed"
	StatusBlocked   ProcessStatus = "blocked"
)

// ProcessResult is what the front-end renders.
//
// For StatusBlocked, Decision says why and Image is nil. For StatusProcessed,
// Image holds the cut-out and UsedThisMonth the counter after the increment.
type ProcessResult struct {
	RequestID     string         `json:"requestId"`
	Status        ProcessStatus  `json:"status"`
	Decision      quota.Decision `json:"decision"`
	Image         []byte         `json:"-"`
	ContentType   string         `json:"contentType,omitempty"`
	UsedThisMonth int            `json:"usedThisMonth"`
}

// ImageService runs one inbound image through the quota funnel and the
// background-removal service.
type ImageService struct {
	store    ImageStore
	engine   *quota.Engine
	subs     Subscription
	source   ImageSource
	remover  remover.Remover
	maxBytes int64
	now      func() time.Time
	logger   *slog.Logger
}

// NewImageService creates an ImageService. maxBytes <= 0 selects
// DefaultMaxImageBytes.
func NewImageService(
	store ImageStore,
	engine *quota.Engine,
	subs Subscription,
	source ImageSource,
	rm remover.Remover,
	maxBytes int64,
	logger *slog.Logger,
) *ImageService {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxImageBytes
	}
	return &ImageService{
		store:    store,
		engine:   engine,
		subs:     subs,
		source:   source,
		remover:  rm,
		maxBytes: maxBytes,
		now:      time.Now,
		logger:   logger,
	}
}

// Process runs the full pipeline for one image:
//
//	RECEIVED → DECIDED → BLOCKED
//	                   → ALLOWED → FETCHING → CALLING_SERVICE → SUCCESS | FAILED
//
// RETURN CONTRACT:
//   - blocked by the quota funnel → (*ProcessResult{Status: StatusBlocked}, nil)
//   - processed                   → (*ProcessResult{Status: StatusProcessed}, nil)
//   - store failure               → error matching apperror.ErrStoreUnavailable
//   - download failure            → error matching apperror.ErrTransportFetch
//   - oversize source             → error matching apperror.ErrImageTooLarge
//   - removal failure             → error matching apperror.ErrRemovalFailed
//
// The usage counter moves only on the SUCCESS path, once, after the removal
// service has answered. A crash between the answer and the increment loses a
// count rather than charging for an image the user never got.
func (s *ImageService) Process(ctx context.Context, userID int64, img InboundImage) (*ProcessResult, error) {
	if err := img.Validate(); err != nil {
		return nil, err
	}

	reqID := xid.New().String()
	log := s.logger.With(
		slog.String("request_id", reqID),
		slog.Int64("user_id", userID),
	)

	// === RECEIVED ===
	// Recorded before any decision so blocked requests still count in the funnel.
	if err := s.store.AppendEvent(ctx, model.EventImageReceived, &userID, string(img.Kind)); err != nil {
		return nil, fmt.Errorf("service/image: recording receipt: %w", err)
	}
	if err := s.store.UpsertUser(ctx, userID); err != nil {
		return nil, fmt.Errorf("service/image: upserting user: %w", err)
	}

	// === DECIDED ===
	// The month is fixed here; a request straddling midnight UTC counts in
	// the month it was admitted in.
	month := model.MonthKey(s.now())
	used, err := s.store.GetMonthlyUsage(ctx, userID, month)
	if err != nil {
		return nil, fmt.Errorf("service/image: reading usage: %w", err)
	}

	decision := s.engine.Decide(ctx, used, func(ctx context.Context) bool {
		return s.subs.IsSubscribed(ctx, userID)
	})
	log.Info("quota decision",
		slog.String("month", month),
		slog.Int("used", used),
		slog.String("decision", decision.String()),
	)

	result := &ProcessResult{
		RequestID:     reqID,
		Decision:      decision,
		UsedThisMonth: used,
	}

	if !decision.Allowed() {
		if err := s.store.AppendEvent(ctx, decision.EventKind(), &userID, ""); err != nil {
			return nil, fmt.Errorf("service/image: recording block: %w", err)
		}
		result.Status = StatusBlocked
		return result, nil
	}

	// === ALLOWED ===
	if err := s.store.AppendEvent(ctx, model.EventRemoveBgStart, &userID, reqID); err != nil {
		return nil, fmt.Errorf("service/image: recording start: %w", err)
	}

	// === FETCHING ===
	if img.Size > s.maxBytes {
		return nil, s.fail(ctx, log, userID, reqID, apperror.ImageTooLarge(img.Size, s.maxBytes))
	}
	src, err := s.source.Fetch(ctx, img.FileRef)
	if err != nil {
		return nil, s.fail(ctx, log, userID, reqID,
			fmt.Errorf("service/image: fetching source: %w: %w", apperror.ErrTransportFetch, err))
	}
	if int64(len(src)) > s.maxBytes {
		return nil, s.fail(ctx, log, userID, reqID, apperror.ImageTooLarge(int64(len(src)), s.maxBytes))
	}

	// === CALLING_SERVICE ===
	out, err := s.remover.Remove(ctx, src)
	if err != nil {
		if !errors.Is(err, apperror.ErrRemovalFailed) {
			err = fmt.Errorf("%w: %w", apperror.ErrRemovalFailed, err)
		}
		return nil, s.fail(ctx, log, userID, reqID, fmt.Errorf("service/image: removing background: %w", err))
	}

	// === SUCCESS ===
	if err := s.store.IncrementMonthlyUsage(ctx, userID, month); err != nil {
		return nil, fmt.Errorf("service/image: incrementing usage: %w", err)
	}
	if err := s.store.AppendEvent(ctx, model.EventRemoveBgSuccess, &userID, reqID); err != nil {
		return nil, fmt.Errorf("service/image: recording success: %w", err)
	}

	log.Info("background removed",
		slog.Int("input_bytes", len(src)),
		slog.Int("output_bytes", len(out.Image)),
		slog.Duration("duration", out.Duration),
	)

	result.Status = StatusProcessed
	result.Image = out.Image
	result.ContentType = out.ContentType
	result.UsedThisMonth = used + 1
	return result, nil
}

// fail records remove_bg_error with a bounded diagnostic and returns cause.
// A failure to record the event is logged; the caller still sees cause.
func (s *ImageService) fail(ctx context.Context, log *slog.Logger, userID int64, reqID string, cause error) error {
	log.Warn("background removal failed", slog.String("error", cause.Error()))

	meta := reqID + " " + cause.Error()
	if err := s.store.AppendEvent(ctx, model.EventRemoveBgError, &userID, meta); err != nil {
		log.Error("failed to record remove_bg_error", slog.String("error", err.Error()))
	}
	return cause
}
