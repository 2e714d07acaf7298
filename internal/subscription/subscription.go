// Package subscription answers "is this user a member of the gate channel?".
//
// FAIL-CLOSED:
// The membership lookup goes over the network to the messaging platform and
// can fail in ordinary ways: timeouts, the bot lacking admin rights in the
// channel, a user the platform refuses to resolve. Every such failure is
// treated as "not subscribed". A broken check must never hand out the
// subscriber allowance. The failure is still recorded, as a check_sub_error
// event, so operators can tell a broken lookup from a user who simply did
// not join.
package subscription

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/cutout-bot/internal/apperror"
	"github.com/sakif/cutout-bot/internal/model"
	"github.com/sakif/cutout-bot/internal/repository"
)

// DefaultTimeout bounds a single membership lookup.
const DefaultTimeout = 10 * time.Second

// Membership statuses reported by the platform.
const (
	StatusCreator       = "creator"
	StatusAdministrator = "administrator"
	StatusMember        = "member"
	StatusRestricted    = "restricted"
	StatusLeft          = "left"
	StatusKicked        = "kicked"
)

// MemberLookup fetches a user's raw membership status in a channel.
type MemberLookup interface {
	MemberStatus(ctx context.Context, channelID, userID int64) (string, error)
}

// IsMemberStatus reports whether status counts as subscribed.
func IsMemberStatus(status string) bool {
	switch status {
	case StatusCreator, StatusAdministrator, StatusMember, StatusRestricted:
		return true
	default:
		return false
	}
}

// Checker is the subscription oracle.
type Checker struct {
	lookup    MemberLookup
	events    repository.EventRepository
	channelID int64
	timeout   time.Duration
	logger    *slog.Logger
}

// NewChecker creates a Checker for channelID. A non-positive timeout falls
// back to DefaultTimeout.
func NewChecker(lookup MemberLookup, events repository.EventRepository, channelID int64, timeout time.Duration, logger *slog.Logger) *Checker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Checker{
		lookup:    lookup,
		events:    events,
		channelID: channelID,
		timeout:   timeout,
		logger:    logger,
	}
}

// IsSubscribed never returns an error. Any lookup failure yields false.
func (c *Checker) IsSubscribed(ctx context.Context, userID int64) bool {
	lookupCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	status, err := c.lookup.MemberStatus(lookupCtx, c.channelID, userID)
	if err != nil {
		err = fmt.Errorf("%w: %w", apperror.ErrSubscriptionCheck, err)
		c.logger.Warn("membership lookup failed, treating as not subscribed",
			slog.Int64("user_id", userID),
			slog.Int64("channel_id", c.channelID),
			slog.String("error", err.Error()),
		)

		// The caller's ctx may be the one that expired; the event still has
		// to land, so it gets its own short deadline.
		evCtx, evCancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer evCancel()
		if evErr := c.events.AppendEvent(evCtx, model.EventCheckSubError, &userID, err.Error()); evErr != nil {
			c.logger.Error("failed to record check_sub_error",
				slog.Int64("user_id", userID),
				slog.String("error", evErr.Error()),
			)
		}
		return false
	}

	return IsMemberStatus(status)
}
