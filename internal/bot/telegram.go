package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/sakif/cutout-bot/internal/service"
	"github.com/sakif/cutout-bot/internal/subscription"
)

var (
	_ subscription.MemberLookup = (*Client)(nil)
	_ service.ImageSource       = (*Client)(nil)
	_ chatAPI                   = (*tgbotapi.BotAPI)(nil)
	_ API                       = (*tgbotapi.BotAPI)(nil)
	_ Updater                   = (*tgbotapi.BotAPI)(nil)
)

// chatAPI is the part of *tgbotapi.BotAPI the Client needs.
type chatAPI interface {
	GetChatMember(config tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error)
	GetFileDirectURL(fileID string) (string, error)
}

// Client adapts the Telegram Bot API to the platform-facing interfaces of the
// service layer: subscription.MemberLookup and service.ImageSource.
type Client struct {
	api      chatAPI
	http     *http.Client
	maxBytes int64
}

// NewClient wraps api. Downloads are cut off after maxBytes+1 bytes so the
// caller can tell an oversize file from one exactly at the limit.
func NewClient(api chatAPI, maxBytes int64, downloadTimeout time.Duration) *Client {
	if downloadTimeout <= 0 {
		downloadTimeout = 30 * time.Second
	}
	return &Client{
		api:      api,
		http:     &http.Client{Timeout: downloadTimeout},
		maxBytes: maxBytes,
	}
}

// MemberStatus returns the raw chat member status ("member", "left", ...).
//
// The library call takes no context, so it runs in its own goroutine and the
// result is dropped if ctx expires first.
func (c *Client) MemberStatus(ctx context.Context, channelID, userID int64) (string, error) {
	type result struct {
		status string
		err    error
	}
	done := make(chan result, 1)

	go func() {
		member, err := c.api.GetChatMember(tgbotapi.GetChatMemberConfig{
			ChatConfigWithUser: tgbotapi.ChatConfigWithUser{ChatID: channelID, UserID: userID},
		})
		done <- result{status: member.Status, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return "", fmt.Errorf("telegram: getChatMember: %w", stripURL(res.err))
		}
		return res.status, nil
	case <-ctx.Done():
		return "", fmt.Errorf("telegram: getChatMember: %w", ctx.Err())
	}
}

// Fetch downloads the file behind a Telegram file_id.
func (c *Client) Fetch(ctx context.Context, fileID string) ([]byte, error) {
	fileURL, err := c.api.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("telegram: resolving file: %w", stripURL(err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("telegram: building download request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("telegram: downloading file: %w", stripURL(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("telegram: downloading file: status %d", resp.StatusCode)
	}

	var body io.Reader = resp.Body
	if c.maxBytes > 0 {
		body = io.LimitReader(resp.Body, c.maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("telegram: reading file: %w", err)
	}
	return data, nil
}

// stripURL drops the request URL from a transport error. Every Bot API URL
// embeds the bot token, and *url.Error prints it.
func stripURL(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		return ue.Err
	}
	return err
}
