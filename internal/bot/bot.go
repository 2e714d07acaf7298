// Package bot is the Telegram front-end.
//
// It turns updates into service calls and service results into chat
// messages. No quota rule or ledger write lives here; the bot only decides
// what to say. Updates are read by a single long-polling loop and handled
// by a Pool of workers, so one slow background removal does not stall
// every other chat.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/sakif/cutout-bot/internal/logger"
	"github.com/sakif/cutout-bot/internal/model"
	"github.com/sakif/cutout-bot/internal/quota"
	"github.com/sakif/cutout-bot/internal/service"
)

// API is the outbound half of *tgbotapi.BotAPI.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Updater is the inbound half of *tgbotapi.BotAPI.
type Updater interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// ImageProcessor is implemented by *service.ImageService.
type ImageProcessor interface {
	Process(ctx context.Context, userID int64, img service.InboundImage) (*service.ProcessResult, error)
}

// Funnel is implemented by *service.FunnelService.
type Funnel interface {
	Start(ctx context.Context, userID int64) error
	ConfirmSubscription(ctx context.Context, userID int64) (bool, error)
	ShowTariffs(ctx context.Context, userID int64, clicked bool) ([]model.Plan, error)
	UsageSummary(ctx context.Context, userID int64) (*service.UsageSummary, error)
}

// Reports is implemented by *service.StatsService.
type Reports interface {
	Today(ctx context.Context) (*service.RangeStats, error)
	RangeStats(ctx context.Context, daysBack int) (*service.RangeStats, error)
	Conversion(ctx context.Context, daysBack int) (*service.ConversionReport, error)
	Plans(ctx context.Context) ([]model.Plan, error)
}

// Options configures the front-end.
type Options struct {
	ChannelURL     string
	AdminID        int64 // 0 disables the operator commands
	Workers        int
	PollTimeout    int // seconds
	MaxImageBytes  int64
	Limits         quota.Limits
	HandlerTimeout time.Duration // per update, default 3m
}

// Bot dispatches Telegram updates.
type Bot struct {
	api     API
	images  ImageProcessor
	funnel  Funnel
	reports Reports
	opts    Options
	logger  *slog.Logger
}

// New creates a Bot.
func New(api API, images ImageProcessor, funnel Funnel, reports Reports, opts Options, logger *slog.Logger) *Bot {
	if opts.HandlerTimeout <= 0 {
		opts.HandlerTimeout = 3 * time.Minute
	}
	if opts.MaxImageBytes <= 0 {
		opts.MaxImageBytes = service.DefaultMaxImageBytes
	}
	return &Bot{
		api:     api,
		images:  images,
		funnel:  funnel,
		reports: reports,
		opts:    opts,
		logger:  logger,
	}
}

// Run long-polls for updates until ctx is cancelled. Updates already handed
// to a worker run to completion before Run returns.
func (b *Bot) Run(ctx context.Context, updater Updater) error {
	pool := NewPool(b.opts.Workers, b.HandleUpdate, b.logger)
	// Handlers outlive ctx so a user is never left without an answer
	// mid-removal; each is bounded by HandlerTimeout instead.
	pool.Start(context.WithoutCancel(ctx))
	defer pool.Stop()

	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = b.opts.PollTimeout
	updates := updater.GetUpdatesChan(cfg)

	b.logger.Info("bot polling for updates", slog.Int("workers", b.opts.Workers))
	for {
		select {
		case <-ctx.Done():
			updater.StopReceivingUpdates()
			b.logger.Info("bot stopped polling")
			return nil
		case upd, ok := <-updates:
			if !ok {
				return errors.New("bot: update channel closed")
			}
			if err := pool.Submit(ctx, upd); err != nil {
				updater.StopReceivingUpdates()
				return nil
			}
		}
	}
}

// HandleUpdate routes one update. It never returns an error: every failure
// is logged and, where there is someone to answer, turned into a message.
func (b *Bot) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	ctx, cancel := context.WithTimeout(ctx, b.opts.HandlerTimeout)
	defer cancel()

	log := b.logger.With(slog.Int("update_id", upd.UpdateID))
	ctx = logger.WithContext(ctx, log)

	switch {
	case upd.CallbackQuery != nil:
		b.handleCallback(ctx, upd.CallbackQuery)
	case upd.Message != nil:
		b.handleMessage(ctx, upd.Message)
	}
}

func (b *Bot) isAdmin(userID int64) bool {
	return b.opts.AdminID != 0 && userID == b.opts.AdminID
}

// ===== Messages =====

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil || msg.Chat == nil {
		return
	}

	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}

	if img, ok := inboundImage(msg); ok {
		b.handleImage(ctx, msg.Chat.ID, msg.From.ID, img)
		return
	}

	// Anything else gets the welcome screen again.
	b.reply(ctx, msg.Chat.ID, welcomeText(b.opts.Limits), mainKeyboard())
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID, userID := msg.Chat.ID, msg.From.ID

	switch msg.Command() {
	case "start":
		if err := b.funnel.Start(ctx, userID); err != nil {
			b.logFailure(ctx, "start", userID, err)
		}
		b.reply(ctx, chatID, welcomeText(b.opts.Limits), mainKeyboard())

	case "me":
		summary, err := b.funnel.UsageSummary(ctx, userID)
		if err != nil {
			b.logFailure(ctx, "usage summary", userID, err)
			b.reply(ctx, chatID, errorText(err, b.opts.MaxImageBytes), mainKeyboard())
			return
		}
		b.reply(ctx, chatID, usageText(summary), mainKeyboard())

	case "admin", "stats":
		if !b.isAdmin(userID) {
			return
		}
		b.reply(ctx, chatID, adminMenuText, adminKeyboard())

	default:
		b.reply(ctx, chatID, welcomeText(b.opts.Limits), mainKeyboard())
	}
}

// inboundImage extracts the image from a photo or an image document.
// For photos Telegram sends several sizes; the last one is the largest.
func inboundImage(msg *tgbotapi.Message) (service.InboundImage, bool) {
	if n := len(msg.Photo); n > 0 {
		largest := msg.Photo[n-1]
		return service.InboundImage{
			FileRef: largest.FileID,
			Kind:    service.KindPhoto,
			Size:    int64(largest.FileSize),
		}, true
	}
	if doc := msg.Document; doc != nil && strings.HasPrefix(strings.ToLower(doc.MimeType), "image/") {
		return service.InboundImage{
			FileRef:  doc.FileID,
			Kind:     service.KindDocument,
			MimeType: doc.MimeType,
			Size:     int64(doc.FileSize),
		}, true
	}
	return service.InboundImage{}, false
}

func (b *Bot) handleImage(ctx context.Context, chatID, userID int64, img service.InboundImage) {
	res, err := b.images.Process(ctx, userID, img)
	if err != nil {
		b.logFailure(ctx, "process image", userID, err)
		b.reply(ctx, chatID, errorText(err, b.opts.MaxImageBytes), mainKeyboard())
		return
	}

	if res.Status == service.StatusBlocked {
		text, kb := blockedText(res.Decision, b.opts.ChannelURL)
		b.reply(ctx, chatID, text, kb)
		return
	}

	// Sent as a document so the transparent PNG is not recompressed to JPEG.
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: "result.png", Bytes: res.Image})
	doc.Caption = doneCaption
	doc.ReplyMarkup = mainKeyboard()
	if _, err := b.api.Send(doc); err != nil {
		logger.FromContext(ctx, b.logger).Error("failed to send result",
			slog.String("request_id", res.RequestID),
			slog.Int64("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
}

// ===== Callbacks =====

func (b *Bot) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	// Stop the button spinner whatever happens next.
	defer b.answerCallback(ctx, cq.ID)

	if cq.From == nil || cq.Message == nil || cq.Message.Chat == nil {
		return
	}
	chatID, userID := cq.Message.Chat.ID, cq.From.ID

	switch cq.Data {
	case cbRemoveBg:
		b.reply(ctx, chatID, askPhotoText, backKeyboard())

	case cbBack:
		b.reply(ctx, chatID, welcomeText(b.opts.Limits), mainKeyboard())

	case cbTariffs:
		plans, err := b.funnel.ShowTariffs(ctx, userID, true)
		if err != nil {
			b.logFailure(ctx, "show tariffs", userID, err)
			b.reply(ctx, chatID, errorText(err, b.opts.MaxImageBytes), backKeyboard())
			return
		}
		b.reply(ctx, chatID, tariffsText(plans), backKeyboard())

	case cbCheckSub:
		ok, err := b.funnel.ConfirmSubscription(ctx, userID)
		if err != nil {
			// The check itself already ran; only its ledger row is missing.
			b.logFailure(ctx, "confirm subscription", userID, err)
		}
		if ok {
			b.reply(ctx, chatID, subConfirmedText, mainKeyboard())
		} else {
			b.reply(ctx, chatID, subNotFoundText, subscribeKeyboard(b.opts.ChannelURL))
		}

	case cbStatsToday, cbStats7d, cbStatsConv, cbStatsPlans:
		if !b.isAdmin(userID) {
			return
		}
		b.reply(ctx, chatID, b.report(ctx, cq.Data), tgbotapi.InlineKeyboardMarkup{})

	default:
		logger.FromContext(ctx, b.logger).Debug("unknown callback", slog.String("data", cq.Data))
	}
}

// report renders one of the admin reports. Errors become a short notice;
// the operator can read the logs for the rest.
func (b *Bot) report(ctx context.Context, which string) string {
	var (
		text string
		err  error
	)
	switch which {
	case cbStatsToday:
		var rs *service.RangeStats
		if rs, err = b.reports.Today(ctx); err == nil {
			text = rangeText("Today", rs)
		}
	case cbStats7d:
		var rs *service.RangeStats
		if rs, err = b.reports.RangeStats(ctx, statsWeekDays); err == nil {
			text = rangeText(fmt.Sprintf("%d days", statsWeekDays), rs)
		}
	case cbStatsConv:
		var rep *service.ConversionReport
		if rep, err = b.reports.Conversion(ctx, statsWeekDays); err == nil {
			text = conversionText(rep)
		}
	case cbStatsPlans:
		var plans []model.Plan
		if plans, err = b.reports.Plans(ctx); err == nil {
			text = plansTableText(plans)
		}
	}
	if err != nil {
		logger.FromContext(ctx, b.logger).Error("report failed",
			slog.String("report", which),
			slog.String("error", err.Error()),
		)
		return "⚠️ Report unavailable: " + errorKind(err)
	}
	return text
}

// ===== Outbound =====

func (b *Bot) reply(ctx context.Context, chatID int64, text string, kb tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	if len(kb.InlineKeyboard) > 0 {
		msg.ReplyMarkup = kb
	}
	if _, err := b.api.Send(msg); err != nil {
		logger.FromContext(ctx, b.logger).Error("failed to send message",
			slog.Int64("chat_id", chatID),
			slog.String("error", err.Error()),
		)
	}
}

func (b *Bot) answerCallback(ctx context.Context, id string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(id, "")); err != nil {
		logger.FromContext(ctx, b.logger).Warn("failed to answer callback", slog.String("error", err.Error()))
	}
}

func (b *Bot) logFailure(ctx context.Context, op string, userID int64, err error) {
	logger.FromContext(ctx, b.logger).Error(op+" failed",
		slog.Int64("user_id", userID),
		slog.String("kind", errorKind(err)),
		slog.String("error", err.Error()),
	)
}
