package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/sakif/cutout-bot/internal/apperror"
	"github.com/sakif/cutout-bot/internal/model"
	"github.com/sakif/cutout-bot/internal/quota"
	"github.com/sakif/cutout-bot/internal/service"
)

// Callback data carried by inline buttons.
const (
	cbRemoveBg   = "remove_bg"
	cbTariffs    = "tariffs"
	cbBack       = "back"
	cbCheckSub   = "check_sub"
	cbStatsToday = "stats_today"
	cbStats7d    = "stats_7d"
	cbStatsConv  = "stats_conv"
	cbStatsPlans = "stats_plans"
)

// statsWeekDays is the window behind the "7 days" admin button.
const statsWeekDays = 7

// ===== Keyboards =====

func mainKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🪄 Remove background", cbRemoveBg)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("💳 Tariffs", cbTariffs)),
	)
}

func backKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("⬅️ Back", cbBack)),
	)
}

func subscribeKeyboard(channelURL string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("✅ I subscribed", cbCheckSub)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL("📢 Channel", channelURL)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("⬅️ Back", cbBack)),
	)
}

func tariffsKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("💳 See tariffs", cbTariffs)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("⬅️ Back", cbBack)),
	)
}

func adminKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Today", cbStatsToday)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("7 days", cbStats7d)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Conversion", cbStatsConv)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Plans table", cbStatsPlans)),
	)
}

// ===== User-facing text =====

func welcomeText(l quota.Limits) string {
	var b strings.Builder
	b.WriteString("📸 Send me a photo and I'll remove the background.\n\n")
	if l.FreeUses > 0 {
		fmt.Fprintf(&b, "✅ %s free\n", photos(l.FreeUses))
	}
	if l.SubscriptionBonusUses > 0 {
		fmt.Fprintf(&b, "🔒 %s more for subscribing to the channel\n", photos(l.SubscriptionBonusUses))
	}
	b.WriteString("💳 After that, see the tariffs")
	return b.String()
}

const (
	askPhotoText     = "📸 Send a new photo to remove its background."
	doneCaption      = "✅ Done! Background removed.\n\nWant another? Tap 🪄 \"Remove background\" and send a new photo."
	subConfirmedText = "✅ Subscription confirmed!\n\n📸 Now send a photo and I'll remove the background."
	subNotFoundText  = "❌ Subscription not found.\n\nSubscribe to the channel and tap ✅ \"I subscribed\" again."
	adminMenuText    = "📊 Admin:"
)

// blockedText explains a quota refusal and picks the follow-up keyboard.
func blockedText(d quota.Decision, channelURL string) (string, tgbotapi.InlineKeyboardMarkup) {
	switch d {
	case quota.RequireSubscription:
		return "🔒 The next photo is available after subscribing to the channel.\n\n" +
			"📢 Subscribe: " + channelURL + "\n" +
			"Then tap ✅ \"I subscribed\".", subscribeKeyboard(channelURL)
	case quota.DenyHardCap:
		return "🚫 Monthly limit reached.\n\n💳 A tariff is needed to continue.", tariffsKeyboard()
	default:
		return "🚫 The free limit is used up.\n\n💳 Take a look at the tariffs below 👇", tariffsKeyboard()
	}
}

// errorText maps a processing error to the only thing the user gets to see.
// Diagnostics stay in the logs and the event ledger.
func errorText(err error, maxBytes int64) string {
	switch {
	case errors.Is(err, apperror.ErrImageTooLarge):
		return fmt.Sprintf("⚠️ That image is too large. Send one up to %d MB.", maxBytes>>20)
	case errors.Is(err, apperror.ErrValidation):
		return "⚠️ That doesn't look like an image. Send a photo or an image file."
	case errors.Is(err, apperror.ErrStoreUnavailable):
		return "⚠️ Something went wrong on our side. Try again in a minute."
	default:
		return "⚠️ Couldn't process the photo. Try another image."
	}
}

func tariffsText(plans []model.Plan) string {
	if len(plans) == 0 {
		return "💳 Tariffs are in development.\n\nPayment and photo packs are coming soon ✅"
	}
	var b strings.Builder
	b.WriteString("💳 Tariffs:\n\n")
	for _, p := range plans {
		fmt.Fprintf(&b, "• %s: %d UAH\n", p.Title, p.Price)
		if p.IsSubscription {
			fmt.Fprintf(&b, "  %s per month\n\n", photos(p.Credits))
		} else {
			fmt.Fprintf(&b, "  %s\n\n", photos(p.Credits))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func usageText(u *service.UsageSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📅 %s\n", u.Month)
	fmt.Fprintf(&b, "Processed this month: %d\n", u.Used)
	fmt.Fprintf(&b, "Free left: %d\n", u.Remaining.Free)
	fmt.Fprintf(&b, "For subscribers: %d more\n", u.Remaining.Subscription)
	fmt.Fprintf(&b, "Monthly cap left: %d", u.Remaining.HardCap)
	return b.String()
}

func photos(n int) string {
	if n == 1 {
		return "1 photo"
	}
	return fmt.Sprintf("%d photos", n)
}

// ===== Operator reports =====

func rangeText(title string, rs *service.RangeStats) string {
	var b strings.Builder
	if rs.DayFrom == rs.DayTo {
		fmt.Fprintf(&b, "📊 %s (%s)\n\n", title, rs.DayFrom)
	} else {
		fmt.Fprintf(&b, "📊 %s (%s … %s)\n\n", title, rs.DayFrom, rs.DayTo)
	}
	for _, kind := range model.ReportKinds() {
		fmt.Fprintf(&b, "%s: %d\n", kind, rs.Count(kind))
	}
	fmt.Fprintf(&b, "\nblocked total: %d", rs.Blocked())
	return b.String()
}

func conversionText(rep *service.ConversionReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📈 Conversion (%s … %s)\n\n", rep.Range.DayFrom, rep.Range.DayTo)
	for _, r := range rep.Ratios {
		b.WriteString(r.String())
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

func plansTableText(plans []model.Plan) string {
	if len(plans) == 0 {
		return "No plans yet."
	}
	var b strings.Builder
	b.WriteString("💳 Plans:\n\n")
	for _, p := range plans {
		kind := "pack"
		if p.IsSubscription {
			kind = "monthly"
		}
		status := "active"
		if !p.IsActive {
			status = "inactive"
		}
		fmt.Fprintf(&b, "• %s [%s]: %d UAH, %d credits, %s, %s\n", p.Title, p.Code, p.Price, p.Credits, kind, status)
	}
	return strings.TrimRight(b.String(), "\n")
}

// errorKind is a short, token-free label for logs and operator notices.
func errorKind(err error) string {
	switch {
	case errors.Is(err, apperror.ErrStoreUnavailable):
		return "store unavailable"
	case errors.Is(err, apperror.ErrImageTooLarge):
		return "image too large"
	case errors.Is(err, apperror.ErrValidation):
		return "invalid input"
	case errors.Is(err, apperror.ErrTransportFetch):
		return "download failed"
	case errors.Is(err, apperror.ErrRemovalFailed):
		return "removal failed"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "internal error"
	}
}
