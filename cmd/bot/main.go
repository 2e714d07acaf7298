// Package main is the entry point for the background-removal bot.
//
// MAIN PACKAGE:
// main.go only wires things together:
// 1. Read configuration (environment, optional .env file)
// 2. Create dependencies (logger, store, platform clients, services)
// 3. Run the Telegram loop, and the operator HTTP API when HTTP_ADDR is set
//
// All actual logic lives in internal/. One Ctrl-C (SIGINT) or SIGTERM cancels
// the shared context, which stops both front-ends gracefully.
//
// SUBCOMMANDS:
//
//	cutout-bot                  run the bot
//	cutout-bot hash-password    read a password from stdin, print its bcrypt hash
//	                            (the value for OPERATOR_PASSWORD_HASH)
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/sync/errgroup"

	"github.com/sakif/cutout-bot/internal/auth"
	"github.com/sakif/cutout-bot/internal/bot"
	"github.com/sakif/cutout-bot/internal/config"
	"github.com/sakif/cutout-bot/internal/logger"
	"github.com/sakif/cutout-bot/internal/quota"
	"github.com/sakif/cutout-bot/internal/remover/photoroom"
	"github.com/sakif/cutout-bot/internal/repository"
	"github.com/sakif/cutout-bot/internal/repository/postgres"
	"github.com/sakif/cutout-bot/internal/repository/sqlite"
	"github.com/sakif/cutout-bot/internal/server"
	"github.com/sakif/cutout-bot/internal/service"
	"github.com/sakif/cutout-bot/internal/subscription"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "hash-password" {
		if err := hashPassword(os.Stdin, os.Stdout, auth.NewPasswordService()); err != nil {
			fmt.Fprintln(os.Stderr, "hash-password:", err)
			os.Exit(1)
		}
		return
	}

	// === 1. READ CONFIGURATION ===
	// A missing BOT_TOKEN, CHANNEL_ID or PHOTOROOM_API_KEY stops us here,
	// before anything touches the network.
	cfg, err := config.Load(".env")
	if err != nil {
		// No configured logger yet; fall back to a plain one.
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// === 2. SET UP LOGGING ===
	// JSON in production, text otherwise; LOG_LEVEL overrides the default.
	log := logger.New(os.Stdout, cfg.Environment, cfg.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("bot exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
	log.Info("bot stopped")
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	limits := cfg.Limits()
	if err := limits.Validate(); err != nil {
		return err
	}

	// === 3. OPEN THE STORE ===
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.EnsureDefaultPlans(ctx); err != nil {
		return fmt.Errorf("seeding plans: %w", err)
	}
	log.Info("store ready", slog.String("driver", cfg.DBDriver))

	// === 4. PLATFORM CLIENTS ===
	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return fmt.Errorf("connecting to telegram: %w", err)
	}
	api.Debug = cfg.BotDebug
	log.Info("authorized on telegram", slog.String("username", api.Self.UserName))

	tg := bot.NewClient(api, cfg.MaxImageBytes(), 30*time.Second)

	rm, err := photoroom.New(photoroom.Config{
		APIKey:   cfg.PhotoroomAPIKey,
		Endpoint: cfg.RemoverEndpoint,
		Timeout:  cfg.RemoverTimeout,
		RPS:      cfg.RemoverRPS,
		Burst:    cfg.RemoverBurst,
	})
	if err != nil {
		return err
	}

	// === 5. SERVICES ===
	engine := quota.NewEngine(limits)
	checker := subscription.NewChecker(tg, store, cfg.ChannelID, cfg.SubCheckTimeout, log)
	images := service.NewImageService(store, engine, checker, tg, rm, cfg.MaxImageBytes(), log)
	funnel := service.NewFunnelService(store, checker, engine, log)
	stats := service.NewStatsService(store, store, log)

	b := bot.New(api, images, funnel, stats, bot.Options{
		ChannelURL:    cfg.ChannelURL,
		AdminID:       cfg.AdminID,
		Workers:       cfg.BotWorkers,
		PollTimeout:   cfg.BotPollTimeout,
		MaxImageBytes: cfg.MaxImageBytes(),
		Limits:        limits,
	}, log)

	// === 6. RUN ===
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return b.Run(gctx, api) })

	if cfg.HTTPEnabled() {
		srv, err := newOperatorServer(cfg, store, stats, log)
		if err != nil {
			return err
		}
		g.Go(func() error { return srv.Run(gctx) })
	} else {
		log.Info("operator API disabled (HTTP_ADDR empty)")
	}

	return g.Wait()
}

// openStore picks the backend from DB_DRIVER.
func openStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	switch cfg.DBDriver {
	case "postgres":
		return postgres.New(ctx, cfg.DatabaseURL)
	default:
		// os.MkdirAll is like `mkdir -p`; SQLite will not create the directory.
		if dir := filepath.Dir(cfg.DBPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating database directory %s: %w", dir, err)
			}
		}
		return sqlite.New(cfg.DBPath)
	}
}

func newOperatorServer(cfg *config.Config, store repository.Store, stats *service.StatsService, log *slog.Logger) (*server.Server, error) {
	passwords := auth.NewPasswordService()
	if err := passwords.CheckHash(cfg.OperatorPasswordHash); err != nil {
		return nil, fmt.Errorf("OPERATOR_PASSWORD_HASH: %w", err)
	}

	tokens, err := auth.NewTokenService(cfg.OperatorJWTSecret, cfg.OperatorTokenTTL)
	if err != nil {
		return nil, err
	}

	return server.New(server.Config{
		Addr:         cfg.HTTPAddr,
		SecureCookie: cfg.Environment == "production",
	}, server.Deps{
		Stats:     stats,
		Operators: service.NewOperatorAuthService(cfg.OperatorPasswordHash, tokens, passwords, log),
		Health:    store,
		Tokens:    tokens,
	}, log)
}

// hashPassword reads one line from r and writes its bcrypt hash to w.
func hashPassword(r io.Reader, w io.Writer, passwords *auth.PasswordService) error {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return errors.New("empty password")
	}

	hash, err := passwords.Hash(password)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, hash)
	return err
}
