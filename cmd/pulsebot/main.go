// Package main contains the entrypoint for the activity tracking service.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbot "github.com/go-telegram/bot"

	"github.com/edgard/pulsebot/internal/api"
	"github.com/edgard/pulsebot/internal/bot"
	"github.com/edgard/pulsebot/internal/bot/tasks"
	"github.com/edgard/pulsebot/internal/commands"
	"github.com/edgard/pulsebot/internal/config"
	"github.com/edgard/pulsebot/internal/database"
	"github.com/edgard/pulsebot/internal/gemini"
	"github.com/edgard/pulsebot/internal/logger"
	"github.com/edgard/pulsebot/internal/ratelimit"
	"github.com/edgard/pulsebot/internal/stats"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop()
	os.Exit(exitCode)
}

// run initializes all application components, blocks until shutdown, and
// returns the process exit code.
func run(ctx context.Context) int {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		return 1
	}

	log := logger.New(cfg.Log.Level, cfg.Log.JSON)
	log.Info("Logger initialized", "level", cfg.Log.Level, "json", cfg.Log.JSON)

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.Error("Failed to connect to database", "path", cfg.Database.Path, "error", err)
		return 1
	}
	defer database.CloseDB(db)
	store := database.NewStore(db, log)

	// Optional integrations: without a Gemini key summaries report
	// themselves unavailable, without a Telegram token inbound webhooks
	// are still tracked but replies are skipped.
	var geminiClient gemini.Client
	if cfg.Gemini.APIKey != "" {
		geminiClient, err = gemini.NewClient(ctx, cfg.Gemini, log)
		if err != nil {
			log.Error("Failed to initialize Gemini client", "error", err)
			return 1
		}
	} else {
		log.Warn("Gemini API key not configured; chat summaries disabled")
	}

	var tgClient *tgbot.Bot
	if cfg.Telegram.Token != "" {
		tgClient, err = tgbot.New(cfg.Telegram.Token)
		if err != nil {
			log.Error("Failed to create Telegram client", "error", err)
			return 1
		}
	} else {
		log.Warn("Telegram token not configured; command replies disabled")
	}

	commandLimiter := ratelimit.New(cfg.RateLimit.Command.MaxRequests, cfg.RateLimit.Command.Window)
	summaryLimiter := ratelimit.New(cfg.RateLimit.Summary.MaxRequests, cfg.RateLimit.Summary.Window)
	apiLimiter := ratelimit.New(cfg.RateLimit.API.MaxRequests, cfg.RateLimit.API.Window)

	statsService := stats.NewService(store, log)
	processor := commands.NewProcessor(log, cfg, statsService, store, geminiClient, commandLimiter, summaryLimiter)
	server := api.NewServer(log, cfg, statsService, store, processor, apiLimiter, tgClient)

	taskMap := tasks.RegisterAllTasks(tasks.TaskDeps{
		Logger:   log,
		Store:    store,
		Config:   cfg,
		Limiters: []*ratelimit.Limiter{commandLimiter, summaryLimiter, apiLimiter},
	})
	sched, err := bot.NewScheduler(log, &cfg.Scheduler, taskMap)
	if err != nil {
		log.Error("Failed to create scheduler", "error", err)
		return 1
	}

	app := bot.NewBot(log, server, sched)

	log.Info("Starting service...")
	runErr := app.Run(ctx)

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Service stopped due to error", "error", runErr)
		time.Sleep(time.Second)
		return 1
	}

	log.Info("Service stopped gracefully.")
	time.Sleep(time.Second)
	return 0
}
