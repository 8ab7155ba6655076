package bot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/himera-shop/internal/bot/handlers"
	errors "github.com/Proton-105/himera-shop/internal/errors"
	"github.com/Proton-105/himera-shop/internal/event"
	"github.com/Proton-105/himera-shop/internal/idempotency"
	"github.com/Proton-105/himera-shop/internal/middleware"
	"github.com/Proton-105/himera-shop/internal/session"
	"github.com/Proton-105/himera-shop/pkg/config"
	"github.com/Proton-105/himera-shop/pkg/logger"
)

const (
	ModePolling = "polling"
	ModeWebhook = "webhook"
)

// NewTelebot builds the telebot client for long polling or webhook delivery.
func NewTelebot(cfg config.BotConfig, log *slog.Logger) (*telebot.Bot, error) {
	if log == nil {
		log = slog.Default()
	}

	settings := telebot.Settings{
		Token: cfg.Token,
		OnError: func(err error, c telebot.Context) {
			log.Error("telebot error", slog.Any("error", err))
		},
	}

	switch cfg.Mode {
	case ModeWebhook:
		webhook := &telebot.Webhook{Listen: cfg.Webhook.Listen}
		if cfg.Webhook.PublicURL != "" {
			webhook.Endpoint = &telebot.WebhookEndpoint{PublicURL: cfg.Webhook.PublicURL}
		}
		settings.Poller = webhook
	case ModePolling, "":
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		settings.Poller = &telebot.LongPoller{Timeout: timeout}
	default:
		return nil, fmt.Errorf("unknown bot mode %q", cfg.Mode)
	}

	tb, err := telebot.NewBot(settings)
	if err != nil {
		return nil, fmt.Errorf("initialize telebot: %w", err)
	}

	return tb, nil
}

// Options are the collaborators of the middleware chain. Nil members switch
// the corresponding middleware off.
type Options struct {
	ErrHandler     *errors.Handler
	Notifier       Notifier
	Locker         session.Locker
	Idempotency    idempotency.Manager
	IdempotencyTTL time.Duration
	RateLimit      *middleware.RateLimitMiddleware
	// HandlerTimeout bounds one event while the actor lock is held.
	HandlerTimeout time.Duration
}

// Bot feeds Telegram updates through the middleware chain into the engine.
type Bot struct {
	telebot *telebot.Bot
	router  *Router
	log     *slog.Logger
	ctx     context.Context
}

// New wires the chain ending in engine and registers the update handlers on tb.
func New(tb *telebot.Bot, engine handlers.Handler, opts Options, log *slog.Logger) *Bot {
	if log == nil {
		log = slog.Default()
	}

	b := &Bot{
		telebot: tb,
		router:  NewRouter(engine, log),
		log:     log,
		ctx:     context.Background(),
	}

	b.setupRouter(opts)
	b.registerTelebotHandlers()

	return b
}

// Start runs the telegram bot event loop until Stop is called. ctx is the
// parent of every event context.
func (b *Bot) Start(ctx context.Context) {
	if ctx != nil {
		b.ctx = ctx
	}
	if b.telebot != nil {
		b.telebot.Start()
	}
}

// Stop gracefully stops the telegram bot.
func (b *Bot) Stop() {
	if b.telebot == nil {
		return
	}

	b.log.Info("stopping telegram bot...")
	b.telebot.Stop()
}

func (b *Bot) setupRouter(opts Options) {
	b.router.Use(RecoveryMiddleware(b.log, opts.ErrHandler, opts.Notifier))
	b.router.Use(ErrorHandlingMiddleware(opts.ErrHandler, opts.Notifier, b.log))
	b.router.Use(LoggingMiddleware(b.log))
	b.router.Use(middleware.Metrics)
	if opts.RateLimit != nil {
		b.router.Use(opts.RateLimit.Handle)
	}
	b.router.Use(middleware.Idempotency(opts.Idempotency, opts.IdempotencyTTL, b.log))
	b.router.Use(SerializeMiddleware(opts.Locker, opts.HandlerTimeout, b.log))
}

func (b *Bot) registerTelebotHandlers() {
	if b.telebot == nil {
		return
	}

	b.telebot.Handle(event.CommandStart, b.onUpdate)
	b.telebot.Handle(telebot.OnText, b.onUpdate)
	b.telebot.Handle(telebot.OnCallback, b.onUpdate)
}

func (b *Bot) onUpdate(c telebot.Context) error {
	ev, ok := event.Normalize(c.Update())
	if !ok {
		b.log.Debug("update ignored", slog.Int("update_id", c.Update().ID))
		return nil
	}

	ctx := logger.NewCorrelationID(b.ctx)
	if err := b.router.Route(ctx, ev); err != nil {
		b.log.ErrorContext(ctx, "event not handled", slog.String("actor", ev.Actor.String()), slog.Any("error", err))
	}

	// Stops the client spinner; a tap already answered by the engine fails here.
	if c.Callback() != nil {
		if err := c.Respond(); err != nil {
			b.log.DebugContext(ctx, "callback not answered", slog.Any("error", err))
		}
	}

	return nil
}
