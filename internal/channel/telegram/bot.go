// Package telegram delivers bill photos from a Telegram chat to the pipeline and sends the
// generated documents back.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/IamSmokeY/SnapBooks/internal/document"
	"github.com/IamSmokeY/SnapBooks/internal/pipeline"
	"github.com/IamSmokeY/SnapBooks/internal/session"
)

// Sender is the subset of the Bot API used to reply. *tgbotapi.BotAPI satisfies it.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

// Processor extracts photos and runs the pipeline. *pipeline.Pipeline satisfies it.
type Processor interface {
	Extract(ctx context.Context, image []byte, contentType string, opts pipeline.Options) (*document.Extraction, error)
	Run(ctx context.Context, req pipeline.Request) *pipeline.Result
}

// Observer counts handled updates
type Observer interface {
	TelegramUpdate(kind string)
}

// Config holds Telegram bot configuration
type Config struct {
	Token     string
	AllowList []int64 // empty allows everyone
	Workers   int     // updates handled concurrently
	SendRate  float64 // outgoing messages per second
}

// Bot handles updates from one Telegram bot account
type Bot struct {
	api       Sender
	processor Processor
	sessions  *session.Store
	observer  Observer
	client    *http.Client
	limiter   *rate.Limiter
	allowList map[int64]bool
	workers   int
}

// Option configures optional bot features
type Option func(*Bot)

// WithObserver reports handled updates to o
func WithObserver(o Observer) Option {
	return func(b *Bot) {
		b.observer = o
	}
}

// WithHTTPClient sets the client used to download photos
func WithHTTPClient(c *http.Client) Option {
	return func(b *Bot) {
		b.client = c
	}
}

// Connect authorizes the token against the Bot API
func Connect(token string) (*tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	slog.Info("Authorized on Telegram", "username", api.Self.UserName)
	return api, nil
}

// NewBot creates a bot replying through api
func NewBot(cfg Config, api Sender, processor Processor, sessions *session.Store, opts ...Option) *Bot {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	sendRate := cfg.SendRate
	if sendRate <= 0 {
		sendRate = 25
	}

	allowList := make(map[int64]bool, len(cfg.AllowList))
	for _, id := range cfg.AllowList {
		allowList[id] = true
	}

	b := &Bot{
		api:       api,
		processor: processor,
		sessions:  sessions,
		client:    &http.Client{Timeout: 30 * time.Second},
		limiter:   rate.NewLimiter(rate.Limit(sendRate), 1),
		allowList: allowList,
		workers:   workers,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Poll long-polls api for updates and handles them until ctx is cancelled
func Poll(ctx context.Context, api *tgbotapi.BotAPI, b *Bot) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := api.GetUpdatesChan(u)
	defer api.StopReceivingUpdates()
	return b.Run(ctx, updates)
}

// Run handles updates until ctx is cancelled or updates is closed, then waits for the
// updates already in progress
func (b *Bot) Run(ctx context.Context, updates <-chan tgbotapi.Update) error {
	var g errgroup.Group
	g.SetLimit(b.workers)

	for {
		select {
		case <-ctx.Done():
			g.Wait()
			return nil
		case update, ok := <-updates:
			if !ok {
				g.Wait()
				return nil
			}
			g.Go(func() error {
				if err := b.HandleUpdate(ctx, update); err != nil {
					slog.Error("Failed to handle update", "update_id", update.UpdateID, "error", err)
				}
				return nil
			})
		}
	}
}

// HandleUpdate dispatches a single update
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) error {
	if q := update.CallbackQuery; q != nil {
		if !b.allowed(q.From) {
			return nil
		}
		b.observe("callback")
		return b.handleCallback(ctx, q)
	}

	msg := update.Message
	if msg == nil || msg.Chat == nil {
		return nil
	}
	if !b.allowed(msg.From) {
		b.observe("rejected")
		return b.reply(msg.Chat.ID, "⛔ You are not authorized to use this bot.")
	}

	switch {
	case msg.IsCommand():
		b.observe("command")
		return b.handleCommand(msg)
	case len(msg.Photo) > 0:
		b.observe("photo")
		return b.handlePhoto(ctx, msg)
	case msg.Document != nil:
		b.observe("document")
		return b.handleDocument(ctx, msg)
	case msg.Text != "":
		b.observe("text")
		return b.reply(msg.Chat.ID, photoPrompt)
	}
	return nil
}

func (b *Bot) allowed(u *tgbotapi.User) bool {
	if len(b.allowList) == 0 {
		return true
	}
	return u != nil && b.allowList[u.ID]
}

func (b *Bot) observe(kind string) {
	if b.observer != nil {
		b.observer.TelegramUpdate(kind)
	}
}

func (b *Bot) send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if err := b.limiter.Wait(context.Background()); err != nil {
		return tgbotapi.Message{}, err
	}
	return b.api.Send(c)
}

func (b *Bot) request(c tgbotapi.Chattable) error {
	if err := b.limiter.Wait(context.Background()); err != nil {
		return err
	}
	_, err := b.api.Request(c)
	return err
}

// reply sends an HTML formatted message
func (b *Bot) reply(chatID int64, text string) error {
	m := tgbotapi.NewMessage(chatID, text)
	m.ParseMode = tgbotapi.ModeHTML
	_, err := b.send(m)
	return err
}
