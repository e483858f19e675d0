package bot

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ibroh-tech/Omonat-bot/config"
	"github.com/ibroh-tech/Omonat-bot/flow"
	"github.com/ibroh-tech/Omonat-bot/survey"
)

const (
	cmdStart    = "start"
	cmdRegion   = "region"
	cmdMyRegion = "my_region"
	cmdRestart  = "restart"

	pollTimeout = 60
	// Long polls hold the connection for pollTimeout seconds.
	httpTimeout = (pollTimeout + 15) * time.Second
)

// Handler applies normalized actions. *flow.Controller implements it.
type Handler interface {
	Handle(ctx context.Context, userID int64, action flow.Action) error
}

// sender is the part of the Telegram API the presenter uses.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Bot is the Telegram transport. It implements flow.Presenter and turns
// updates into flow actions. Chat ids equal user ids in private chats.
type Bot struct {
	api    *tgbotapi.BotAPI
	send   sender
	def    *survey.Definition
	logger *zap.Logger

	mu          sync.Mutex
	lastMessage map[int64]int // non-authoritative; used only to edit prompts in place

	queue *userQueue
}

// New creates a bot connected to the Telegram API.
func New(cfg *config.Config, def *survey.Definition, logger *zap.Logger) (*Bot, error) {
	if err := cfg.RequireBotToken(); err != nil {
		return nil, err
	}
	api, err := tgbotapi.NewBotAPIWithClient(cfg.BotToken, tgbotapi.APIEndpoint, &http.Client{Timeout: httpTimeout})
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}
	api.Debug = cfg.Debug

	b := newBot(api, def, logger)
	b.api = api
	b.logger.Info("authorized on telegram", zap.String("account", api.Self.UserName))
	return b, nil
}

func newBot(send sender, def *survey.Definition, logger *zap.Logger) *Bot {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bot{
		send:        send,
		def:         def,
		logger:      logger,
		lastMessage: make(map[int64]int),
		queue:       newUserQueue(),
	}
}

// Run polls for updates until ctx is canceled. Updates of one user are
// handled in arrival order; different users are handled concurrently.
func (b *Bot) Run(ctx context.Context, h Handler) error {
	b.logger.Info("starting bot polling")

	u := tgbotapi.NewUpdate(0)
	u.Timeout = pollTimeout
	updates := b.api.GetUpdatesChan(u)

	defer b.queue.wait()
	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.enqueue(ctx, h, update)
		}
	}
}

// enqueue schedules update behind earlier updates of the same user. Updates
// without a sender are dropped.
func (b *Bot) enqueue(ctx context.Context, h Handler, update tgbotapi.Update) {
	from := update.SentFrom()
	if from == nil {
		return
	}
	b.queue.push(from.ID, func() { b.dispatch(ctx, h, update) })
}

// dispatch turns one update into an action and hands it to h.
func (b *Bot) dispatch(ctx context.Context, h Handler, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("recovered from panic in update handler", zap.Any("panic", r))
		}
	}()

	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, h, update.CallbackQuery)
	case update.Message != nil && update.Message.From != nil:
		b.handleMessage(ctx, h, update.Message)
	}
}

func (b *Bot) handleCallback(ctx context.Context, h Handler, cq *tgbotapi.CallbackQuery) {
	if cq.From == nil {
		return
	}
	cs := &callbackState{id: cq.ID}
	if cq.Message != nil {
		cs.messageID = cq.Message.MessageID
	}

	b.apply(withCallback(ctx, cs), h, cq.From.ID, ParseCallback(cq.Data), cq.Data)

	// Every callback query must be answered or the client keeps spinning.
	if !cs.answered {
		if _, err := b.send.Request(tgbotapi.NewCallback(cq.ID, "")); err != nil {
			b.logger.Warn("callback acknowledgement failed", zap.Int64("user_id", cq.From.ID), zap.Error(err))
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, h Handler, m *tgbotapi.Message) {
	userID := m.From.ID
	if !m.IsCommand() {
		b.apply(ctx, h, userID, flow.OpenTextSubmitted{Text: m.Text}, "")
		return
	}

	var action flow.Action
	switch m.Command() {
	case cmdStart:
		action = flow.StartRequested{}
	case cmdRegion:
		action = flow.RegionChangeRequested{}
	case cmdMyRegion:
		action = flow.RegionInfoRequested{}
	case cmdRestart:
		action = flow.RestartRequested{}
	default:
		if _, err := b.send.Send(tgbotapi.NewMessage(m.Chat.ID, b.def.Texts.UnknownCommand)); err != nil {
			b.logger.Warn("failed to send message", zap.Int64("user_id", userID), zap.Error(err))
		}
		return
	}
	b.apply(ctx, h, userID, action, m.Text)
}

func (b *Bot) apply(ctx context.Context, h Handler, userID int64, action flow.Action, raw string) {
	logger := b.logger.With(
		zap.String("action_id", uuid.NewString()),
		zap.Int64("user_id", userID),
		zap.String("action", action.Kind()),
	)
	start := time.Now()
	logger.Debug("handling action", zap.String("payload", raw))

	if err := h.Handle(ctx, userID, action); err != nil {
		logger.Warn("action not applied", zap.Error(err), zap.Duration("took", time.Since(start)))
		return
	}
	logger.Debug("action applied", zap.Duration("took", time.Since(start)))
}
