// Package telegram delivers Telegram chats to the dialogue state machine.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"llm-task-manager/internal/config"
	"llm-task-manager/internal/dialogue"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// MaxVoiceBytes caps downloaded voice notes
const MaxVoiceBytes = 25 << 20

const unavailableText = "Sorry, I can't reach your conversation right now. Please try again."

const startText = "Hi! Tell me what to do with your tasks, for example \"create a task for Alice to write the report, due Friday\". Send /cancel to drop a request in progress."

// Conversations processes turns keyed by conversation identity
type Conversations interface {
	HandleText(ctx context.Context, key, text string) (dialogue.Reply, error)
	HandleVoice(ctx context.Context, key string, audio []byte, filename, contentType string) (dialogue.Reply, error)
}

// botAPI is the subset of *tgbotapi.BotAPI used to answer messages
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetFileDirectURL(fileID string) (string, error)
}

// Bot long-polls Telegram and answers every message
type Bot struct {
	api           botAPI
	updates       *tgbotapi.BotAPI
	conversations Conversations
	httpClient    *http.Client
	timeout       int
	logger        *zap.Logger

	// per-chat queues keep the order of a chat's messages
	mu     sync.Mutex
	queues map[int64][]*tgbotapi.Message
	wg     sync.WaitGroup
}

// NewBot connects to the Bot API with cfg.BotToken
func NewBot(cfg config.TelegramConfig, conversations Conversations, logger *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Telegram: %w", err)
	}
	b := newBot(api, conversations, logger)
	b.updates = api
	b.timeout = cfg.TimeoutSeconds
	b.logger.Info("telegram bot authorised", zap.String("username", api.Self.UserName))
	return b, nil
}

func newBot(api botAPI, conversations Conversations, logger *zap.Logger) *Bot {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bot{
		api:           api,
		conversations: conversations,
		httpClient:    &http.Client{Timeout: 60 * time.Second},
		timeout:       30,
		logger:        logger.Named("telegram"),
		queues:        make(map[int64][]*tgbotapi.Message),
	}
}

// Run polls for updates until ctx is cancelled, then waits for in-flight turns
func (b *Bot) Run(ctx context.Context) error {
	if b.updates == nil {
		return errors.New("telegram bot has no update source")
	}
	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.timeout
	updates := b.updates.GetUpdatesChan(u)

	b.logger.Info("polling for updates")
	for {
		select {
		case <-ctx.Done():
			b.updates.StopReceivingUpdates()
			b.wg.Wait()
			b.logger.Info("stopped polling")
			return nil
		case update, ok := <-updates:
			if !ok {
				b.wg.Wait()
				return nil
			}
			if update.Message != nil {
				b.enqueue(ctx, update.Message)
			}
		}
	}
}

// enqueue hands msg to its chat's worker, starting one if none is running
func (b *Bot) enqueue(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	b.mu.Lock()
	pending, running := b.queues[chatID]
	b.queues[chatID] = append(pending, msg)
	b.mu.Unlock()
	if running {
		return
	}

	b.wg.Add(1)
	go b.drain(ctx, chatID)
}

func (b *Bot) drain(ctx context.Context, chatID int64) {
	defer b.wg.Done()
	for {
		b.mu.Lock()
		pending := b.queues[chatID]
		if len(pending) == 0 {
			delete(b.queues, chatID)
			b.mu.Unlock()
			return
		}
		msg := pending[0]
		b.queues[chatID] = pending[1:]
		b.mu.Unlock()

		b.handleMessage(ctx, msg)
	}
}

// ConversationKey derives the conversation identity of a chat
func ConversationKey(chatID int64) string {
	return fmt.Sprintf("telegram:%d", chatID)
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	key := ConversationKey(msg.Chat.ID)
	logger := b.logger.With(zap.String("conversation", key), zap.Int("message_id", msg.MessageID))

	var text string
	switch {
	case msg.Text == "/start":
		text = startText
	case msg.Text != "":
		reply, err := b.conversations.HandleText(ctx, key, msg.Text)
		text = replyText(reply, err, logger)
	case msg.Voice != nil:
		audio, err := b.download(ctx, msg.Voice.FileID)
		if err != nil {
			logger.Warn("failed to download voice note", zap.Error(err))
			text = "I couldn't download that voice message. Please try again."
			break
		}
		reply, err := b.conversations.HandleVoice(ctx, key, audio, "voice.ogg", msg.Voice.MimeType)
		text = replyText(reply, err, logger)
	default:
		text = fmt.Sprintf("I can't work with %s", describeMedia(msg))
	}

	if _, err := b.api.Send(tgbotapi.NewMessage(msg.Chat.ID, text)); err != nil {
		logger.Warn("failed to send reply", zap.Error(err))
	}
}

func replyText(reply dialogue.Reply, err error, logger *zap.Logger) string {
	if err != nil {
		logger.Error("turn failed", zap.Bool("executed", reply.Executed()), zap.Error(err))
		if !reply.Executed() {
			return unavailableText
		}
	}
	return reply.Text
}

// download fetches a file from the Bot API file endpoint
func (b *Bot) download(ctx context.Context, fileID string) ([]byte, error) {
	url, err := b.api.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve file %s: %w", fileID, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download file %s: %w", fileID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("file download returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxVoiceBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", fileID, err)
	}
	if len(data) > MaxVoiceBytes {
		return nil, fmt.Errorf("file %s exceeds %d bytes", fileID, MaxVoiceBytes)
	}
	return data, nil
}

// describeMedia names the kind of a message that carries no text or voice
func describeMedia(msg *tgbotapi.Message) string {
	switch {
	case msg.Animation != nil:
		return "animation"
	case msg.Audio != nil:
		return "audio"
	case msg.Contact != nil:
		return "contact"
	case msg.Document != nil:
		return "document"
	case msg.Game != nil:
		return "game"
	case msg.Venue != nil:
		return "venue"
	case msg.Location != nil:
		return "location"
	case len(msg.Photo) > 0:
		return "photo"
	case msg.Poll != nil:
		return "poll"
	case msg.Sticker != nil:
		return "sticker"
	case msg.Video != nil:
		return "video"
	case msg.VideoNote != nil:
		return "videoNote"
	case msg.Dice != nil:
		return "dice"
	}
	return "this kind of message"
}
