package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gopkg.in/yaml.v3"

	"github.com/sliterok/tiktok-relay/internal/core"
)

func init() {
	core.RegisterModule(&Telegram{})
}

// Compile-time interface guards.
var (
	_ core.Configurable = (*Telegram)(nil)
	_ core.Provisioner  = (*Telegram)(nil)
	_ core.Validator    = (*Telegram)(nil)
	_ core.Starter      = (*Telegram)(nil)
	_ core.Stopper      = (*Telegram)(nil)
)

// Telegram is the bot-side channel: it polls for inbound messages and is the
// outbound reply surface for the workflow.
type Telegram struct {
	config    Config
	client    *Client
	logger    *slog.Logger
	allowList *AllowList
	handlers  Handlers
	botUser   *User
	poller    *Poller
}

// ModuleInfo implements core.Module.
func (t *Telegram) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "channel.telegram",
		New: func() core.Module { return &Telegram{} },
	}
}

// Configure implements core.Configurable.
func (t *Telegram) Configure(node *yaml.Node) error {
	if err := node.Decode(&t.config); err != nil {
		return fmt.Errorf("telegram: decode config: %w", err)
	}
	t.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (t *Telegram) Provision(ctx *core.AppContext) error {
	t.logger = ctx.Logger
	t.client = NewClient(t.config.Token, t.config.APIURL)
	t.allowList = NewAllowList(t.config.AllowUsers)
	return nil
}

// Validate implements core.Validator.
func (t *Telegram) Validate() error {
	if t.config.Token == "" {
		return errors.New("telegram: token is required")
	}
	return t.config.validate()
}

// SetHandlers wires the inbound dispatch targets. Must be called before Start.
func (t *Telegram) SetHandlers(h Handlers) {
	t.handlers = h
}

// BotUsername returns the authenticated bot's username. Only valid after Start.
func (t *Telegram) BotUsername() string {
	if t.botUser == nil {
		return ""
	}
	return t.botUser.Username
}

// Start implements core.Starter. It validates the bot token, then starts polling.
func (t *Telegram) Start() error {
	if t.handlers.OnText == nil || t.handlers.OnMedia == nil {
		return errors.New("telegram: handlers not set, call SetHandlers before Start")
	}

	user, err := t.client.GetMe(context.Background())
	if err != nil {
		return fmt.Errorf("telegram: getMe failed (check token): %w", err)
	}
	t.botUser = user
	t.logger.Info("telegram bot authenticated",
		"id", user.ID,
		"username", user.Username,
	)

	t.poller = NewPoller(t.client, t.handlers, t.allowList, t.logger, t.config)
	t.poller.Start()
	t.logger.Info("telegram polling started",
		"timeout", t.config.PollingTimeout,
	)
	return nil
}

// Stop implements core.Stopper.
func (t *Telegram) Stop(context.Context) error {
	t.logger.Info("telegram channel stopping")
	if t.poller != nil {
		t.poller.Stop()
	}
	return nil
}

// SendText sends a plain text message.
func (t *Telegram) SendText(ctx context.Context, chatID int64, text string) error {
	_, err := t.client.SendMessage(ctx, SendMessageRequest{
		ChatID: chatID,
		Text:   text,
	})
	return err
}

// SendTyping shows the typing indicator in the chat.
func (t *Telegram) SendTyping(ctx context.Context, chatID int64) error {
	return t.client.SendChatAction(ctx, chatID, "typing")
}

// SendVideoByID replies with an already-uploaded video by its file_id.
func (t *Telegram) SendVideoByID(ctx context.Context, chatID int64, fileID string) error {
	_, err := t.client.SendVideo(ctx, SendVideoRequest{
		ChatID: chatID,
		Video:  fileID,
	})
	return err
}

// SendPhotos uploads photos as albums of at most ten.
func (t *Telegram) SendPhotos(ctx context.Context, chatID int64, photos [][]byte) error {
	const albumLimit = 10
	for start := 0; start < len(photos); start += albumLimit {
		end := min(start+albumLimit, len(photos))
		if _, err := t.client.SendMediaGroup(ctx, chatID, photos[start:end]); err != nil {
			return err
		}
	}
	return nil
}

// SendAudio uploads a music track from memory.
func (t *Telegram) SendAudio(ctx context.Context, chatID int64, audio []byte) error {
	_, err := t.client.SendAudioUpload(ctx, chatID, audio)
	return err
}

// DeleteMessage removes a message, typically the relay artifact.
func (t *Telegram) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	return t.client.DeleteMessage(ctx, chatID, messageID)
}
