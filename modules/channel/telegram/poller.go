package telegram

import (
	"log/slog"
	"sync"
	"time"
)

const (
	maxConsecutivePollingErrors = 5
	errorPauseDuration          = 30 * time.Second
)

// TextHandler receives an allowed inbound text message.
type TextHandler func(chatID int64, text string)

// MediaHandler receives an inbound video message, which is how relayed
// uploads come back to the bot.
type MediaHandler func(caption, fileID string, chatID int64, messageID int)

// Handlers are the inbound dispatch targets, set during wiring.
type Handlers struct {
	OnText  TextHandler
	OnMedia MediaHandler
}

// Poller implements long-polling for receiving Telegram updates.
type Poller struct {
	client       *Client
	handlers     Handlers
	allowList    *AllowList
	deniedNotice string
	logger       *slog.Logger
	config       Config
	stopCh       chan struct{}
	done         chan struct{}
	stopOnce     sync.Once
}

// NewPoller creates a new Poller.
func NewPoller(client *Client, handlers Handlers, allowList *AllowList, logger *slog.Logger, config Config) *Poller {
	return &Poller{
		client:       client,
		handlers:     handlers,
		allowList:    allowList,
		deniedNotice: config.DeniedNotice,
		logger:       logger,
		config:       config,
		stopCh:       make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// Start launches the polling loop in a goroutine.
func (p *Poller) Start() {
	go p.loop()
}

// Stop signals the polling loop to stop and waits for it to finish.
// It is safe to call Stop multiple times.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	<-p.done
}

// loop runs the long-polling loop until Stop() is called.
func (p *Poller) loop() {
	defer close(p.done)

	var offset int
	var consecutiveErrors int

	for {
		select {
		case <-p.stopCh:
			return
		default:
		}

		updates, err := p.client.GetUpdates(p.ctx(), GetUpdatesRequest{
			Offset:         offset,
			Timeout:        p.config.PollingTimeout,
			AllowedUpdates: p.config.AllowedUpdates,
		})
		if err != nil {
			consecutiveErrors++
			p.logger.Error("polling getUpdates failed",
				"error", err,
				"consecutive_errors", consecutiveErrors,
			)

			if consecutiveErrors >= maxConsecutivePollingErrors {
				p.logger.Warn("polling paused after consecutive errors",
					"pause", errorPauseDuration,
				)
				select {
				case <-p.stopCh:
					return
				case <-time.After(errorPauseDuration):
				}
				consecutiveErrors = 0
			}
			continue
		}

		consecutiveErrors = 0

		for _, update := range updates {
			offset = update.UpdateID + 1
			p.handleUpdate(&update)
		}
	}
}

// ctx returns a context that is cancelled when the poller stops.
func (p *Poller) ctx() contextWrapper {
	return contextWrapper{stopCh: p.stopCh}
}

// handleUpdate dispatches a single update. Video messages are relay
// deliveries and bypass the allow list; the correlation caption decides
// whether they match anything.
func (p *Poller) handleUpdate(update *Update) {
	msg := update.Message
	if msg == nil {
		return
	}

	if msg.Video != nil {
		p.handlers.OnMedia(msg.Caption, msg.Video.FileID, msg.Chat.ID, msg.MessageID)
		return
	}

	if msg.Text == "" || msg.From == nil {
		return
	}

	if !p.allowList.IsAllowed(msg.From.ID) {
		p.logger.Debug("sender denied by allow list",
			"update_id", update.UpdateID,
			"sender", msg.From.ID,
		)
		if _, err := p.client.SendMessage(p.ctx(), SendMessageRequest{
			ChatID: msg.Chat.ID,
			Text:   p.deniedNotice,
		}); err != nil {
			p.logger.Warn("denied notice failed", "error", err)
		}
		return
	}

	p.handlers.OnText(msg.Chat.ID, msg.Text)
}

// contextWrapper adapts a stop channel to a context.Context for the HTTP client.
type contextWrapper struct {
	stopCh <-chan struct{}
}

func (c contextWrapper) Deadline() (time.Time, bool) { return time.Time{}, false }
func (c contextWrapper) Done() <-chan struct{}       { return c.stopCh }

func (c contextWrapper) Err() error {
	select {
	case <-c.stopCh:
		return errPollerStopped
	default:
		return nil
	}
}

func (c contextWrapper) Value(any) any { return nil }

var errPollerStopped = pollerStoppedError{}

type pollerStoppedError struct{}

func (pollerStoppedError) Error() string { return "poller stopped" }
