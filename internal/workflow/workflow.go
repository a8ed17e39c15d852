// Package workflow drives a link request from inbound text to a delivered
// reply. Videos take the relay round-trip: the payload is uploaded through
// the user session with a correlation token as caption, and the resulting
// inbound media event resolves the registered waiter with a reusable file
// reference. Photo posts are answered directly, or assembled into a
// slideshow first when that is enabled and a music track is present.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sliterok/tiktok-relay/internal/correlate"
	"github.com/sliterok/tiktok-relay/internal/media"
	"github.com/sliterok/tiktok-relay/internal/ops"
)

// ErrDeliveryTimeout indicates a relayed upload was never observed back on
// the bot side within the configured bound.
var ErrDeliveryTimeout = errors.New("workflow: relay delivery timed out")

// Acquirer resolves a link into its media payloads.
type Acquirer interface {
	Acquire(ctx context.Context, url string) (*media.Result, error)
}

// RelayUploader pushes a video through the user session with the given
// caption, addressed so it comes back as an inbound media event.
type RelayUploader interface {
	UploadVideo(ctx context.Context, video []byte, caption string) error
}

// Assembler renders a photo set plus music into a single video.
type Assembler interface {
	Assemble(ctx context.Context, photos [][]byte, music []byte, secondsPerFrame float64) ([]byte, error)
}

// Messenger is the outbound chat surface.
type Messenger interface {
	SendText(ctx context.Context, chatID int64, text string) error
	SendTyping(ctx context.Context, chatID int64) error
	SendVideoByID(ctx context.Context, chatID int64, fileID string) error
	SendPhotos(ctx context.Context, chatID int64, photos [][]byte) error
	SendAudio(ctx context.Context, chatID int64, audio []byte) error
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
}

// FileCache maps already-delivered links to their reusable file references.
type FileCache interface {
	Lookup(ctx context.Context, url string) (fileID string, ok bool, err error)
	Store(ctx context.Context, url, fileID string) error
}

// LinkRequest is an inbound text message from an allowed sender.
type LinkRequest struct {
	ChatID int64
	Text   string
}

// DeliveryEvent is an inbound media message observed by the bot, carrying
// the relay caption and the platform file reference.
type DeliveryEvent struct {
	Caption   string
	FileID    string
	ChatID    int64
	MessageID int
}

// Config holds the workflow tuning knobs, already parsed.
type Config struct {
	// RelayTimeout bounds the wait between relay upload and delivery.
	RelayTimeout time.Duration
	// SlideshowEnabled turns photo posts with music into a rendered video.
	SlideshowEnabled bool
	// SecondsPerFrame is the slideshow display time per photo.
	SecondsPerFrame float64
	// AckText is sent immediately after a link is accepted.
	AckText string
}

// Deps collects the workflow collaborators. Cache and Assembler are
// optional; everything else is required.
type Deps struct {
	Registry  *correlate.Registry
	Acquirer  Acquirer
	Relay     RelayUploader
	Assembler Assembler
	Messenger Messenger
	Cache     FileCache
	Metrics   *ops.Metrics
	Logger    *slog.Logger
}

// Workflow owns the request lifecycle. One goroutine per link request;
// delivery events are handled inline on the poller goroutine.
type Workflow struct {
	config    Config
	registry  *correlate.Registry
	acquirer  Acquirer
	relay     RelayUploader
	assembler Assembler
	messenger Messenger
	cache     FileCache
	metrics   *ops.Metrics
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New validates the dependency set and builds a Workflow.
func New(cfg Config, deps Deps) (*Workflow, error) {
	switch {
	case deps.Registry == nil:
		return nil, errors.New("workflow: registry is required")
	case deps.Acquirer == nil:
		return nil, errors.New("workflow: acquirer is required")
	case deps.Relay == nil:
		return nil, errors.New("workflow: relay uploader is required")
	case deps.Messenger == nil:
		return nil, errors.New("workflow: messenger is required")
	}
	if cfg.RelayTimeout <= 0 {
		return nil, fmt.Errorf("workflow: relay timeout must be positive, got %s", cfg.RelayTimeout)
	}
	if cfg.AckText == "" {
		cfg.AckText = "Downloading…"
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = ops.NewMetrics(nil)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Workflow{
		config:    cfg,
		registry:  deps.Registry,
		acquirer:  deps.Acquirer,
		relay:     deps.Relay,
		assembler: deps.Assembler,
		messenger: deps.Messenger,
		cache:     deps.Cache,
		metrics:   metrics,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// SubmitLink accepts an inbound text message. Non-link text is dropped
// without any side effect; links are handled on their own goroutine.
func (w *Workflow) SubmitLink(req LinkRequest) {
	url := strings.TrimSpace(req.Text)
	if !strings.HasPrefix(url, "https://") {
		return
	}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.handleLink(w.ctx, req.ChatID, url)
	}()
}

// SubmitDelivery matches an inbound media event against the registry.
// Captionless media never touches the registry.
func (w *Workflow) SubmitDelivery(ev DeliveryEvent) {
	if ev.Caption == "" {
		return
	}
	delivery := correlate.Delivery{
		FileID:    ev.FileID,
		ChatID:    ev.ChatID,
		MessageID: ev.MessageID,
	}
	if !w.registry.Resolve(ev.Caption, delivery) {
		w.metrics.UnmatchedDeliveries.Inc()
		w.logger.Warn("media event with no matching request", "caption", ev.Caption)
	}
}

// Close stops accepting work and waits for in-flight requests, bounded by
// ctx.
func (w *Workflow) Close(ctx context.Context) error {
	w.cancel()
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("workflow: shutdown: %w", ctx.Err())
	}
}

func (w *Workflow) handleLink(ctx context.Context, chatID int64, url string) {
	log := w.logger.With("chat_id", chatID, "url", url)

	if err := w.messenger.SendText(ctx, chatID, w.config.AckText); err != nil {
		log.Warn("ack send failed", "error", err)
	}
	if err := w.messenger.SendTyping(ctx, chatID); err != nil {
		log.Debug("typing indicator failed", "error", err)
	}

	if w.cache != nil {
		fileID, ok, err := w.cache.Lookup(ctx, url)
		switch {
		case err != nil:
			log.Warn("cache lookup failed", "error", err)
		case ok:
			w.metrics.CacheHits.Inc()
			if err := w.messenger.SendVideoByID(ctx, chatID, fileID); err != nil {
				w.fail(log, "delivering", err)
				return
			}
			w.metrics.Requests.WithLabelValues("cached").Inc()
			log.Info("answered from cache", "file_id", fileID)
			return
		}
	}

	result, err := w.acquirer.Acquire(ctx, url)
	if err != nil {
		w.fail(log, "downloading", err)
		return
	}

	switch {
	case result.HasVideo():
		if w.relayVideo(ctx, log, chatID, url, result.Video) {
			w.metrics.Requests.WithLabelValues("delivered").Inc()
		}
	case result.HasPhotos():
		w.handlePhotos(ctx, log, chatID, url, result)
	default:
		w.fail(log, "downloading", media.ErrNoMedia)
	}
}

// relayVideo runs the upload → await → reply → cleanup leg. It reports
// whether the reply reached the requester; cache and cleanup misses are
// logged but do not undo a delivered reply.
func (w *Workflow) relayVideo(ctx context.Context, log *slog.Logger, chatID int64, url string, video []byte) bool {
	token := uuid.NewString()
	waiter := w.registry.Register(token)
	log = log.With("token", token)

	if err := w.relay.UploadVideo(ctx, video, token); err != nil {
		w.registry.Cancel(token, waiter)
		w.fail(log, "uploading", err)
		return false
	}

	awaitCtx, cancel := context.WithTimeout(ctx, w.config.RelayTimeout)
	defer cancel()
	delivery, err := waiter.Await(awaitCtx)
	if err != nil {
		w.registry.Cancel(token, waiter)
		if errors.Is(err, context.DeadlineExceeded) {
			w.metrics.RelayTimeouts.Inc()
			err = ErrDeliveryTimeout
		}
		w.fail(log, "awaiting_delivery", err)
		return false
	}

	if err := w.messenger.SendVideoByID(ctx, chatID, delivery.FileID); err != nil {
		w.fail(log, "delivering", err)
		return false
	}

	if w.cache != nil {
		if err := w.cache.Store(ctx, url, delivery.FileID); err != nil {
			log.Warn("cache store failed", "error", err)
		}
	}

	if err := w.messenger.DeleteMessage(ctx, delivery.ChatID, delivery.MessageID); err != nil {
		log.Warn("relay message cleanup failed", "error", err)
	}

	log.Info("video delivered", "file_id", delivery.FileID)
	return true
}

// handlePhotos answers a photo post. With the slideshow enabled and a music
// track present the photos are rendered into a video and take the relay
// path; otherwise the photos are sent as an album, followed by the track.
func (w *Workflow) handlePhotos(ctx context.Context, log *slog.Logger, chatID int64, url string, result *media.Result) {
	if w.config.SlideshowEnabled && w.assembler != nil && result.HasMusic() {
		video, err := w.assembler.Assemble(ctx, result.Photos, result.Music, w.config.SecondsPerFrame)
		if err != nil {
			w.fail(log, "assembling", err)
			return
		}
		if w.relayVideo(ctx, log, chatID, url, video) {
			w.metrics.Requests.WithLabelValues("delivered").Inc()
		}
		return
	}

	if err := w.messenger.SendPhotos(ctx, chatID, result.Photos); err != nil {
		w.fail(log, "delivering", err)
		return
	}
	if result.HasMusic() {
		if err := w.messenger.SendAudio(ctx, chatID, result.Music); err != nil {
			log.Warn("music send failed", "error", err)
		}
	}
	w.metrics.Requests.WithLabelValues("photos").Inc()
	log.Info("photos delivered", "count", len(result.Photos))
}

// fail records a terminal failure. The requester got the ack and then
// silence; the details go to the log and the failure counter.
func (w *Workflow) fail(log *slog.Logger, step string, err error) {
	w.metrics.Requests.WithLabelValues("failed").Inc()
	log.Error("request failed", "step", step, "error", err)
}
