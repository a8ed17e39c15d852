// Package userbot is the relay side of the delivery round-trip: an MTProto
// user session that uploads acquired videos to the bot's chat, carrying the
// correlation token as caption. The user account has the upload size limits
// the Bot API lacks; the bot then reuses the resulting file_id.
package userbot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/message"
	"github.com/gotd/td/telegram/message/styling"
	"github.com/gotd/td/telegram/uploader"
	"gopkg.in/yaml.v3"

	"github.com/sliterok/tiktok-relay/internal/core"
)

func init() {
	core.RegisterModule(&Userbot{})
}

// Compile-time interface guards.
var (
	_ core.Configurable = (*Userbot)(nil)
	_ core.Provisioner  = (*Userbot)(nil)
	_ core.Validator    = (*Userbot)(nil)
	_ core.Starter      = (*Userbot)(nil)
	_ core.Stopper      = (*Userbot)(nil)
)

// ErrNotAuthorized indicates the session file is missing or stale.
var ErrNotAuthorized = errors.New("userbot: session not authorized, run the login command first")

const startTimeout = 30 * time.Second

// Config holds the user session configuration.
type Config struct {
	// APIID and APIHash identify the application at my.telegram.org.
	APIID   int    `yaml:"api_id"`
	APIHash string `yaml:"api_hash"`

	// Phone is the account's phone number, used during interactive login.
	Phone string `yaml:"phone"`

	// SessionFile is where the MTProto session is persisted.
	// Defaults to {DataDir}/userbot.session.
	SessionFile string `yaml:"session_file"`

	// Target is the username relay uploads are addressed to. When empty it
	// is set to the bot's own username during wiring.
	Target string `yaml:"target"`
}

// Userbot is the relay channel module.
type Userbot struct {
	config   Config
	targetFn func() string
	logger   *slog.Logger

	client *telegram.Client
	sender *message.Sender
	upload *uploader.Uploader

	cancel context.CancelFunc
	runErr chan error
}

// ModuleInfo implements core.Module.
func (u *Userbot) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "relay.userbot",
		New: func() core.Module { return &Userbot{} },
	}
}

// Configure implements core.Configurable.
func (u *Userbot) Configure(node *yaml.Node) error {
	if err := node.Decode(&u.config); err != nil {
		return fmt.Errorf("userbot: decode config: %w", err)
	}
	return nil
}

// Provision implements core.Provisioner.
func (u *Userbot) Provision(ctx *core.AppContext) error {
	u.logger = ctx.Logger
	if u.config.SessionFile == "" {
		u.config.SessionFile = filepath.Join(ctx.DataDir, "userbot.session")
	}
	return nil
}

// Validate implements core.Validator.
func (u *Userbot) Validate() error {
	if u.config.APIID == 0 {
		return errors.New("userbot: api_id is required")
	}
	if u.config.APIHash == "" {
		return errors.New("userbot: api_hash is required")
	}
	return nil
}

// SetTarget sets the upload destination. Called during wiring when the
// config leaves it empty.
func (u *Userbot) SetTarget(username string) {
	if u.config.Target == "" {
		u.config.Target = username
	}
}

// SetTargetResolver defers the upload destination to fn, evaluated at Start.
// Used when the destination is the bot's own username, which is only known
// after the bot channel has authenticated.
func (u *Userbot) SetTargetResolver(fn func() string) {
	u.targetFn = fn
}

// newClient builds the gotd client around the persisted session file.
func (u *Userbot) newClient() (*telegram.Client, error) {
	if dir := filepath.Dir(u.config.SessionFile); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("userbot: create session directory %s: %w", dir, err)
		}
	}
	return telegram.NewClient(u.config.APIID, u.config.APIHash, telegram.Options{
		SessionStorage: &session.FileStorage{Path: u.config.SessionFile},
	}), nil
}

// Start implements core.Starter. The gotd client runs on its own goroutine;
// Start blocks until the restored session reports authorized.
func (u *Userbot) Start() error {
	if u.config.Target == "" && u.targetFn != nil {
		u.config.Target = u.targetFn()
	}
	if u.config.Target == "" {
		return errors.New("userbot: upload target not set")
	}

	client, err := u.newClient()
	if err != nil {
		return err
	}
	u.client = client

	ctx, cancel := context.WithCancel(context.Background())
	u.cancel = cancel
	u.runErr = make(chan error, 1)
	ready := make(chan struct{})

	go func() {
		u.runErr <- client.Run(ctx, func(ctx context.Context) error {
			status, err := client.Auth().Status(ctx)
			if err != nil {
				return fmt.Errorf("userbot: auth status: %w", err)
			}
			if !status.Authorized {
				return ErrNotAuthorized
			}

			api := client.API()
			u.upload = uploader.NewUploader(api)
			u.sender = message.NewSender(api).WithUploader(u.upload)
			close(ready)

			<-ctx.Done()
			return ctx.Err()
		})
	}()

	select {
	case <-ready:
		u.logger.Info("userbot session restored",
			"session_file", u.config.SessionFile,
			"target", u.config.Target,
		)
		return nil
	case err := <-u.runErr:
		cancel()
		return fmt.Errorf("userbot: start: %w", err)
	case <-time.After(startTimeout):
		cancel()
		return errors.New("userbot: timed out connecting to Telegram")
	}
}

// Stop implements core.Stopper.
func (u *Userbot) Stop(ctx context.Context) error {
	if u.cancel == nil {
		return nil
	}
	u.cancel()
	select {
	case err := <-u.runErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("userbot: shutdown: %w", ctx.Err())
	}
}

// UploadVideo pushes the video bytes to the target chat with the caption
// attached. The upload lands as an inbound video message on the bot side.
func (u *Userbot) UploadVideo(ctx context.Context, video []byte, caption string) error {
	if u.sender == nil || u.upload == nil {
		return errors.New("userbot: not started")
	}

	f, err := u.upload.FromBytes(ctx, "video.mp4", video)
	if err != nil {
		return fmt.Errorf("userbot: upload video bytes: %w", err)
	}

	doc := message.UploadedDocument(f, styling.Plain(caption)).
		Filename("video.mp4").
		MIME("video/mp4").
		Video()

	if _, err := u.sender.Resolve(u.config.Target).Media(ctx, doc); err != nil {
		return fmt.Errorf("userbot: send video to %s: %w", u.config.Target, err)
	}
	return nil
}
