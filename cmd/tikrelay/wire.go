package main

import (
	"context"
	"fmt"
	"time"

	"github.com/sliterok/tiktok-relay/internal/config"
	"github.com/sliterok/tiktok-relay/internal/core"
	"github.com/sliterok/tiktok-relay/internal/correlate"
	"github.com/sliterok/tiktok-relay/internal/ops"
	"github.com/sliterok/tiktok-relay/internal/slideshow"
	"github.com/sliterok/tiktok-relay/internal/workflow"
	"github.com/sliterok/tiktok-relay/modules/channel/telegram"
	"github.com/sliterok/tiktok-relay/modules/relay/userbot"
	"github.com/sliterok/tiktok-relay/modules/source/tiktok"
)

// workflowModule wraps the workflow so it participates in the App lifecycle.
// Appended after the loaded modules, so its Stop runs first on shutdown and
// drains in-flight requests before the channels go away.
type workflowModule struct {
	wf *workflow.Workflow
}

func (m *workflowModule) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{ID: "workflow"}
}

func (m *workflowModule) Stop(ctx context.Context) error {
	drainCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	return m.wf.Close(drainCtx)
}

// wireWorkflow connects the loaded modules to the relay workflow: the
// channel feeds it inbound events, the source, relay, cache, and assembler
// serve its requests. Must be called after LoadModules and before Start.
func wireWorkflow(app *core.App, appCtx *core.AppContext, cfg *config.Config) error {
	chMod, ok := app.Module("channel.telegram")
	if !ok {
		return fmt.Errorf("wiring: channel.telegram module not loaded")
	}
	ch, ok := chMod.(*telegram.Telegram)
	if !ok {
		return fmt.Errorf("wiring: channel.telegram has unexpected type %T", chMod)
	}

	srcMod, ok := app.Module("source.tiktok")
	if !ok {
		return fmt.Errorf("wiring: source.tiktok module not loaded")
	}
	src, ok := srcMod.(*tiktok.Source)
	if !ok {
		return fmt.Errorf("wiring: source.tiktok has unexpected type %T", srcMod)
	}

	relayMod, ok := app.Module("relay.userbot")
	if !ok {
		return fmt.Errorf("wiring: relay.userbot module not loaded")
	}
	relay, ok := relayMod.(*userbot.Userbot)
	if !ok {
		return fmt.Errorf("wiring: relay.userbot has unexpected type %T", relayMod)
	}

	// The upload destination is the bot itself; its username is known once
	// the channel has authenticated, which happens before the relay starts.
	relay.SetTargetResolver(ch.BotUsername)

	// Cache is optional: present only when the cache module is configured.
	var cache workflow.FileCache
	if svc, ok := appCtx.Service("cache.store"); ok {
		cache, _ = svc.(workflow.FileCache)
	}

	registry := correlate.NewRegistry()
	metrics := ops.NewMetrics(registry.Len)
	appCtx.RegisterService("correlate.registry", registry)
	appCtx.RegisterService("ops.metrics", metrics)

	wf, err := workflow.New(workflow.Config{
		RelayTimeout:     cfg.Workflow.ParsedRelayTimeout(),
		SlideshowEnabled: cfg.Workflow.Slideshow.Enabled,
		SecondsPerFrame:  cfg.Workflow.Slideshow.FrameSeconds(),
	}, workflow.Deps{
		Registry:  registry,
		Acquirer:  src,
		Relay:     relay,
		Assembler: slideshow.New(appCtx.Logger),
		Messenger: ch,
		Cache:     cache,
		Metrics:   metrics,
		Logger:    appCtx.Logger,
	})
	if err != nil {
		return fmt.Errorf("wiring: %w", err)
	}

	ch.SetHandlers(telegram.Handlers{
		OnText: func(chatID int64, text string) {
			wf.SubmitLink(workflow.LinkRequest{ChatID: chatID, Text: text})
		},
		OnMedia: func(caption, fileID string, chatID int64, messageID int) {
			wf.SubmitDelivery(workflow.DeliveryEvent{
				Caption:   caption,
				FileID:    fileID,
				ChatID:    chatID,
				MessageID: messageID,
			})
		},
	})

	app.AppendModule("workflow", &workflowModule{wf: wf})
	return nil
}
