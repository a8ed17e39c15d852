// Package main is the entry point for the tikrelay CLI.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sliterok/tiktok-relay/internal/config"
	"github.com/sliterok/tiktok-relay/internal/core"
	"github.com/sliterok/tiktok-relay/modules/relay/userbot"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "tikrelay",
		Short:         "A self-hosted Telegram bot that relays TikTok videos and photo posts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(versionCmd(), startCmd(), configCmd(), loginCmd(), serviceCmd())
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and compiled modules",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("tikrelay %s (commit: %s, built: %s)\n", version, commit, date)
			mods := core.GetModules()
			if len(mods) == 0 {
				fmt.Println("\nNo compiled modules.")
				return
			}
			fmt.Println("\nCompiled modules:")
			for _, mod := range mods {
				fmt.Printf("  %s\n", mod.ID)
			}
		},
	}
}

func startCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start tikrelay with all configured modules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			app, _, err := buildApp(cfgPath)
			if err != nil {
				return err
			}
			return app.Run()
		},
	}
	cmd.Flags().StringP("config", "c", "", "Path to configuration file")
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check <path>",
		Short: "Validate configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			app, ids, err := buildApp(args[0])
			if err != nil {
				return err
			}
			defer app.Stop()

			fmt.Printf("Configuration OK (%d modules)\n", len(ids))
			for _, id := range ids {
				fmt.Printf("  %s\n", id)
			}
			return nil
		},
	})
	return cmd
}

func loginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authorize the relay user session interactively",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			cfg, appCtx, err := loadConfig(cfgPath)
			if err != nil {
				return err
			}

			// Only the userbot module is needed; its Provision resolves the
			// session file path, its Validate checks the API credentials.
			appCtx = appCtx.WithModuleConfigs(cfg.Modules)
			app := core.NewApp(appCtx)
			if err := app.LoadModules([]string{"relay.userbot"}); err != nil {
				return err
			}

			mod, ok := app.Module("relay.userbot")
			if !ok {
				return fmt.Errorf("relay.userbot module not compiled in")
			}
			ub, ok := mod.(*userbot.Userbot)
			if !ok {
				return fmt.Errorf("relay.userbot module has unexpected type %T", mod)
			}
			return ub.Login(cmd.Context())
		},
	}
	cmd.Flags().StringP("config", "c", "", "Path to configuration file")
	return cmd
}

// loadConfig resolves, loads, and validates the config, and builds the app
// context with the standard logger.
func loadConfig(cfgPath string) (*config.Config, *core.AppContext, error) {
	if cfgPath == "" {
		resolved, err := resolveConfigPath()
		if err != nil {
			return nil, nil, err
		}
		cfgPath = resolved
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, nil, err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	return cfg, core.NewAppContext(logger, defaultDataDir()), nil
}

// buildApp loads the config, loads all resolved modules, and wires the
// workflow. Shared by start and config check.
func buildApp(cfgPath string) (*core.App, []string, error) {
	cfg, appCtx, err := loadConfig(cfgPath)
	if err != nil {
		return nil, nil, err
	}

	appCtx = appCtx.WithModuleConfigs(cfg.Modules)
	app := core.NewApp(appCtx)
	ids := config.Resolve(cfg)
	if err := app.LoadModules(ids); err != nil {
		return nil, nil, err
	}

	if err := wireWorkflow(app, appCtx, cfg); err != nil {
		return nil, nil, err
	}

	return app, ids, nil
}

// resolveConfigPath searches for a config file in standard locations.
// Search order: $XDG_CONFIG_HOME/tikrelay/tikrelay.yaml → ~/.config/tikrelay/tikrelay.yaml → ./tikrelay.yaml
func resolveConfigPath() (string, error) {
	var candidates []string

	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		candidates = append(candidates, filepath.Join(xdg, "tikrelay", "tikrelay.yaml"))
	} else if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "tikrelay", "tikrelay.yaml"))
	}

	candidates = append(candidates, "tikrelay.yaml")

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no configuration file found (searched: %v)", candidates)
}

// defaultDataDir returns the default persistent data directory.
// Uses $XDG_DATA_HOME/tikrelay if set, otherwise ~/.local/share/tikrelay.
func defaultDataDir() string {
	if dir, ok := os.LookupEnv("XDG_DATA_HOME"); ok {
		return filepath.Join(dir, "tikrelay")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "tikrelay")
}
