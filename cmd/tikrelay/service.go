package main

import (
	"fmt"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"
)

// program adapts the app to service.Interface. The service manager invokes
// the binary with "start", so Start only needs to launch the run loop.
type program struct {
	cfgPath string
	errCh   chan error
}

// Start implements service.Interface.
func (p *program) Start(service.Service) error {
	app, _, err := buildApp(p.cfgPath)
	if err != nil {
		return err
	}
	go func() {
		p.errCh <- app.Run()
	}()
	return nil
}

// Stop implements service.Interface. App.Run exits on signal; the service
// manager delivers one before calling Stop.
func (p *program) Stop(service.Service) error {
	return nil
}

func newService(cfgPath string) (service.Service, error) {
	svcConfig := &service.Config{
		Name:        "tikrelay",
		DisplayName: "tikrelay",
		Description: "Telegram bot relaying TikTok videos and photo posts",
		Arguments:   []string{"start"},
	}
	if cfgPath != "" {
		svcConfig.Arguments = append(svcConfig.Arguments, "--config", cfgPath)
	}
	return service.New(&program{cfgPath: cfgPath, errCh: make(chan error, 1)}, svcConfig)
}

func serviceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Manage the system service",
	}

	var cfgPath string
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "Path to configuration file")

	cmd.AddCommand(&cobra.Command{
		Use:   "install",
		Short: "Install tikrelay as a system service",
		RunE: func(*cobra.Command, []string) error {
			svc, err := newService(cfgPath)
			if err != nil {
				return err
			}
			if err := svc.Install(); err != nil {
				return fmt.Errorf("install service: %w", err)
			}
			fmt.Println("Service installed.")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "uninstall",
		Short: "Remove the tikrelay system service",
		RunE: func(*cobra.Command, []string) error {
			svc, err := newService(cfgPath)
			if err != nil {
				return err
			}
			if err := svc.Uninstall(); err != nil {
				return fmt.Errorf("uninstall service: %w", err)
			}
			fmt.Println("Service uninstalled.")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the service status",
		RunE: func(*cobra.Command, []string) error {
			svc, err := newService(cfgPath)
			if err != nil {
				return err
			}
			status, err := svc.Status()
			if err != nil {
				return fmt.Errorf("service status: %w", err)
			}
			switch status {
			case service.StatusRunning:
				fmt.Println("running")
			case service.StatusStopped:
				fmt.Println("stopped")
			default:
				fmt.Println("unknown")
			}
			return nil
		},
	})

	return cmd
}
