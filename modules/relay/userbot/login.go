package userbot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
)

// Login runs the interactive authorization flow and persists the session
// file. It is invoked from the CLI, not from the module lifecycle.
func (u *Userbot) Login(ctx context.Context) error {
	client, err := u.newClient()
	if err != nil {
		return err
	}

	return client.Run(ctx, func(ctx context.Context) error {
		status, err := client.Auth().Status(ctx)
		if err != nil {
			return fmt.Errorf("userbot: auth status: %w", err)
		}
		if status.Authorized {
			u.logger.Info("userbot already authorized", "session_file", u.config.SessionFile)
			return nil
		}

		flow := auth.NewFlow(
			promptAuthenticator{phone: u.config.Phone},
			auth.SendCodeOptions{},
		)
		if err := client.Auth().IfNecessary(ctx, flow); err != nil {
			return fmt.Errorf("userbot: login flow: %w", err)
		}

		u.logger.Info("userbot authorized", "session_file", u.config.SessionFile)
		return nil
	})
}

// promptAuthenticator implements auth.UserAuthenticator with terminal prompts.
type promptAuthenticator struct {
	phone string
}

var _ auth.UserAuthenticator = promptAuthenticator{}

// Phone returns the configured phone number, prompting when unset.
func (a promptAuthenticator) Phone(context.Context) (string, error) {
	if a.phone != "" {
		return a.phone, nil
	}
	var phone string
	err := huh.NewInput().
		Title("Phone number").
		Description("International format, e.g. +15551234567").
		Value(&phone).
		Run()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(phone), nil
}

// Code prompts for the login code Telegram just sent.
func (a promptAuthenticator) Code(context.Context, *tg.AuthSentCode) (string, error) {
	var code string
	err := huh.NewInput().
		Title("Login code").
		Description("The code Telegram sent to your account").
		Value(&code).
		Run()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(code), nil
}

// Password prompts for the 2FA password.
func (a promptAuthenticator) Password(context.Context) (string, error) {
	var password string
	err := huh.NewInput().
		Title("Two-factor password").
		EchoMode(huh.EchoModePassword).
		Value(&password).
		Run()
	if err != nil {
		return "", err
	}
	return password, nil
}

// AcceptTermsOfService accepts silently; the relay account is operated by
// its owner.
func (a promptAuthenticator) AcceptTermsOfService(context.Context, tg.HelpTermsOfService) error {
	return nil
}

// SignUp refuses: the relay must use an existing account.
func (a promptAuthenticator) SignUp(context.Context) (auth.UserInfo, error) {
	return auth.UserInfo{}, errors.New("userbot: account does not exist, sign up is not supported")
}
