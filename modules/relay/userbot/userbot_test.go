package userbot

import (
	"context"
	"log/slog"
	"testing"
)

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"complete", Config{APIID: 12345, APIHash: "hash"}, false},
		{"missing api id", Config{APIHash: "hash"}, true},
		{"missing api hash", Config{APIID: 12345}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			u := &Userbot{config: tc.config}
			err := u.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestSetTarget_KeepsConfiguredValue(t *testing.T) {
	t.Parallel()
	u := &Userbot{config: Config{Target: "configured_bot"}}
	u.SetTarget("discovered_bot")
	if u.config.Target != "configured_bot" {
		t.Errorf("target = %q, want configured value kept", u.config.Target)
	}

	u = &Userbot{}
	u.SetTarget("discovered_bot")
	if u.config.Target != "discovered_bot" {
		t.Errorf("target = %q, want discovered value", u.config.Target)
	}
}

func TestUploadVideo_RequiresStart(t *testing.T) {
	t.Parallel()
	u := &Userbot{logger: slog.New(slog.DiscardHandler)}
	if err := u.UploadVideo(context.Background(), []byte("mp4"), "token"); err == nil {
		t.Fatal("UploadVideo() before Start succeeded, want error")
	}
}

func TestStart_RequiresTarget(t *testing.T) {
	t.Parallel()
	u := &Userbot{
		config: Config{APIID: 12345, APIHash: "hash", SessionFile: t.TempDir() + "/s.session"},
		logger: slog.New(slog.DiscardHandler),
	}
	if err := u.Start(); err == nil {
		t.Fatal("Start() without target succeeded, want error")
	}
}
