package telegram

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"
)

// pollServer serves one batch of updates on the first getUpdates call and
// blocks briefly on subsequent ones, recording any sendMessage bodies.
type pollServer struct {
	mu       sync.Mutex
	updates  []Update
	served   bool
	sentText []SendMessageRequest
}

func (s *pollServer) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/bot12345:testtoken/getUpdates":
			s.mu.Lock()
			batch := []Update{}
			if !s.served {
				batch = s.updates
				s.served = true
			}
			s.mu.Unlock()
			if len(batch) == 0 {
				time.Sleep(20 * time.Millisecond)
			}
			writeResult(t, w, batch)
		case r.URL.Path == "/bot12345:testtoken/sendMessage":
			var req SendMessageRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			s.mu.Lock()
			s.sentText = append(s.sentText, req)
			s.mu.Unlock()
			writeResult(t, w, Message{MessageID: 1})
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
		}
	}
}

type recorded struct {
	mu     sync.Mutex
	texts  []string
	medias []string
}

func startPoller(t *testing.T, srv *pollServer, allow []int64) *recorded {
	t.Helper()
	client := newTestServer(t, srv.handler(t))

	rec := &recorded{}
	cfg := Config{}
	cfg.defaults()
	cfg.PollingTimeout = 0
	cfg.AllowUsers = allow

	p := NewPoller(client, Handlers{
		OnText: func(_ int64, text string) {
			rec.mu.Lock()
			rec.texts = append(rec.texts, text)
			rec.mu.Unlock()
		},
		OnMedia: func(caption, _ string, _ int64, _ int) {
			rec.mu.Lock()
			rec.medias = append(rec.medias, caption)
			rec.mu.Unlock()
		},
	}, NewAllowList(allow), slog.New(slog.DiscardHandler), cfg)

	p.Start()
	t.Cleanup(p.Stop)
	return rec
}

func waitPoll(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestPoller_DispatchesTextAndVideo(t *testing.T) {
	t.Parallel()
	srv := &pollServer{updates: []Update{
		{UpdateID: 1, Message: &Message{
			MessageID: 10,
			From:      &User{ID: 100},
			Chat:      Chat{ID: 100},
			Text:      "https://vm.tiktok.com/abc",
		}},
		{UpdateID: 2, Message: &Message{
			MessageID: 11,
			From:      &User{ID: 200, IsBot: false},
			Chat:      Chat{ID: 200},
			Caption:   "token-1",
			Video:     &Video{FileID: "file-1"},
		}},
	}}

	rec := startPoller(t, srv, nil)

	waitPoll(t, func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return len(rec.texts) == 1 && len(rec.medias) == 1
	})

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.texts[0] != "https://vm.tiktok.com/abc" {
		t.Errorf("text = %q", rec.texts[0])
	}
	if rec.medias[0] != "token-1" {
		t.Errorf("media caption = %q", rec.medias[0])
	}
}

func TestPoller_DeniedSenderGetsNotice(t *testing.T) {
	t.Parallel()
	srv := &pollServer{updates: []Update{
		{UpdateID: 1, Message: &Message{
			MessageID: 10,
			From:      &User{ID: 999},
			Chat:      Chat{ID: 999},
			Text:      "https://vm.tiktok.com/abc",
		}},
	}}

	rec := startPoller(t, srv, []int64{100})

	waitPoll(t, func() bool {
		srv.mu.Lock()
		defer srv.mu.Unlock()
		return len(srv.sentText) == 1
	})

	rec.mu.Lock()
	if len(rec.texts) != 0 {
		t.Errorf("denied sender text was dispatched: %v", rec.texts)
	}
	rec.mu.Unlock()

	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.sentText[0].ChatID != 999 || srv.sentText[0].Text == "" {
		t.Errorf("notice = %+v", srv.sentText[0])
	}
}

func TestPoller_VideoBypassesAllowList(t *testing.T) {
	t.Parallel()
	srv := &pollServer{updates: []Update{
		{UpdateID: 1, Message: &Message{
			MessageID: 11,
			From:      &User{ID: 999},
			Chat:      Chat{ID: 999},
			Caption:   "token-2",
			Video:     &Video{FileID: "file-2"},
		}},
	}}

	rec := startPoller(t, srv, []int64{100})

	waitPoll(t, func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return len(rec.medias) == 1
	})
}

func TestAllowList(t *testing.T) {
	t.Parallel()
	open := NewAllowList(nil)
	if !open.IsAllowed(123) {
		t.Error("empty allow list should allow everyone")
	}

	closed := NewAllowList([]int64{1, 2})
	if !closed.IsAllowed(1) || closed.IsAllowed(3) {
		t.Error("allow list membership check failed")
	}
}
