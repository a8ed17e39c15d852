package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

// newTestServer returns a Bot API stub and a client pointed at it.
func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient("12345:testtoken", srv.URL)
}

func writeResult(t *testing.T, w http.ResponseWriter, result any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": result}); err != nil {
		t.Errorf("encode response: %v", err)
	}
}

func TestClient_SendMessage(t *testing.T) {
	t.Parallel()
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/bot12345:testtoken/sendMessage" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var req SendMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.ChatID != 42 || req.Text != "hello" {
			t.Errorf("request = %+v", req)
		}
		writeResult(t, w, Message{MessageID: 7, Chat: Chat{ID: 42}})
	})

	msg, err := client.SendMessage(context.Background(), SendMessageRequest{ChatID: 42, Text: "hello"})
	if err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	if msg.MessageID != 7 {
		t.Errorf("message id = %d, want 7", msg.MessageID)
	}
}

func TestClient_APIError(t *testing.T) {
	t.Parallel()
	client := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`)
	})

	_, err := client.SendMessage(context.Background(), SendMessageRequest{ChatID: 1, Text: "x"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.Code != 400 {
		t.Errorf("code = %d, want 400", apiErr.Code)
	}
}

func TestClient_RetriesRateLimit(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	client := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"ok":false,"error_code":429,"description":"Too Many Requests","parameters":{"retry_after":0}}`)
			return
		}
		writeResult(t, w, true)
	})

	if err := client.SendChatAction(context.Background(), 1, "typing"); err != nil {
		t.Fatalf("SendChatAction() error = %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("calls = %d, want 2 (one retry)", got)
	}
}

func TestClient_SendMediaGroup(t *testing.T) {
	t.Parallel()
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		if got := r.FormValue("chat_id"); got != "42" {
			t.Errorf("chat_id = %q, want 42", got)
		}

		var media []InputMediaPhoto
		if err := json.Unmarshal([]byte(r.FormValue("media")), &media); err != nil {
			t.Fatalf("decode media field: %v", err)
		}
		if len(media) != 2 {
			t.Fatalf("media entries = %d, want 2", len(media))
		}
		for i, m := range media {
			if m.Type != "photo" {
				t.Errorf("media[%d].Type = %q", i, m.Type)
			}
			want := fmt.Sprintf("attach://photo_%d", i)
			if m.Media != want {
				t.Errorf("media[%d].Media = %q, want %q", i, m.Media, want)
			}
			if _, _, err := r.FormFile(fmt.Sprintf("photo_%d", i)); err != nil {
				t.Errorf("missing file part photo_%d: %v", i, err)
			}
		}
		writeResult(t, w, []Message{{MessageID: 1}, {MessageID: 2}})
	})

	msgs, err := client.SendMediaGroup(context.Background(), 42, [][]byte{{0xFF}, {0xD8}})
	if err != nil {
		t.Fatalf("SendMediaGroup() error = %v", err)
	}
	if len(msgs) != 2 {
		t.Errorf("messages = %d, want 2", len(msgs))
	}
}

func TestClient_SendAudioUpload(t *testing.T) {
	t.Parallel()
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		file, header, err := r.FormFile("audio")
		if err != nil {
			t.Fatalf("missing audio part: %v", err)
		}
		defer file.Close()
		if header.Filename != "audio.mp3" {
			t.Errorf("filename = %q, want audio.mp3", header.Filename)
		}
		writeResult(t, w, Message{MessageID: 9})
	})

	msg, err := client.SendAudioUpload(context.Background(), 42, []byte("mp3"))
	if err != nil {
		t.Fatalf("SendAudioUpload() error = %v", err)
	}
	if msg.MessageID != 9 {
		t.Errorf("message id = %d, want 9", msg.MessageID)
	}
}

func TestClient_DeleteMessage(t *testing.T) {
	t.Parallel()
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req deleteMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.ChatID != 7 || req.MessageID != 99 {
			t.Errorf("request = %+v", req)
		}
		writeResult(t, w, true)
	})

	if err := client.DeleteMessage(context.Background(), 7, 99); err != nil {
		t.Fatalf("DeleteMessage() error = %v", err)
	}
}
