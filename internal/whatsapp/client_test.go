package whatsapp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	return NewClient("instance1", "token1", srv.URL, logger)
}

func TestSendTextSuccess(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/instance1/messages/chat" {
			t.Errorf("path = %q, want /instance1/messages/chat", r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		if got := r.PostForm.Get("to"); got != "237655443322" {
			t.Errorf("to = %q, want 237655443322", got)
		}
		if got := r.PostForm.Get("token"); got != "token1" {
			t.Errorf("token = %q, want token1", got)
		}
		fmt.Fprint(w, `{"sent": true, "id": "msg-1"}`)
	})

	res, err := client.SendText(context.Background(), "237655443322", "hello")
	if err != nil {
		t.Fatalf("SendText failed: %v", err)
	}
	if !res.Success {
		t.Errorf("Success = false, error = %q", res.Error)
	}
	if res.Kind != KindText {
		t.Errorf("Kind = %q, want text", res.Kind)
	}
	if res.Raw["id"] != "msg-1" {
		t.Errorf("Raw id = %v, want msg-1", res.Raw["id"])
	}
}

func TestSendTextRejected(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"sent": false, "message": "number not on whatsapp"}`)
	})

	res, err := client.SendText(context.Background(), "237655443322", "hello")
	if err != nil {
		t.Fatalf("rejection should not be a transport error: %v", err)
	}
	if res.Success {
		t.Error("Success = true, want false")
	}
	if !strings.Contains(res.Error, "number not on whatsapp") {
		t.Errorf("Error = %q, want gateway message included", res.Error)
	}
}

func TestSendTextServerErrorIsRetryable(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	})

	res, err := client.SendText(context.Background(), "237655443322", "hello")
	if err == nil {
		t.Fatal("5xx must surface as a retryable error")
	}
	if res == nil || res.Success {
		t.Error("expected a failed result alongside the error")
	}
}

func TestSendAttachment(t *testing.T) {
	img := filepath.Join(t.TempDir(), "promo.png")
	if err := os.WriteFile(img, []byte("fake png bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/instance1/messages/image" {
			t.Errorf("path = %q, want /instance1/messages/image", r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		if img := r.PostForm.Get("image"); !strings.HasPrefix(img, "data:image/png;base64,") {
			t.Errorf("image field should be a png data URI, got prefix %q", img[:min(len(img), 30)])
		}
		fmt.Fprint(w, `{"sent": true}`)
	})

	res, err := client.SendAttachment(context.Background(), "237655443322", img, "check this out")
	if err != nil {
		t.Fatalf("SendAttachment failed: %v", err)
	}
	if !res.Success {
		t.Errorf("Success = false, error = %q", res.Error)
	}
	if res.Kind != KindAttachment {
		t.Errorf("Kind = %q, want attachment", res.Kind)
	}
}

func TestSendAttachmentMissingFile(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("gateway must not be called for a missing attachment")
	})

	res, err := client.SendAttachment(context.Background(), "237655443322", "/no/such/file.png", "")
	if err != nil {
		t.Fatalf("missing file is a local failure, not a transport error: %v", err)
	}
	if res.Success {
		t.Error("Success = true, want false")
	}
}

func TestSendAttachmentCaptionTruncated(t *testing.T) {
	img := filepath.Join(t.TempDir(), "promo.jpg")
	if err := os.WriteFile(img, []byte("jpg"), 0o644); err != nil {
		t.Fatal(err)
	}

	var gotCaption string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		gotCaption = r.PostForm.Get("caption")
		fmt.Fprint(w, `{"sent": true}`)
	})

	long := strings.Repeat("x", 3000)
	if _, err := client.SendAttachment(context.Background(), "237655443322", img, long); err != nil {
		t.Fatal(err)
	}
	if len([]rune(gotCaption)) > maxCaptionRunes {
		t.Errorf("caption length %d exceeds limit %d", len([]rune(gotCaption)), maxCaptionRunes)
	}
	if !strings.HasSuffix(gotCaption, "[truncated]") {
		t.Error("truncated caption should carry the truncation marker")
	}
}

func TestTruncateRuneSafe(t *testing.T) {
	// 30 two-byte runes; a byte-offset cut at 20 would split one.
	s := strings.Repeat("é", 30)
	got := truncate(s, 20)
	if !utf8.ValidString(got) {
		t.Errorf("truncate produced invalid UTF-8: %q", got)
	}
	if n := utf8.RuneCountInString(got); n != 20 {
		t.Errorf("got %d runes, want 20", n)
	}
	if short := truncate("abc", 20); short != "abc" {
		t.Errorf("short string altered: %q", short)
	}
}

func TestSupportedAttachment(t *testing.T) {
	if !SupportedAttachment("photo.PNG") {
		t.Error("png should be supported regardless of case")
	}
	if SupportedAttachment("notes.pdf") {
		t.Error("pdf is not an image attachment")
	}
}
