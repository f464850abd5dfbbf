package whisper

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sorane/livetl/pkg/provider/asr"
	"github.com/sorane/livetl/pkg/types"
)

func testSegment(seq uint64) *types.Segment {
	return &types.Segment{
		Sequence:   seq,
		PCM:        make([]byte, 3200), // 100ms at 16kHz
		SampleRate: 16000,
		SealedAt:   time.Now(),
	}
}

func TestNew_RequiresBaseURL(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty baseURL")
	}
}

func TestTranscribe_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/inference" {
			t.Errorf("path = %q, want /inference", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		if got := r.FormValue("language"); got != "ja" {
			t.Errorf("language field = %q, want ja", got)
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		defer f.Close()
		if hdr.Filename != "segment.wav" {
			t.Errorf("filename = %q", hdr.Filename)
		}
		json.NewEncoder(w).Encode(map[string]any{"text": " こんにちは ", "confidence": 0.92})
	}))
	defer srv.Close()

	c, err := New(srv.URL, WithLanguage("ja"))
	if err != nil {
		t.Fatal(err)
	}
	res, err := c.Transcribe(context.Background(), testSegment(7))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Text != "こんにちは" {
		t.Errorf("text = %q, want trimmed transcript", res.Text)
	}
	if res.Sequence != 7 {
		t.Errorf("sequence = %d, want 7", res.Sequence)
	}
	if res.Confidence != 0.92 {
		t.Errorf("confidence = %f, want 0.92", res.Confidence)
	}
}

func TestTranscribe_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, _ := New(srv.URL)
	_, err := c.Transcribe(context.Background(), testSegment(1))
	var ae *asr.Error
	if !errors.As(err, &ae) {
		t.Fatalf("err = %v, want *asr.Error", err)
	}
	if ae.Kind != asr.ServerError || ae.Status != http.StatusInternalServerError {
		t.Errorf("kind = %v status = %d, want server_error 500", ae.Kind, ae.Status)
	}
}

func TestTranscribe_EmptyResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"text": "   "})
	}))
	defer srv.Close()

	c, _ := New(srv.URL)
	_, err := c.Transcribe(context.Background(), testSegment(1))
	if kind, ok := asr.KindOf(err); !ok || kind != asr.EmptyResult {
		t.Fatalf("err = %v, want empty_result", err)
	}
}

func TestTranscribe_MalformedBodyIsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>502 Bad Gateway</html>"))
	}))
	defer srv.Close()

	c, _ := New(srv.URL)
	_, err := c.Transcribe(context.Background(), testSegment(1))
	// A 200 with a non-JSON body must stay retryable rather than being
	// swallowed as an empty recognition.
	if kind, ok := asr.KindOf(err); !ok || kind != asr.ServerError {
		t.Fatalf("err = %v, want server_error", err)
	}
}

func TestTranscribe_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	c, _ := New(srv.URL, WithTimeout(50*time.Millisecond))
	start := time.Now()
	_, err := c.Transcribe(context.Background(), testSegment(1))
	if kind, ok := asr.KindOf(err); !ok || kind != asr.Timeout {
		t.Fatalf("err = %v, want timeout", err)
	}
	if time.Since(start) > time.Second {
		t.Error("timeout not enforced promptly")
	}
}

func TestTranscribe_Unreachable(t *testing.T) {
	// Port 1 on localhost is essentially guaranteed to refuse connections.
	c, _ := New("http://127.0.0.1:1", WithTimeout(2*time.Second))
	_, err := c.Transcribe(context.Background(), testSegment(1))
	if kind, ok := asr.KindOf(err); !ok || kind != asr.Unreachable {
		t.Fatalf("err = %v, want unreachable", err)
	}
}
