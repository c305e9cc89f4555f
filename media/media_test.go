package media

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

var (
	_ Generator   = (*ImageGenerator)(nil)
	_ Transcriber = (*OCRTranscriber)(nil)
)

func TestGenerateImageEncodesResponse(t *testing.T) {
	imageBytes := []byte{0x89, 0x50, 0x4e, 0x47, 0x01, 0x02}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/prompt/") {
			http.NotFound(w, r)
			return
		}
		if r.URL.Query().Get("width") != "256" || r.URL.Query().Get("quality") != "low" {
			t.Errorf("unexpected generation query: %s", r.URL.RawQuery)
		}
		_, _ = w.Write(imageBytes)
	}))
	defer server.Close()

	generator := NewImageGenerator(server.URL)
	encoded, err := generator.GenerateImage(context.Background(), "a red bicycle")
	if err != nil {
		t.Fatalf("GenerateImage failed: %v", err)
	}
	if encoded != base64.StdEncoding.EncodeToString(imageBytes) {
		t.Fatalf("unexpected encoded image: %q", encoded)
	}
}

func TestGenerateImageRejectsErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	generator := NewImageGenerator(server.URL)
	if _, err := generator.GenerateImage(context.Background(), "anything"); err == nil {
		t.Fatalf("expected error for non-200 status")
	}
}

func TestExtractTextScrapesActionAndParsesResponse(t *testing.T) {
	const action = "ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12cd"

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			fmt.Fprint(w, `<html><head>`+
				`<script src="/static/chunks/main-abc.js"></script>`+
				`<script src="/static/chunks/page-def123.js"></script>`+
				`</head><body></body></html>`)
		case http.MethodPost:
			if got := r.Header.Get("Next-Action"); got != action {
				t.Errorf("expected action header %q, got %q", action, got)
			}
			fmt.Fprint(w, "0:{\"a\":\"irrelevant\"}\n1:\"scanned words\"\n")
		default:
			http.NotFound(w, r)
		}
	})
	mux.HandleFunc("/static/chunks/page-def123.js", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `self.push(["createServerReference"]("%s"))`, action)
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	transcriber := NewOCRTranscriber(server.URL)
	text, err := transcriber.ExtractText(context.Background(), base64.StdEncoding.EncodeToString([]byte("img")))
	if err != nil {
		t.Fatalf("ExtractText failed: %v", err)
	}
	if text != "scanned words" {
		t.Fatalf("expected %q, got %q", "scanned words", text)
	}
}

func TestExtractTextFailsWithoutPageScript(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><head><script src="/static/other.js"></script></head></html>`)
	}))
	defer server.Close()

	transcriber := NewOCRTranscriber(server.URL)
	_, err := transcriber.ExtractText(context.Background(), "aGk=")
	if !errors.Is(err, ErrTranscriberResponse) {
		t.Fatalf("expected ErrTranscriberResponse, got %v", err)
	}
}

func TestParseActionResponseRejectsMalformedBodies(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{name: "single line", body: "0:done"},
		{name: "no quotes", body: "0:head\n1:notquoted"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := parseActionResponse([]byte(tc.body)); !errors.Is(err, ErrTranscriberResponse) {
				t.Fatalf("expected ErrTranscriberResponse, got %v", err)
			}
		})
	}
}
