package openai

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"videothingy/assembly-engine/internal/errs"
)

const verboseJSON = `{
  "task": "transcribe",
  "language": "english",
  "duration": 1.9,
  "text": "Hello there friend",
  "words": [
    {"word": "Hello", "start": 0.0, "end": 0.42},
    {"word": "there", "start": 0.42, "end": 0.8},
    {"word": "friend", "start": 0.9, "end": 1.9}
  ]
}`

func newServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestSynthesizeSendsVoiceAndInstructions(t *testing.T) {
	var body string
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/speech" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("ID3fakeaudio"))
	})
	s := NewSynthesizer(NewClient("test-key", srv.URL+"/v1/"), "", "mp3", nil)

	audio, err := s.Synthesize(context.Background(), "Hello there", "nova", "whisper it")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(audio) != "ID3fakeaudio" {
		t.Errorf("audio = %q", audio)
	}
	for _, want := range []string{`"voice":"nova"`, `"instructions":"whisper it"`, `"model":"gpt-4o-mini-tts"`, `"response_format":"mp3"`} {
		if !strings.Contains(body, want) {
			t.Errorf("request body %s missing %s", body, want)
		}
	}
}

func TestSynthesizeClassifiesErrors(t *testing.T) {
	cases := []struct {
		status    int
		transient bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusServiceUnavailable, true},
		{http.StatusBadRequest, false},
	}
	for _, tc := range cases {
		var calls int32
		srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(tc.status)
			w.Write([]byte(`{"error":{"message":"nope","type":"server_error"}}`))
		})
		s := NewSynthesizer(NewClient("k", srv.URL+"/v1/"), "", "mp3", nil)
		_, err := s.Synthesize(context.Background(), "x", "alloy", "")
		if err == nil {
			t.Fatalf("status %d: expected error", tc.status)
		}
		if errs.IsTransient(err) != tc.transient {
			t.Errorf("status %d: transient = %v, want %v (%v)", tc.status, errs.IsTransient(err), tc.transient, err)
		}
		if calls != 1 {
			t.Errorf("status %d: SDK retried %d times", tc.status, calls)
		}
	}
}

func TestAlignParsesWordTimestamps(t *testing.T) {
	var contentType string
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/transcriptions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		contentType = r.Header.Get("Content-Type")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		} else {
			if got := r.FormValue("response_format"); got != "verbose_json" {
				t.Errorf("response_format = %q", got)
			}
			if got := r.MultipartForm.Value["timestamp_granularities[]"]; len(got) != 1 || got[0] != "word" {
				t.Errorf("timestamp_granularities = %v", r.MultipartForm.Value)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(verboseJSON))
	})
	a := NewAligner(NewClient("k", srv.URL+"/v1/"), "mp3")

	words, err := a.Align(context.Background(), []byte("ID3fakeaudio"))
	if err != nil {
		t.Fatalf("Align: %v", err)
	}
	if !strings.HasPrefix(contentType, "multipart/form-data") {
		t.Errorf("content type = %s", contentType)
	}
	if len(words) != 3 || words[2].Word != "friend" || words[2].Start != 0.9 || words[2].End != 1.9 || words[0].Confidence != 1 {
		t.Errorf("words = %+v", words)
	}
}

func TestParseWordsRequiresWords(t *testing.T) {
	if _, err := ParseWords(`{"text":"hi"}`); !errs.IsStructural(err) {
		t.Errorf("expected structural error, got %v", err)
	}
	words, err := ParseWords(`{"words":[{"word":"a","start":0,"end":0.1,"probability":0.42}]}`)
	if err != nil || words[0].Confidence != 0.42 {
		t.Errorf("words = %+v, %v", words, err)
	}
}
