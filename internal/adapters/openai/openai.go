// Package openai adapts the OpenAI audio endpoints to the synthesis and
// alignment ports: speech comes from Audio.Speech, word timestamps from a
// verbose_json transcription with word granularity.
package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"videothingy/assembly-engine/internal/errs"
	"videothingy/assembly-engine/internal/models"
)

// NewClient builds an SDK client. SDK-level retries are off because the
// engine wraps every call in its own bounded retry.
func NewClient(apiKey, baseURL string) oai.Client {
	opts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return oai.NewClient(opts...)
}

// Synthesizer implements ports.Synthesizer.
type Synthesizer struct {
	client oai.Client
	model  string
	format oai.AudioSpeechNewParamsResponseFormat
	log    *logrus.Entry
}

// NewSynthesizer returns a synthesizer producing clips in format (mp3 or wav).
func NewSynthesizer(client oai.Client, model, format string, log *logrus.Logger) *Synthesizer {
	if model == "" {
		model = oai.SpeechModelGPT4oMiniTTS
	}
	f := oai.AudioSpeechNewParamsResponseFormatMP3
	if format == "wav" {
		f = oai.AudioSpeechNewParamsResponseFormatWAV
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Synthesizer{client: client, model: model, format: f, log: log.WithField("component", "openai_tts")}
}

// Synthesize returns encoded audio for text. The style hint is passed as
// voice instructions.
func (s *Synthesizer) Synthesize(ctx context.Context, text, voiceID, styleHint string) ([]byte, error) {
	params := oai.AudioSpeechNewParams{
		Input:          text,
		Model:          s.model,
		Voice:          oai.AudioSpeechNewParamsVoice(voiceID),
		ResponseFormat: s.format,
	}
	if styleHint != "" {
		params.Instructions = oai.String(styleHint)
	}
	resp, err := s.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return nil, classify("synthesize", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.Transient("synthesize", fmt.Errorf("read speech body: %w", err))
	}
	s.log.WithFields(logrus.Fields{"voice_id": voiceID, "chars": len(text), "bytes": len(data)}).Debug("speech synthesized")
	return data, nil
}

// Aligner implements ports.Aligner.
type Aligner struct {
	client   oai.Client
	model    string
	filename string
	mime     string
}

// NewAligner returns an aligner for clips in format (mp3 or wav).
func NewAligner(client oai.Client, format string) *Aligner {
	a := &Aligner{client: client, model: oai.AudioModelWhisper1, filename: "clip.mp3", mime: "audio/mpeg"}
	if format == "wav" {
		a.filename, a.mime = "clip.wav", "audio/wav"
	}
	return a
}

// Align transcribes audio and returns its word timestamps.
func (a *Aligner) Align(ctx context.Context, audio []byte) ([]models.WordTimestamp, error) {
	tr, err := a.client.Audio.Transcriptions.New(ctx, oai.AudioTranscriptionNewParams{
		File:                   oai.File(bytes.NewReader(audio), a.filename, a.mime),
		Model:                  a.model,
		ResponseFormat:         oai.AudioResponseFormatVerboseJSON,
		TimestampGranularities: []string{"word"},
	})
	if err != nil {
		return nil, classify("align", err)
	}
	return ParseWords(tr.RawJSON())
}

// ParseWords reads the words array of a verbose_json transcription.
// Whisper reports no per-word confidence, so a missing probability is 1.
func ParseWords(raw string) ([]models.WordTimestamp, error) {
	words := gjson.Get(raw, "words")
	if !words.Exists() || !words.IsArray() {
		return nil, errs.Structural("transcription has no word timestamps")
	}
	var out []models.WordTimestamp
	for _, w := range words.Array() {
		conf := 1.0
		if p := w.Get("probability"); p.Exists() {
			conf = p.Float()
		}
		out = append(out, models.WordTimestamp{
			Word:       w.Get("word").String(),
			Start:      w.Get("start").Float(),
			End:        w.Get("end").Float(),
			Confidence: conf,
		})
	}
	return out, nil
}

// classify marks rate limits, server errors and network failures as
// transient. Other API errors are returned as they are.
func classify(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var apiErr *oai.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500 {
			return errs.Transient(op, err)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF) {
		return errs.Transient(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
