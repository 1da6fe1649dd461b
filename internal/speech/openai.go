package speech

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// WhisperTranscriber performs single-shot recognition with OpenAI Whisper.
type WhisperTranscriber struct {
	transcribe func(ctx context.Context, req openai.AudioRequest) (openai.AudioResponse, error)
	model      string
}

func NewWhisperTranscriber(client *openai.Client, model string) *WhisperTranscriber {
	if client == nil {
		panic("speech: openai client cannot be nil")
	}
	if strings.TrimSpace(model) == "" {
		model = openai.Whisper1
	}
	return &WhisperTranscriber{transcribe: client.CreateTranscription, model: model}
}

// Transcribe implements Transcriber. The recording is sent as a WAV file.
func (w *WhisperTranscriber) Transcribe(ctx context.Context, language string, audio []byte) (string, error) {
	resp, err := w.transcribe(ctx, openai.AudioRequest{
		Model:    w.model,
		FilePath: "utterance.wav",
		Reader:   bytes.NewReader(audio),
		Language: isoLanguage(language),
	})
	if err != nil {
		return "", fmt.Errorf("speech: whisper transcription: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

// OpenAISynthesizer is the networked text-to-speech backend.
type OpenAISynthesizer struct {
	speak  func(ctx context.Context, req openai.CreateSpeechRequest) (io.ReadCloser, error)
	model  string
	voices map[string]openai.SpeechVoice
}

func NewOpenAISynthesizer(client *openai.Client, model string) *OpenAISynthesizer {
	if client == nil {
		panic("speech: openai client cannot be nil")
	}
	speak := func(ctx context.Context, req openai.CreateSpeechRequest) (io.ReadCloser, error) {
		return client.CreateSpeech(ctx, req)
	}
	return newOpenAISynthesizer(speak, model)
}

func newOpenAISynthesizer(speak func(context.Context, openai.CreateSpeechRequest) (io.ReadCloser, error), model string) *OpenAISynthesizer {
	if strings.TrimSpace(model) == "" {
		model = string(openai.TTSModel1)
	}
	return &OpenAISynthesizer{
		speak: speak,
		model: model,
		voices: map[string]openai.SpeechVoice{
			"en-US": openai.VoiceAlloy,
			"ml-IN": openai.VoiceNova,
		},
	}
}

// Name identifies the backend.
func (s *OpenAISynthesizer) Name() string { return "openai" }

// Synthesize implements Synthesizer.
func (s *OpenAISynthesizer) Synthesize(ctx context.Context, text, language string) (Audio, error) {
	voice, ok := s.voices[language]
	if !ok {
		voice = openai.VoiceAlloy
	}
	body, err := s.speak(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(s.model),
		Input:          text,
		Voice:          voice,
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return Audio{}, fmt.Errorf("speech: openai synthesis: %w", err)
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return Audio{}, fmt.Errorf("speech: read openai audio: %w", err)
	}
	if len(data) == 0 {
		return Audio{}, fmt.Errorf("speech: openai synthesis: %w", ErrEmptyAudio)
	}
	return Audio{Data: data, Format: "mp3", Backend: s.Name()}, nil
}

func isoLanguage(locale string) string {
	lang, _, _ := strings.Cut(strings.TrimSpace(locale), "-")
	return strings.ToLower(lang)
}
