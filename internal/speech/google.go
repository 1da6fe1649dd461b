package speech

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	gspeech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/api/option"
)

// GoogleRecognizer uses Cloud Speech-to-Text for both streaming and
// single-shot recognition of 16-bit PCM audio.
type GoogleRecognizer struct {
	client     *gspeech.Client
	sampleRate int32
}

// NewGoogleRecognizer creates a recognizer. An empty credentials file uses
// application default credentials.
func NewGoogleRecognizer(ctx context.Context, credentialsFile string, sampleRate int32) (*GoogleRecognizer, error) {
	var opts []option.ClientOption
	if strings.TrimSpace(credentialsFile) != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := gspeech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("speech: create google client: %w", err)
	}
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	return &GoogleRecognizer{client: client, sampleRate: sampleRate}, nil
}

func (g *GoogleRecognizer) config(language string) *speechpb.RecognitionConfig {
	return &speechpb.RecognitionConfig{
		Encoding:                   speechpb.RecognitionConfig_LINEAR16,
		SampleRateHertz:            g.sampleRate,
		LanguageCode:               language,
		EnableAutomaticPunctuation: true,
	}
}

// Stream implements StreamRecognizer.
func (g *GoogleRecognizer) Stream(ctx context.Context, language string, audio <-chan []byte, emit func(string, bool)) error {
	stream, err := g.client.StreamingRecognize(ctx)
	if err != nil {
		return fmt.Errorf("speech: open stream: %w", err)
	}
	if err := stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config:         g.config(language),
				InterimResults: true,
			},
		},
	}); err != nil {
		return fmt.Errorf("speech: send stream config: %w", err)
	}

	sendDone := make(chan error, 1)
	go func() {
		for {
			select {
			case <-ctx.Done():
				sendDone <- ctx.Err()
				return
			case chunk, ok := <-audio:
				if !ok {
					sendDone <- stream.CloseSend()
					return
				}
				if err := stream.Send(&speechpb.StreamingRecognizeRequest{
					StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{AudioContent: chunk},
				}); err != nil {
					sendDone <- fmt.Errorf("speech: send audio: %w", err)
					return
				}
			}
		}
	}()

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("speech: receive: %w", err)
		}
		if status := resp.GetError(); status != nil {
			return fmt.Errorf("speech: recognition error %d: %s", status.GetCode(), status.GetMessage())
		}
		for _, result := range resp.GetResults() {
			alts := result.GetAlternatives()
			if len(alts) == 0 {
				continue
			}
			emit(alts[0].GetTranscript(), result.GetIsFinal())
		}
	}
	return <-sendDone
}

// Transcribe implements Transcriber.
func (g *GoogleRecognizer) Transcribe(ctx context.Context, language string, audio []byte) (string, error) {
	resp, err := g.client.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: g.config(language),
		Audio:  &speechpb.RecognitionAudio{AudioSource: &speechpb.RecognitionAudio_Content{Content: audio}},
	})
	if err != nil {
		return "", fmt.Errorf("speech: recognize: %w", err)
	}
	var parts []string
	for _, result := range resp.GetResults() {
		if alts := result.GetAlternatives(); len(alts) > 0 {
			parts = append(parts, strings.TrimSpace(alts[0].GetTranscript()))
		}
	}
	return strings.Join(parts, " "), nil
}

// Close releases the underlying client.
func (g *GoogleRecognizer) Close() error {
	return g.client.Close()
}
