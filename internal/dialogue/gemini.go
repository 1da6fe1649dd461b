package dialogue

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GeminiProvider implements Provider using Google's Gemini API.
type GeminiProvider struct {
	client *genai.Client
}

// NewGeminiProvider creates a new Gemini provider.
func NewGeminiProvider(ctx context.Context, apiKey string) (*GeminiProvider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("dialogue: gemini api key is required")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("dialogue: failed to create gemini client: %w", err)
	}
	return &GeminiProvider{client: client}, nil
}

// StartSession configures a model with the instruction and starts a chat.
func (p *GeminiProvider) StartSession(_ context.Context, modelID string, inst Instruction) (ModelSession, error) {
	if strings.TrimSpace(modelID) == "" {
		return nil, errors.New("dialogue: model id is required")
	}
	model := p.client.GenerativeModel(modelID)
	if strings.TrimSpace(inst.System) != "" {
		model.SystemInstruction = genai.NewUserContent(genai.Text(inst.System))
	}
	if len(inst.Tools) > 0 {
		model.Tools = []*genai.Tool{{FunctionDeclarations: toFunctionDeclarations(inst.Tools)}}
	} else if inst.JSONOutput {
		model.ResponseMIMEType = "application/json"
	}
	return &geminiSession{chat: model.StartChat()}, nil
}

// Close releases resources held by the Gemini client.
func (p *GeminiProvider) Close() error {
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}

func toFunctionDeclarations(decls []FunctionDecl) []*genai.FunctionDeclaration {
	out := make([]*genai.FunctionDeclaration, 0, len(decls))
	for _, d := range decls {
		props := make(map[string]*genai.Schema, len(d.Params))
		for _, p := range d.Params {
			props[p.Name] = &genai.Schema{Type: genai.TypeString, Description: p.Description}
		}
		out = append(out, &genai.FunctionDeclaration{
			Name:        d.Name,
			Description: d.Description,
			Parameters: &genai.Schema{
				Type:       genai.TypeObject,
				Properties: props,
				Required:   d.RequiredParams(),
			},
		})
	}
	return out
}

type geminiSession struct {
	chat *genai.ChatSession
}

func (s *geminiSession) SendText(ctx context.Context, text string) (ProviderResponse, error) {
	return s.send(ctx, genai.Text(text))
}

func (s *geminiSession) SendFunctionResult(ctx context.Context, name string, result map[string]any) (ProviderResponse, error) {
	return s.send(ctx, genai.FunctionResponse{Name: name, Response: result})
}

func (s *geminiSession) SendStream(ctx context.Context, text string, onChunk func(string)) (string, error) {
	iter := s.chat.SendMessageStream(ctx, genai.Text(text))
	var full strings.Builder
	for {
		resp, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return full.String(), fmt.Errorf("dialogue: gemini stream failed: %w", err)
		}
		chunk := responseText(resp)
		if chunk == "" {
			continue
		}
		full.WriteString(chunk)
		if onChunk != nil {
			onChunk(chunk)
		}
	}
	return full.String(), nil
}

func (s *geminiSession) send(ctx context.Context, part genai.Part) (ProviderResponse, error) {
	resp, err := s.chat.SendMessage(ctx, part)
	if err != nil {
		return ProviderResponse{}, fmt.Errorf("dialogue: gemini send failed: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return ProviderResponse{}, errors.New("dialogue: gemini returned no candidates")
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil {
		return ProviderResponse{}, errors.New("dialogue: gemini returned empty content")
	}

	var out ProviderResponse
	var text strings.Builder
	for _, p := range candidate.Content.Parts {
		switch v := p.(type) {
		case genai.Text:
			text.WriteString(string(v))
		case genai.FunctionCall:
			out.Calls = append(out.Calls, Invocation{Name: v.Name, Args: v.Args})
		}
	}
	out.Text = strings.TrimSpace(text.String())
	return out, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String()
}
