package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

const (
	DefaultModel = "gemini-3-flash-preview"

	SystemInstruction = `Eres Aura, la asistente jurídica inteligente de IURYNEX en Ecuador.
Tu objetivo es brindar orientación legal inmediata, clara y accesible.
Contexto de IURYNEX: Emprendimiento digital jurídico en Riobamba, Ecuador.
Directrices:
1. Eres profesional, humana y confiable.
2. Te especializas en Derecho Ecuatoriano.
3. Debes guiar al usuario en sus primeros pasos legales.
4. Si la consulta es compleja, sugiere agendar una cita con un abogado humano de IURYNEX.
5. Mantén respuestas concisas pero informativas.
6. Usa un lenguaje que un ciudadano común pueda entender.
No menciones que eres una IA a menos que sea necesario, actúa como la personificación de Aura.`
)

type GeminiConfig struct {
	APIKey string
	Model  string
	// BaseURL overrides the API endpoint, for tests and proxies.
	BaseURL string
}

// GeminiService answers through the Gemini text API.
type GeminiService struct {
	client *genai.Client
	model  string
}

func NewGeminiService(ctx context.Context, cfg GeminiConfig) (*GeminiService, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("genai client: %w", err)
	}
	return &GeminiService{client: client, model: cfg.Model}, nil
}

func (g *GeminiService) Reply(ctx context.Context, history []Message, text string) (string, error) {
	contents := buildContents(history, text)
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{genai.NewPartFromText(SystemInstruction)}},
	}

	log.Debug().Str("model", g.model).Int("turns", len(contents)).Msg("Requesting chat reply")
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("genai generate: %w", err)
	}

	var sb strings.Builder
	if resp != nil && len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			sb.WriteString(part.Text)
		}
	}
	return sb.String(), nil
}

// buildContents turns the visible history plus the new text into API turns.
// The opening greeting is ours, not the model's, so leading model messages
// are skipped; consecutive messages of one role share a turn.
func buildContents(history []Message, text string) []*genai.Content {
	var (
		contents []*genai.Content
		last     *genai.Content
	)
	add := func(role Role, s string) {
		if last != nil && last.Role == string(role) {
			last.Parts = append(last.Parts, genai.NewPartFromText(s))
			return
		}
		last = &genai.Content{Role: string(role), Parts: []*genai.Part{genai.NewPartFromText(s)}}
		contents = append(contents, last)
	}

	for _, m := range history {
		if len(contents) == 0 && m.Role == RoleModel {
			continue
		}
		add(m.Role, m.Content)
	}
	add(RoleUser, text)
	return contents
}
