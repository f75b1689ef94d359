package rag

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/prompts"

	"github.com/fyrsmithlabs/newsragd/internal/config"
)

// answerTemplate instructs the model to answer only from the supplied
// context and to admit ignorance rather than invent facts.
const answerTemplate = `You are an assistant that answers questions about news articles and uploaded documents.

Answer the question using only the information in the context below.
If the context does not contain the answer, say that you don't know.
Do not invent facts that are not in the context.

Context:
{{.context}}

Question: {{.question}}

Answer:`

// GoogleAIGenerator generates answers with a Gemini model.
type GoogleAIGenerator struct {
	llm         llms.Model
	prompt      prompts.PromptTemplate
	temperature float64
}

// NewGoogleAIGenerator connects to the Google AI API. It fails when the
// API key is missing or the client cannot be built; callers typically
// fall back to NewUnavailable.
func NewGoogleAIGenerator(ctx context.Context, cfg config.LLMConfig) (*GoogleAIGenerator, error) {
	if !cfg.APIKey.IsSet() {
		return nil, fmt.Errorf("llm api key is not configured")
	}

	llm, err := googleai.New(ctx,
		googleai.WithAPIKey(cfg.APIKey.Value()),
		googleai.WithDefaultModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("creating googleai client: %w", err)
	}

	return &GoogleAIGenerator{
		llm: llm,
		prompt: prompts.NewPromptTemplate(answerTemplate, []string{
			"context", "question",
		}),
		temperature: cfg.Temperature,
	}, nil
}

// Generate renders the grounded-answer prompt and calls the model.
func (g *GoogleAIGenerator) Generate(ctx context.Context, question, docContext string) (string, error) {
	prompt, err := g.prompt.Format(map[string]any{
		"context":  docContext,
		"question": question,
	})
	if err != nil {
		return "", fmt.Errorf("formatting prompt: %w", err)
	}

	answer, err := llms.GenerateFromSinglePrompt(ctx, g.llm, prompt,
		llms.WithTemperature(g.temperature),
	)
	if err != nil {
		return "", fmt.Errorf("calling model: %w", err)
	}
	return answer, nil
}

var _ Generator = (*GoogleAIGenerator)(nil)
