package solver

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// CaptchaPrompt asks the model for the characters only.
const CaptchaPrompt = "Read the text in this image. Return only the characters, without spaces. Do not write anything else."

type contentGenerator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// Gemini solves image CAPTCHAs with a Gemini vision model.
type Gemini struct {
	client *genai.Client
	model  contentGenerator
	name   string
}

// NewGemini creates a Gemini solver for the given model name.
func NewGemini(ctx context.Context, apiKey, modelName string) (*Gemini, error) {
	if apiKey == "" {
		return nil, errors.New("gemini API key is required")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(0)

	return &Gemini{client: client, model: model, name: modelName}, nil
}

// Name returns "gemini".
func (g *Gemini) Name() string {
	return "gemini"
}

// Solve sends the image with CaptchaPrompt and returns the normalized answer.
func (g *Gemini) Solve(ctx context.Context, image []byte) (string, error) {
	if len(image) == 0 {
		return "", ErrEmptyImage
	}

	resp, err := g.model.GenerateContent(ctx, genai.Text(CaptchaPrompt), genai.ImageData("png", image))
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &SolverError{Solver: g.Name(), Message: "generate content failed", Cause: err}
	}

	return Normalize(responseText(resp)), nil
}

// Close releases the underlying client.
func (g *Gemini) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	cand := resp.Candidates[0]
	if cand.Content == nil {
		return ""
	}
	var out string
	for _, part := range cand.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			out += string(text)
		}
	}
	return out
}
