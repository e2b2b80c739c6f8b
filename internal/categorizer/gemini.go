package categorizer

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"fjacquet/invoice-import/internal/logging"
)

// GeminiSuggester implements Suggester using the Google Gemini API. It is
// optional; when the AI configuration is disabled the engine simply records
// no suggestions for unmatched merchants.
type GeminiSuggester struct {
	client *genai.Client
	model  *genai.GenerativeModel
	logger logging.Logger
}

// NewGeminiSuggester creates a suggester backed by the given API key and
// model name.
func NewGeminiSuggester(ctx context.Context, apiKey, modelName string, logger logging.Logger) (*GeminiSuggester, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key not set")
	}
	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}
	if logger == nil {
		logger = logging.NewLogrusAdapter("info", "text")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiSuggester{
		client: client,
		model:  client.GenerativeModel(modelName),
		logger: logger,
	}, nil
}

// Suggest asks Gemini for a category for the merchant description.
func (g *GeminiSuggester) Suggest(ctx context.Context, description string) (string, error) {
	prompt := fmt.Sprintf(`Suggest a spending category for the following credit card statement line:
Description: %s

Respond in this format:
Category: [Category Name]`, description)

	resp, err := g.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("Gemini API error: %w", err)
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no response from Gemini API")
	}

	responseText := fmt.Sprintf("%v", resp.Candidates[0].Content.Parts[0])
	category := extractCategoryFromResponse(responseText)

	g.logger.Debug("Gemini suggested category",
		logging.Field{Key: "description", Value: description},
		logging.Field{Key: logging.FieldCategory, Value: category})
	return category, nil
}

// Close releases the underlying API client.
func (g *GeminiSuggester) Close() error {
	return g.client.Close()
}

// extractCategoryFromResponse parses the "Category: X" line of the model
// response; absent that, the first non-empty line is used.
func extractCategoryFromResponse(response string) string {
	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "Category:") {
			return strings.TrimSpace(strings.TrimPrefix(line, "Category:"))
		}
	}
	for _, line := range strings.Split(response, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}
