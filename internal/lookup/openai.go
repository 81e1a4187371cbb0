package lookup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"
)

const defaultOpenAIBaseURL = "https://api.openai.com"

const nutrientSystemPrompt = `You are a nutrition assistant. The user sends a food name and a mass in grams.
Return a JSON object with:
- "calories" (integer, total for the full mass)
- "carbs_g" (number, total for the full mass)
- "fat_g" (number, total for the full mass)
- "protein_g" (number, total for the full mass)

Only return {"error": "unrecognized"} if the input is not food at all.
Return only valid JSON, no explanation.`

// OpenAIEstimator asks a chat completions model to estimate macros. It is the
// fallback provider when no Edamam credentials are available.
type OpenAIEstimator struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model          string          `json:"model"`
	Messages       []openAIMessage `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat map[string]any  `json:"response_format"`
}

func (e *OpenAIEstimator) LookupNutrients(ctx context.Context, name string, grams float64) (Nutrients, error) {
	content, err := e.complete(ctx, []openAIMessage{
		{Role: "system", Content: nutrientSystemPrompt},
		{Role: "user", Content: ingredientLine(name, grams)},
	})
	if err != nil {
		return Nutrients{}, fmt.Errorf("%w: %w", ErrLookupFailure, err)
	}

	var estimate struct {
		Error    string   `json:"error"`
		Calories *float64 `json:"calories"`
		CarbsG   float64  `json:"carbs_g"`
		FatG     float64  `json:"fat_g"`
		ProteinG float64  `json:"protein_g"`
	}
	if err := json.Unmarshal([]byte(content), &estimate); err != nil {
		return Nutrients{}, fmt.Errorf("%w: parse estimate: %w", ErrLookupFailure, err)
	}
	if estimate.Error != "" || estimate.Calories == nil {
		return Nutrients{}, fmt.Errorf("%w: model did not recognize %q", ErrLookupFailure, name)
	}

	out := Nutrients{
		Calories: int(math.Round(*estimate.Calories)),
		CarbsG:   estimate.CarbsG,
		FatG:     estimate.FatG,
		ProteinG: estimate.ProteinG,
	}
	if !out.valid() {
		return Nutrients{}, fmt.Errorf("%w: model returned invalid values for %q", ErrLookupFailure, name)
	}
	return out, nil
}

// complete sends a chat completions request and returns the content of the
// first choice.
func (e *OpenAIEstimator) complete(ctx context.Context, messages []openAIMessage) (string, error) {
	if e.APIKey == "" {
		return "", fmt.Errorf("OPENAI_API_KEY not set")
	}
	baseURL := strings.TrimRight(e.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	model := e.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	httpClient := e.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}

	bodyBytes, err := json.Marshal(openAIRequest{
		Model:          model,
		Messages:       messages,
		Temperature:    0,
		ResponseFormat: map[string]any{"type": "json_object"},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+e.APIKey)

	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("openai returned status %d: %s", resp.StatusCode, string(respBytes))
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(respBytes, &result); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	return result.Choices[0].Message.Content, nil
}
