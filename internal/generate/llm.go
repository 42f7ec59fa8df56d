package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kalambet/specwright/internal/contract"
)

const llmConfidence = 0.85

// LLM generates tests through an OpenAI-compatible chat endpoint. The model
// is asked for strict JSON; any transport or parse failure degrades to the
// fallback engine so generation never depends on the LLM being well-behaved.
type LLM struct {
	baseURL    string
	model      string
	httpClient *http.Client
	fallback   contract.GenerationEngine
}

// NewLLM returns an LLM engine. fallback must not be nil.
func NewLLM(baseURL, model string, fallback contract.GenerationEngine) *LLM {
	return &LLM{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		fallback:   fallback,
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// generatedPayload is the strict JSON shape the model must return.
type generatedPayload struct {
	TestID string          `json:"testId"`
	Steps  []contract.Step `json:"steps"`
}

// Generate implements contract.GenerationEngine.
func (g *LLM) Generate(ctx context.Context, jobID string, model contract.SemanticModel) (contract.GeneratedTest, error) {
	payload, err := g.complete(ctx, jobID, model)
	if err != nil {
		return g.fallback.Generate(ctx, jobID, model)
	}

	testID := payload.TestID
	if testID == "" {
		testID = "t_1"
	}
	return contract.GeneratedTest{
		TestID:     testID,
		JobID:      jobID,
		Steps:      payload.Steps,
		Confidence: llmConfidence,
		Format:     FormatPlaywrightJSON,
	}, nil
}

func (g *LLM) complete(ctx context.Context, jobID string, model contract.SemanticModel) (generatedPayload, error) {
	modelJSON, err := json.Marshal(model)
	if err != nil {
		return generatedPayload{}, fmt.Errorf("marshalling semantic model: %w", err)
	}

	prompt := fmt.Sprintf(
		"Generate ONE happy-path test for job %s over this semantic model. "+
			"Read-only actions only: goto, fill, click, expectText. "+
			"Respond with JSON {\"testId\": string, \"steps\": [...]} and nothing else.\n%s",
		jobID, modelJSON,
	)

	body, err := json.Marshal(chatRequest{
		Model: g.model,
		Messages: []chatMessage{
			{Role: "system", Content: "Return ONLY valid JSON. No markdown. No extra keys."},
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return generatedPayload{}, fmt.Errorf("marshalling chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return generatedPayload{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return generatedPayload{}, fmt.Errorf("requesting completion: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return generatedPayload{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var chat chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return generatedPayload{}, fmt.Errorf("decoding chat response: %w", err)
	}
	if len(chat.Choices) == 0 {
		return generatedPayload{}, fmt.Errorf("empty completion")
	}

	var out generatedPayload
	if err := json.Unmarshal([]byte(strings.TrimSpace(chat.Choices[0].Message.Content)), &out); err != nil {
		return generatedPayload{}, fmt.Errorf("parsing generated test: %w", err)
	}
	if len(out.Steps) == 0 {
		return generatedPayload{}, fmt.Errorf("generated test has no steps")
	}
	return out, nil
}
