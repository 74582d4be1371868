package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ImageProvider generates an image from reference images and a prompt.
// The engine treats every backing service uniformly through this shape.
type ImageProvider interface {
	GenerateImage(ctx context.Context, images []string, prompt string, cfg ModelConfig) (string, error)
}

// TextProvider generates text from a prompt and optional images.
type TextProvider interface {
	GenerateText(ctx context.Context, prompt string, images []string, cfg ModelConfig) (string, error)
}

const (
	defaultImageModel = "gemini-2.5-flash-image-preview"
	defaultTextModel  = "gpt-4o-mini"
)

// GeminiClient calls the Gemini generateContent API for image generation.
type GeminiClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewGeminiClient returns a client with a 3-minute request timeout, the
// upper bound for a single image generation.
func NewGeminiClient(apiKey string) *GeminiClient {
	return &GeminiClient{
		apiKey:     apiKey,
		baseURL:    "https://generativelanguage.googleapis.com/v1beta",
		httpClient: &http.Client{Timeout: 3 * time.Minute},
	}
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiRequest struct {
	Contents []struct {
		Parts []geminiPart `json:"parts"`
	} `json:"contents"`
}

// geminiResponse is the relevant subset of the generateContent response.
type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// GenerateImage sends the prompt plus reference images and returns the
// first generated image as a data URL.
func (c *GeminiClient) GenerateImage(ctx context.Context, images []string, prompt string, cfg ModelConfig) (string, error) {
	model := cfg.Model
	if model == "" {
		model = defaultImageModel
	}

	parts := []geminiPart{{Text: prompt}}
	for _, img := range images {
		mime, data, err := splitDataURL(img)
		if err != nil {
			return "", fmt.Errorf("encode reference image: %w", err)
		}
		parts = append(parts, geminiPart{InlineData: &geminiInlineData{MimeType: mime, Data: data}})
	}

	var reqBody geminiRequest
	reqBody.Contents = append(reqBody.Contents, struct {
		Parts []geminiPart `json:"parts"`
	}{Parts: parts})

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, model, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("gemini returned status %d", resp.StatusCode)
	}

	var result geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode gemini response: %w", err)
	}

	for _, cand := range result.Candidates {
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil && part.InlineData.Data != "" {
				return "data:" + part.InlineData.MimeType + ";base64," + part.InlineData.Data, nil
			}
		}
	}
	return "", fmt.Errorf("gemini response contained no image")
}

// OpenAIClient calls an OpenAI-compatible chat completions API for text
// generation.
type OpenAIClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewOpenAIClient returns a client with a 60-second request timeout.
func NewOpenAIClient(apiKey string) *OpenAIClient {
	return &OpenAIClient{
		apiKey:     apiKey,
		baseURL:    "https://api.openai.com/v1",
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

type chatContentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL *struct {
		URL string `json:"url"`
	} `json:"image_url,omitempty"`
}

type chatMessage struct {
	Role    string            `json:"role"`
	Content []chatContentPart `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
}

// chatResponse is the relevant subset of the chat completions response.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// GenerateText sends the prompt and optional images and returns the model's
// reply.
func (c *OpenAIClient) GenerateText(ctx context.Context, prompt string, images []string, cfg ModelConfig) (string, error) {
	model := cfg.Model
	if model == "" {
		model = defaultTextModel
	}

	content := []chatContentPart{{Type: "text", Text: prompt}}
	for _, img := range images {
		part := chatContentPart{Type: "image_url"}
		part.ImageURL = &struct {
			URL string `json:"url"`
		}{URL: img}
		content = append(content, part)
	}

	payload, err := json.Marshal(chatRequest{
		Model:       model,
		Messages:    []chatMessage{{Role: "user", Content: content}},
		Temperature: cfg.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("chat API returned status %d", resp.StatusCode)
	}

	var result chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("chat response contained no choices")
	}
	return result.Choices[0].Message.Content, nil
}

// splitDataURL separates a data URL into its mime type and base64 payload.
func splitDataURL(dataURL string) (mime, data string, err error) {
	rest, ok := strings.CutPrefix(dataURL, "data:")
	if !ok {
		return "", "", fmt.Errorf("not a data URL")
	}
	meta, data, ok := strings.Cut(rest, ",")
	if !ok {
		return "", "", fmt.Errorf("malformed data URL")
	}
	mime, _, _ = strings.Cut(meta, ";")
	if mime == "" {
		mime = "image/png"
	}
	return mime, data, nil
}
