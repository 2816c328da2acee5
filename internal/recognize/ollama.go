package recognize

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Ollama implements Recognizer using a locally hosted Ollama vision model.
// Vision models known to transcribe mixed Chinese/English screenshots
// reasonably well: qwen2-vl:7b, llava:1.6, llava:latest.
type Ollama struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllama creates a new Ollama recognizer instance.
func NewOllama(baseURL string, modelName string) (*Ollama, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if modelName == "" {
		modelName = "llava"
	}

	return &Ollama{
		baseURL: baseURL,
		model:   modelName,
		client: &http.Client{
			Timeout: 120 * time.Second, // vision models can be slow on CPU
		},
	}, nil
}

// OllamaFactory returns a Factory for Ollama-backed workers. The HTTP client
// is cheap, so each worker gets its own instance.
func OllamaFactory(baseURL, modelName string) Factory {
	return func() (Recognizer, error) {
		return NewOllama(baseURL, modelName)
	}
}

// ollamaChatRequest represents the request body for Ollama's chat API
type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Images   []string        `json:"images,omitempty"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ollamaChatResponse represents the response from Ollama's chat API
type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}

// Recognize transcribes the chunk image through the Ollama chat API.
func (o *Ollama) Recognize(ctx context.Context, image []byte, progress ProgressFunc) (string, error) {
	reqBody := ollamaChatRequest{
		Model:  o.model,
		Stream: false,
		Messages: []ollamaMessage{
			{
				Role:    "system",
				Content: "You are an expert at reading text in screenshots. You transcribe exactly what you see.",
			},
			{
				Role:    "user",
				Content: transcriptionPrompt,
			},
		},
		Images: []string{base64.StdEncoding.EncodeToString(image)},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/api/chat", o.baseURL)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling ollama API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("ollama API error (status %d): %s", resp.StatusCode, string(body))
	}

	var chatResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}

	if progress != nil {
		progress(1)
	}
	return stripCodeFences(chatResp.Message.Content), nil
}

// Close closes the Ollama recognizer (no-op for HTTP client)
func (o *Ollama) Close() error {
	return nil
}
