package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/anatolykoptev/go-kit/llm"
	"google.golang.org/genai"
)

// transcribePrompt asks for a verbatim transcript only.
const transcribePrompt = `Transcribe this audio verbatim.
Output only the spoken words as plain text.
Do not add commentary, headings, timestamps, speaker labels or summaries.`

// fileActiveTimeout bounds how long an uploaded file may stay in PROCESSING.
const fileActiveTimeout = 2 * time.Minute

// GeminiModel issues generation calls with a caller-chosen API key.
// Text prompts go through the OpenAI-compatible endpoint, audio through the Files API.
type GeminiModel struct {
	base            string
	model           string
	transcribeModel string
	transcribeBase  string
	temperature     float64
	maxTokens       int
	httpClient      *http.Client

	mu      sync.Mutex
	clients map[string]*llm.Client
}

// NewGeminiModel builds a model client from the engine configuration.
func NewGeminiModel(c Config) *GeminiModel {
	return &GeminiModel{
		base:            c.LLMAPIBase,
		model:           c.LLMModel,
		transcribeModel: c.TranscribeModel,
		transcribeBase:  c.TranscribeBase,
		temperature:     c.LLMTemperature,
		maxTokens:       c.LLMMaxTokens,
		httpClient:      &http.Client{Timeout: 120 * time.Second},
		clients:         make(map[string]*llm.Client),
	}
}

func (m *GeminiModel) client(apiKey string) *llm.Client {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.clients[apiKey]; ok {
		return c
	}
	c := llm.NewClient(m.base, apiKey, m.model,
		llm.WithMaxTokens(m.maxTokens),
		llm.WithTemperature(m.temperature),
		llm.WithHTTPClient(m.httpClient),
	)
	m.clients[apiKey] = c
	return c
}

// Generate sends a single text prompt and returns the raw response text.
func (m *GeminiModel) Generate(ctx context.Context, apiKey, prompt string) (string, error) {
	IncrModelCalls()
	resp, err := m.client(apiKey).Complete(ctx, "", prompt)
	if err != nil {
		IncrModelErrors()
		return "", ClassifyModelError(err, time.Now())
	}
	return strings.TrimSpace(resp), nil
}

// Transcribe uploads a local audio file, asks for a verbatim transcript and deletes
// the remote copy afterwards, whatever the outcome. An empty transcript is not an
// error here: the call still counts against the key.
func (m *GeminiModel) Transcribe(ctx context.Context, apiKey, audioPath string) (string, error) {
	IncrModelCalls()
	IncrTranscriptions()

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  m.httpClient,
		HTTPOptions: genai.HTTPOptions{BaseURL: m.transcribeBase},
	})
	if err != nil {
		IncrModelErrors()
		return "", NewError(ReasonAPIError, "transcription client unavailable", err)
	}

	file, err := client.Files.UploadFromPath(ctx, audioPath, &genai.UploadFileConfig{
		MIMEType: audioMIMEType(audioPath),
	})
	if err != nil {
		IncrModelErrors()
		return "", classifyGenAIError(fmt.Errorf("upload audio: %w", err))
	}
	defer func() {
		delCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
		defer cancel()
		if _, err := client.Files.Delete(delCtx, file.Name, nil); err != nil {
			slog.Warn("transcribe: remote file cleanup failed", slog.String("file", file.Name), slog.Any("error", err))
		}
	}()

	if err := waitFileActive(ctx, client, file); err != nil {
		IncrModelErrors()
		return "", classifyGenAIError(err)
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromURI(file.URI, file.MIMEType),
			genai.NewPartFromText(transcribePrompt),
		}, genai.RoleUser),
	}
	resp, err := client.Models.GenerateContent(ctx, m.transcribeModel, contents, nil)
	if err != nil {
		IncrModelErrors()
		return "", classifyGenAIError(fmt.Errorf("transcribe: %w", err))
	}
	return strings.TrimSpace(resp.Text()), nil
}

// waitFileActive polls an uploaded file until the service finishes processing it.
func waitFileActive(ctx context.Context, client *genai.Client, file *genai.File) error {
	deadline := time.Now().Add(fileActiveTimeout)
	for file.State == genai.FileStateProcessing {
		if time.Now().After(deadline) {
			return fmt.Errorf("file %s still processing after %s", file.Name, fileActiveTimeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
		f, err := client.Files.Get(ctx, file.Name, nil)
		if err != nil {
			return fmt.Errorf("poll file: %w", err)
		}
		file = f
	}
	if file.State == genai.FileStateFailed {
		return fmt.Errorf("file %s failed processing", file.Name)
	}
	return nil
}

func classifyGenAIError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests {
		return ClassifyModelError(fmt.Errorf("429 %s: %w", apiErr.Status, err), time.Now())
	}
	return ClassifyModelError(err, time.Now())
}

func audioMIMEType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return "audio/mpeg"
	case ".m4a":
		return "audio/mp4"
	case ".webm":
		return "audio/webm"
	case ".opus", ".ogg":
		return "audio/ogg"
	case ".wav":
		return "audio/wav"
	}
	if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
		return t
	}
	return "audio/mpeg"
}
