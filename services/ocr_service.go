package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ticketdesk/orderbot/config"
	"github.com/ticketdesk/orderbot/logger"
	"github.com/ticketdesk/orderbot/pkg/openai"
	"github.com/ticketdesk/orderbot/types"
	"google.golang.org/genai"
)

// ErrNoText is returned when the vision service recognised nothing.
var ErrNoText = errors.New("no text recognised")

// OCRInstruction is sent with every image.
const OCRInstruction = "Extract the following information from the image and return it as a JSON object " +
	"with no leading or trailing text: Event Name, Event Date (MM/DD/YYYY format), Venue, " +
	"Location (City, State), Quantity of tickets purchased, Total price in $, and any account email " +
	"or order number that is visible. Do not include any other text in your response."

const ocrMaxTokens = 300

func readImage(img *types.LocalAttachment) ([]byte, string, error) {
	if img == nil {
		return nil, "", fmt.Errorf("no image")
	}
	data, err := os.ReadFile(img.Path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read image: %w", err)
	}
	mime := img.MIME
	if mime == "" {
		mime = "image/jpeg"
	}
	return data, mime, nil
}

func recognised(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrNoText
	}
	return text, nil
}

// OpenAIRecognizer reads images through an OpenAI-compatible vision model.
type OpenAIRecognizer struct {
	client  ChatCompleter
	model   string
	timeout time.Duration
}

func NewOpenAIRecognizer(client ChatCompleter, cfg config.OCRConfig) *OpenAIRecognizer {
	return &OpenAIRecognizer{
		client:  client,
		model:   cfg.Model,
		timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
	}
}

func (r *OpenAIRecognizer) Recognize(ctx context.Context, img *types.LocalAttachment) (string, error) {
	data, mime, err := readImage(img)
	if err != nil {
		return "", err
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	text, err := r.client.Complete(ctx, openai.ChatRequest{
		Model:     r.model,
		MaxTokens: ocrMaxTokens,
		Messages:  []openai.Message{openai.VisionMessage(OCRInstruction, mime, data)},
	})
	if err != nil {
		return "", fmt.Errorf("vision request failed: %w", err)
	}
	return recognised(text)
}

// ContentGenerator is satisfied by genai's Models service.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiRecognizer reads images through a Gemini model.
type GeminiRecognizer struct {
	models  ContentGenerator
	model   string
	timeout time.Duration
}

// NewGeminiRecognizer creates the genai client for cfg.APIKey.
func NewGeminiRecognizer(ctx context.Context, cfg config.OCRConfig) (*GeminiRecognizer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return NewGeminiRecognizerWithModels(client.Models, cfg), nil
}

func NewGeminiRecognizerWithModels(models ContentGenerator, cfg config.OCRConfig) *GeminiRecognizer {
	model := cfg.Model
	if model == "" || strings.HasPrefix(model, "gpt-") {
		model = "gemini-2.5-flash"
	}
	return &GeminiRecognizer{
		models:  models,
		model:   model,
		timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
	}
}

func (r *GeminiRecognizer) Recognize(ctx context.Context, img *types.LocalAttachment) (string, error) {
	data, mime, err := readImage(img)
	if err != nil {
		return "", err
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(OCRInstruction),
			genai.NewPartFromBytes(data, mime),
		}, genai.RoleUser),
	}

	resp, err := r.models.GenerateContent(ctx, r.model, contents, &genai.GenerateContentConfig{
		MaxOutputTokens: ocrMaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("GenAI generate failed: %w", err)
	}
	if resp == nil {
		return "", ErrNoText
	}
	return recognised(resp.Text())
}

// Recognizer reads the text of one downloaded image.
type Recognizer interface {
	Recognize(ctx context.Context, img *types.LocalAttachment) (string, error)
}

// NewRecognizer picks the vision backend named by cfg.Provider.
func NewRecognizer(ctx context.Context, cfg config.OCRConfig) (Recognizer, error) {
	switch cfg.Provider {
	case "gemini":
		r, err := NewGeminiRecognizer(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return r, nil
	case "openai", "":
		client := openai.NewClient(cfg.APIKey, openai.WithBaseURL(cfg.BaseURL))
		return NewOpenAIRecognizer(client, cfg), nil
	default:
		logger.GetLogger().Errorw("Unknown OCR provider", "provider", cfg.Provider)
		return nil, fmt.Errorf("unknown OCR provider %q", cfg.Provider)
	}
}
