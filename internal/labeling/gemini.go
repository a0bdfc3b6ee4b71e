package labeling

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
)

// DefaultGeminiModel is used when no Gemini model is configured.
const DefaultGeminiModel = "gemini-1.5-flash"

// geminiClient serves chat-completion requests with a Gemini model.
type geminiClient struct {
	client *genai.Client
}

// NewGemini returns a labeler backed by Gemini.
func NewGemini(client *genai.Client, opts Options, log logrus.FieldLogger) *ChatLabeler {
	if opts.Model == "" {
		opts.Model = DefaultGeminiModel
	}
	return NewChatLabeler(&geminiClient{client: client}, opts, log)
}

func (c *geminiClient) CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	if len(request.Messages) == 0 {
		return openai.ChatCompletionResponse{}, errors.New("empty chat request")
	}

	model := c.client.GenerativeModel(request.Model)
	model.SetTemperature(request.Temperature)
	model.SetCandidateCount(1)
	model.SetTopK(1)
	model.SetTopP(0.1)
	if request.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(request.MaxTokens))
	}

	chat := model.StartChat()
	history, err := toGenaiHistory(request.Messages[:len(request.Messages)-1])
	if err != nil {
		return openai.ChatCompletionResponse{}, err
	}
	chat.History = history

	parts, err := toGenaiParts(request.Messages[len(request.Messages)-1])
	if err != nil {
		return openai.ChatCompletionResponse{}, err
	}

	resp, err := chat.SendMessage(ctx, parts...)
	if err != nil {
		return openai.ChatCompletionResponse{}, fmt.Errorf("gemini request failed: %w", err)
	}
	text, err := responseText(resp)
	if err != nil {
		return openai.ChatCompletionResponse{}, err
	}

	return openai.ChatCompletionResponse{
		Model: request.Model,
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: text}},
		},
	}, nil
}

// toGenaiHistory converts earlier turns. Gemini has no system role, so system
// messages become prefixed user turns.
func toGenaiHistory(messages []openai.ChatCompletionMessage) ([]*genai.Content, error) {
	history := []*genai.Content{}
	for _, message := range messages {
		if message.Role == openai.ChatMessageRoleSystem {
			history = append(history, &genai.Content{
				Parts: []genai.Part{genai.Text("System: " + message.Content)},
				Role:  "user",
			})
			continue
		}
		parts, err := toGenaiParts(message)
		if err != nil {
			return nil, err
		}
		role := "user"
		if message.Role == openai.ChatMessageRoleAssistant {
			role = "model"
		}
		history = append(history, &genai.Content{Parts: parts, Role: role})
	}
	return history, nil
}

func toGenaiParts(message openai.ChatCompletionMessage) ([]genai.Part, error) {
	var parts []genai.Part
	for _, content := range message.MultiContent {
		if content.Type == openai.ChatMessagePartTypeImageURL && content.ImageURL != nil {
			data, mimeType, err := decodeDataURI(content.ImageURL.URL)
			if err != nil {
				return nil, err
			}
			parts = append(parts, genai.Blob{MIMEType: mimeType, Data: data})
			continue
		}
		parts = append(parts, genai.Text(content.Text))
	}
	if len(message.MultiContent) == 0 && message.Content != "" {
		parts = append(parts, genai.Text(message.Content))
	}
	return parts, nil
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", ErrNoResponse
	}
	cand := resp.Candidates[0]
	if cand.FinishReason != genai.FinishReasonStop && cand.FinishReason != genai.FinishReasonUnspecified {
		return "", fmt.Errorf("%w: finish reason %v", ErrNoResponse, cand.FinishReason)
	}
	if cand.Content == nil {
		return "", ErrNoResponse
	}
	var sb strings.Builder
	for _, p := range cand.Content.Parts {
		if t, ok := p.(genai.Text); ok {
			sb.WriteString(string(t))
		}
	}
	if sb.Len() == 0 {
		return "", ErrNoResponse
	}
	return sb.String(), nil
}

// decodeDataURI splits "data:<mime>;base64,<payload>".
func decodeDataURI(uri string) ([]byte, string, error) {
	if !strings.HasPrefix(uri, "data:") {
		return nil, "", errors.New("invalid data URI format")
	}
	header, payload, ok := strings.Cut(uri, ",")
	if !ok {
		return nil, "", errors.New("invalid data URI format")
	}
	mimeType := strings.TrimSuffix(strings.TrimPrefix(header, "data:"), ";base64")
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("invalid data URI payload: %w", err)
	}
	return data, mimeType, nil
}
