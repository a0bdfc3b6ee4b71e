// Package labeling asks a vision language model to name the numbered boxes
// drawn on a form and to summarise what the form is for.
//
// Both backends speak the OpenAI chat-completion shape: OpenAI natively and
// Gemini through an adapter, so one ChatLabeler drives either.
package labeling

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"

	"github.com/ironsheep/form-annotator-mcp/internal/fusion"
	"github.com/ironsheep/form-annotator-mcp/internal/layout"
)

var (
	// ErrNoResponse means the model returned no usable choice.
	ErrNoResponse = errors.New("no response from model")

	// ErrMalformedResponse means the reply was not the expected JSON object.
	ErrMalformedResponse = errors.New("malformed labeling response")
)

// Result is the model's reading of a form.
type Result struct {
	Explanation string         `json:"explanation"`
	Labels      []fusion.Label `json:"fields"`
}

// Labeler names the numbered boxes on an overlay image.
type Labeler interface {
	Label(ctx context.Context, overlayPNG []byte, dir layout.Direction) (*Result, error)
}

// ChatClient is the chat-completion call shared by the OpenAI client and the
// Gemini adapter.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Options tunes a ChatLabeler.
type Options struct {
	Model     string
	MaxTokens int

	// Retries is how many times a failed or unparseable reply is retried.
	Retries uint64
	Backoff time.Duration
}

// ChatLabeler implements Labeler over any ChatClient.
type ChatLabeler struct {
	client ChatClient
	opts   Options
	log    logrus.FieldLogger
}

// NewChatLabeler returns a Labeler that sends the overlay image and prompt
// through client.
func NewChatLabeler(client ChatClient, opts Options, log logrus.FieldLogger) *ChatLabeler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = 4000
	}
	return &ChatLabeler{client: client, opts: opts, log: log}
}

// Label sends one request per attempt and parses the reply. Transport errors
// and malformed replies are both retried.
func (l *ChatLabeler) Label(ctx context.Context, overlayPNG []byte, dir layout.Direction) (*Result, error) {
	request := l.request(overlayPNG, dir)
	attempt := 0

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(l.opts.Backoff), l.opts.Retries),
		ctx,
	)
	result, err := backoff.RetryWithData(func() (*Result, error) {
		attempt++
		response, err := l.client.CreateChatCompletion(ctx, request)
		if err != nil {
			l.log.WithFields(logrus.Fields{"attempt": attempt, "model": l.opts.Model}).
				WithError(err).Warn("labeling request failed")
			return nil, err
		}
		content, err := completionContent(response)
		if err != nil {
			return nil, err
		}
		result, err := ParseResponse(content)
		if err != nil {
			l.log.WithField("attempt", attempt).WithError(err).Warn("labeling reply rejected")
			return nil, err
		}
		return result, nil
	}, policy)
	if err != nil {
		return nil, fmt.Errorf("labeling failed after %d attempts: %w", attempt, err)
	}

	l.log.WithFields(logrus.Fields{"labels": len(result.Labels), "attempts": attempt}).Debug("form labeled")
	return result, nil
}

func (l *ChatLabeler) request(overlayPNG []byte, dir layout.Direction) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model:       l.opts.Model,
		Temperature: 0,
		MaxTokens:   l.opts.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: Prompt(dir)},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    pngDataURI(overlayPNG),
							Detail: openai.ImageURLDetailHigh,
						},
					},
				},
			},
		},
	}
}

func completionContent(response openai.ChatCompletionResponse) (string, error) {
	if len(response.Choices) == 0 {
		return "", ErrNoResponse
	}
	return response.Choices[0].Message.Content, nil
}

func pngDataURI(data []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(data)
}

// DefaultOpenAIModel is used when no OpenAI model is configured.
const DefaultOpenAIModel = "gpt-4o"

// NewOpenAI returns a labeler backed by the OpenAI chat API.
func NewOpenAI(client *openai.Client, opts Options, log logrus.FieldLogger) *ChatLabeler {
	if opts.Model == "" {
		opts.Model = DefaultOpenAIModel
	}
	return NewChatLabeler(client, opts, log)
}
