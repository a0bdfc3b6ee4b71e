package labeling

import (
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeDataURI(t *testing.T) {
	data, mime, err := decodeDataURI("data:image/png;base64,cG5n")
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), data)
	assert.Equal(t, "image/png", mime)

	for _, bad := range []string{"https://example.com/a.png", "data:image/png;base64", "data:image/png;base64,!!!"} {
		_, _, err := decodeDataURI(bad)
		assert.Error(t, err, bad)
	}
}

func TestToGenaiParts(t *testing.T) {
	parts, err := toGenaiParts(openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser,
		MultiContent: []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: "label the boxes"},
			{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: pngDataURI([]byte{1, 2, 3})}},
		},
	})
	require.NoError(t, err)
	require.Len(t, parts, 2)
	assert.Equal(t, genai.Text("label the boxes"), parts[0])
	assert.Equal(t, genai.Blob{MIMEType: "image/png", Data: []byte{1, 2, 3}}, parts[1])

	plain, err := toGenaiParts(openai.ChatCompletionMessage{Content: "hello"})
	require.NoError(t, err)
	assert.Equal(t, []genai.Part{genai.Text("hello")}, plain)
}

func TestToGenaiHistory(t *testing.T) {
	history, err := toGenaiHistory([]openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: "be brief"},
		{Role: openai.ChatMessageRoleUser, Content: "hi"},
		{Role: openai.ChatMessageRoleAssistant, Content: "hello"},
	})
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "user", history[0].Role)
	assert.Equal(t, genai.Text("System: be brief"), history[0].Parts[0])
	assert.Equal(t, "user", history[1].Role)
	assert.Equal(t, "model", history[2].Role)
}

func TestResponseText(t *testing.T) {
	ok := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		FinishReason: genai.FinishReasonStop,
		Content:      &genai.Content{Parts: []genai.Part{genai.Text(`{"explanation":`), genai.Text(` "x"}`)}},
	}}}
	text, err := responseText(ok)
	require.NoError(t, err)
	assert.Equal(t, `{"explanation": "x"}`, text)

	blocked := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonSafety}}}
	_, err = responseText(blocked)
	assert.ErrorIs(t, err, ErrNoResponse)

	_, err = responseText(&genai.GenerateContentResponse{})
	assert.ErrorIs(t, err, ErrNoResponse)
}
