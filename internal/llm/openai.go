package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAIClient calls the OpenAI Chat Completions API.
type OpenAIClient struct {
	model  openai.ChatModel
	client *openai.Client
}

const defaultChatTemperature = 0.2

// NewOpenAIClient builds a client with defaults against api.openai.com.
// Extra options (base URL, retries) are passed through to the SDK.
func NewOpenAIClient(apiKey string, model openai.ChatModel, opts ...option.RequestOption) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api key required")
	}
	if model == "" {
		model = openai.ChatModelGPT4oMini
	}
	cli := openai.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)
	return &OpenAIClient{
		model:  model,
		client: &cli,
	}, nil
}

// Complete sends one system and one user message and returns the reply text.
func (c *OpenAIClient) Complete(ctx context.Context, system, prompt string) (string, error) {
	if c == nil || c.client == nil {
		return "", &CompletionError{Kind: KindTransport, Err: errors.New("nil openai client")}
	}
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       c.model,
		Messages:    buildMessages(system, prompt),
		Temperature: openai.Float(defaultChatTemperature),
	})
	if err != nil {
		return "", classify(ctx, err)
	}
	return parseCompletion(resp)
}

func classify(ctx context.Context, err error) *CompletionError {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &CompletionError{Kind: KindCanceled, Err: err}
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return &CompletionError{Kind: KindAuth, Err: err}
		}
	}
	return &CompletionError{Kind: KindTransport, Err: err}
}

// parseCompletion pulls the reply text out of a response.
func parseCompletion(resp *openai.ChatCompletion) (string, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return "", &CompletionError{Kind: KindMalformed, Err: errors.New("openai: no choices returned")}
	}
	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", &CompletionError{Kind: KindMalformed, Err: fmt.Errorf("openai: empty message (finish reason %q)", resp.Choices[0].FinishReason)}
	}
	return content, nil
}

func buildMessages(system, user string) []openai.ChatCompletionMessageParamUnion {
	return []openai.ChatCompletionMessageParamUnion{
		{
			OfSystem: &openai.ChatCompletionSystemMessageParam{
				Content: openai.ChatCompletionSystemMessageParamContentUnion{
					OfString: openai.String(system),
				},
			},
		},
		{
			OfUser: &openai.ChatCompletionUserMessageParam{
				Content: openai.ChatCompletionUserMessageParamContentUnion{
					OfString: openai.String(user),
				},
			},
		},
	}
}
