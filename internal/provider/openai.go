package provider

import (
	"context"
	"errors"
	"strings"

	openai "github.com/openai/openai-go"
	ooption "github.com/openai/openai-go/option"
	oresponses "github.com/openai/openai-go/responses"
	oshared "github.com/openai/openai-go/shared"
)

const defaultMaxOutputTokens = 4096

// openAIClient serves the openai, openai_compatible, and mistral provider
// types through the Responses API.
type openAIClient struct {
	client openai.Client
}

func newOpenAIClient(baseURL string, apiKey string) *openAIClient {
	opts := []ooption.RequestOption{ooption.WithAPIKey(strings.TrimSpace(apiKey))}
	if strings.TrimSpace(baseURL) != "" {
		opts = append(opts, ooption.WithBaseURL(strings.TrimSpace(baseURL)))
	}
	return &openAIClient{client: openai.NewClient(opts...)}
}

func (c *openAIClient) StreamChat(ctx context.Context, req ChatRequest, onDelta func(string)) (string, error) {
	if c == nil {
		return "", errors.New("nil client")
	}
	if strings.TrimSpace(req.Model) == "" {
		return "", errors.New("missing model")
	}

	params := oresponses.ResponseNewParams{
		Model:           oshared.ResponsesModel(strings.TrimSpace(req.Model)),
		MaxOutputTokens: openai.Int(defaultMaxOutputTokens),
	}
	if req.MaxOutputTokens > 0 {
		params.MaxOutputTokens = openai.Int(req.MaxOutputTokens)
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}

	items := make(oresponses.ResponseInputParam, 0, len(req.Messages))
	instructions := ""
	for _, msg := range req.Messages {
		text := strings.TrimSpace(msg.Content)
		if text == "" {
			continue
		}
		switch msg.Role {
		case RoleSystem:
			if instructions != "" {
				instructions += "\n\n"
			}
			instructions += text
		case RoleAssistant:
			items = append(items, oresponses.ResponseInputItemParamOfMessage(text, oresponses.EasyInputMessageRoleAssistant))
		default:
			items = append(items, oresponses.ResponseInputItemParamOfMessage(text, oresponses.EasyInputMessageRoleUser))
		}
	}
	if len(items) == 0 {
		return "", errors.New("empty conversation")
	}
	params.Input = oresponses.ResponseNewParamsInputUnion{OfInputItemList: items}
	if instructions != "" {
		params.Instructions = openai.String(instructions)
	}

	stream := c.client.Responses.NewStreaming(ctx, params)
	var buf strings.Builder
	for stream.Next() {
		event := stream.Current()
		if strings.TrimSpace(event.Type) != "response.output_text.delta" {
			continue
		}
		delta := event.Delta.OfString
		if delta == "" {
			continue
		}
		buf.WriteString(delta)
		if onDelta != nil {
			onDelta(delta)
		}
	}
	if err := stream.Err(); err != nil {
		return "", err
	}
	return buf.String(), nil
}
