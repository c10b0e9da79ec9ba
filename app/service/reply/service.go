package reply

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"souqlive/app/config"

	_ "embed"

	"github.com/samber/do"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

//go:embed prompt_template.txt
var promptTemplate string

const (
	maxReasonDuration = 30 * time.Second
	maxReplyLength    = 500
)

// Responder is the black-box downstream agent: fused context in, reply
// plus routing suggestion out.
type Responder interface {
	Respond(ctx context.Context, req Request) (*AgentReply, error)
}

var _ Responder = (*Service)(nil)

type Service struct {
	cfg *config.Config
	llm llms.Model
}

func New(di *do.Injector) (*Service, error) {
	cfg := do.MustInvoke[*config.Config](di)

	llm, err := openai.New(
		openai.WithToken(cfg.OpenAI.Reply.Token),
		openai.WithBaseURL(cfg.OpenAI.Reply.BaseURL),
		openai.WithModel(cfg.OpenAI.Reply.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm client: %w", err)
	}

	return &Service{
		cfg: cfg,
		llm: llm,
	}, nil
}

func (s *Service) Respond(ctx context.Context, req Request) (*AgentReply, error) {
	templateValues := map[string]any{
		"domain":  req.ActiveDomain,
		"intent":  req.CurrentIntent,
		"context": req.FusedContext,
		"message": req.Message,
	}

	prompt := promptTemplate
	for key, value := range templateValues {
		prompt = strings.ReplaceAll(prompt, "{"+key+"}", fmt.Sprint(value))
	}

	ctx, cancel := context.WithTimeout(ctx, maxReasonDuration)
	defer cancel()

	completion, err := s.llm.GenerateContent(ctx,
		[]llms.MessageContent{
			llms.TextParts(llms.ChatMessageTypeHuman, prompt),
		},
		llms.WithMaxTokens(800),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat completion: %w", err)
	}

	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("no chat completion found")
	}

	result := completion.Choices[0].Content
	result = strings.Trim(result, "`")
	result = strings.TrimSpace(result)
	result = strings.TrimPrefix(result, "json")
	result = strings.TrimSpace(result)

	var response AgentReply
	if err = json.Unmarshal([]byte(result), &response); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	response.Response = strings.TrimSpace(response.Response)
	if len(response.Response) > maxReplyLength {
		response.Response = response.Response[:maxReplyLength]
	}

	return &response, nil
}
