package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"mojochat/internal/config"
	"mojochat/internal/metrics"
	"mojochat/internal/models"
)

type EventType string

const (
	EventText       EventType = "text"
	EventToolCall   EventType = "tool_call"
	EventToolResult EventType = "tool_result"
)

// Event is one increment of a streamed turn.
type Event struct {
	Type       EventType
	Text       string
	ToolCall   *models.ToolCall
	ToolResult *models.ToolResult
}

// EventFn receives events in order. Returning an error aborts the turn.
type EventFn func(Event) error

// Result is everything a finished turn produced.
type Result struct {
	Text        string
	ToolCalls   []models.ToolCall
	ToolResults []models.ToolResult
}

// ChatStreamer runs one conversational turn against the generation provider.
type ChatStreamer interface {
	StreamChat(ctx context.Context, chatID string, messages []models.Message, emit EventFn) (*Result, error)
}

type Service struct {
	model     model.ToolCallingChatModel
	tools     map[string]tool.InvokableTool
	logger    *zap.Logger
	persona   string
	maxRounds int
	now       func() time.Time
}

// roundSeparator joins the text of successive tool rounds.
const roundSeparator = "\n\n"

// NewChatModel builds the provider client selected by cfg.Provider.
func NewChatModel(ctx context.Context, cfg config.LLMConfig) (model.ToolCallingChatModel, error) {
	var (
		chatModel model.ToolCallingChatModel
		err       error
	)
	switch cfg.Provider {
	case "openai":
		chatModel, err = openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			APIKey:  cfg.APIKey,
		})
	case "gemini", "":
		client, cerr := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  cfg.APIKey,
			Backend: genai.BackendGeminiAPI,
		})
		if cerr != nil {
			return nil, fmt.Errorf("new gemini client: %w", cerr)
		}
		chatModel, err = gemini.NewChatModel(ctx, &gemini.Config{
			Client: client,
			Model:  cfg.Model,
		})
	case "claude":
		var baseURL *string
		if cfg.BaseURL != "" {
			baseURL = &cfg.BaseURL
		}
		maxTokens := cfg.MaxTokens
		if maxTokens <= 0 {
			maxTokens = 3000
		}
		chatModel, err = claude.NewChatModel(ctx, &claude.Config{
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			BaseURL:   baseURL,
			MaxTokens: maxTokens,
		})
	default:
		return nil, fmt.Errorf("invalid provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s chat model: %w", cfg.Provider, err)
	}
	return chatModel, nil
}

// NewService binds tools to chatModel and returns a streamer using the Mojo persona.
func NewService(ctx context.Context, chatModel model.ToolCallingChatModel, tools []tool.InvokableTool, logger *zap.Logger) (*Service, error) {
	if chatModel == nil {
		return nil, errors.New("chat model is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	byName := make(map[string]tool.InvokableTool, len(tools))
	infos := make([]*schema.ToolInfo, 0, len(tools))
	for _, t := range tools {
		info, err := t.Info(ctx)
		if err != nil {
			return nil, fmt.Errorf("tool info: %w", err)
		}
		byName[info.Name] = t
		infos = append(infos, info)
	}
	bound := chatModel
	if len(infos) > 0 {
		var err error
		bound, err = chatModel.WithTools(infos)
		if err != nil {
			return nil, fmt.Errorf("bind tools: %w", err)
		}
	}
	return &Service{
		model:     bound,
		tools:     byName,
		logger:    logger,
		persona:   mojoPersona,
		maxRounds: defaultMaxRounds,
		now:       time.Now,
	}, nil
}

// StreamChat sends the persona plus messages to the provider and streams the
// reply through emit. Tool calls requested by the model are executed in
// order and their results fed back before streaming resumes. The last round
// forbids tool use so the turn always ends on the model's answer.
func (s *Service) StreamChat(ctx context.Context, chatID string, messages []models.Message, emit EventFn) (*Result, error) {
	if emit == nil {
		emit = func(Event) error { return nil }
	}
	ctx = WithToolChat(ctx, chatID)
	conversation := s.convertMessages(messages)
	result := &Result{}
	var text strings.Builder

	for round := 0; round < s.maxRounds; round++ {
		roundEmit := emit
		if text.Len() > 0 {
			pending := true
			roundEmit = func(ev Event) error {
				if pending && ev.Type == EventText {
					pending = false
					ev.Text = roundSeparator + ev.Text
				}
				return emit(ev)
			}
		}
		final := round == s.maxRounds-1
		var opts []model.Option
		if final && len(s.tools) > 0 {
			opts = append(opts, model.WithToolChoice(schema.ToolChoiceForbidden))
		}
		reply, err := s.streamRound(ctx, conversation, roundEmit, opts...)
		if err != nil {
			result.Text = text.String()
			return result, err
		}
		if reply.Content != "" {
			if text.Len() > 0 {
				text.WriteString(roundSeparator)
			}
			text.WriteString(reply.Content)
		}
		if len(reply.ToolCalls) == 0 {
			break
		}
		if final {
			s.logger.Warn("tool calls ignored after last round",
				zap.String("chat_id", chatID), zap.Int("calls", len(reply.ToolCalls)))
			break
		}

		for i := range reply.ToolCalls {
			if reply.ToolCalls[i].ID == "" {
				reply.ToolCalls[i].ID = uuid.NewString()
			}
		}
		conversation = append(conversation, reply)

		for _, tc := range reply.ToolCalls {
			call := models.ToolCall{
				ToolCallID: tc.ID,
				ToolName:   tc.Function.Name,
				Args:       rawJSON(tc.Function.Arguments),
			}
			result.ToolCalls = append(result.ToolCalls, call)
			if err := emit(Event{Type: EventToolCall, ToolCall: &call}); err != nil {
				result.Text = text.String()
				return result, err
			}

			output := s.runTool(ctx, tc)
			res := models.ToolResult{
				ToolCallID: tc.ID,
				ToolName:   tc.Function.Name,
				Result:     rawJSON(output),
			}
			result.ToolResults = append(result.ToolResults, res)
			if err := emit(Event{Type: EventToolResult, ToolResult: &res}); err != nil {
				result.Text = text.String()
				return result, err
			}
			toolMsg := schema.ToolMessage(output, tc.ID)
			toolMsg.ToolName = tc.Function.Name
			conversation = append(conversation, toolMsg)
		}
	}
	result.Text = text.String()
	return result, nil
}

func (s *Service) streamRound(ctx context.Context, conversation []*schema.Message, emit EventFn, opts ...model.Option) (*schema.Message, error) {
	stream, err := s.model.Stream(ctx, conversation, opts...)
	if err != nil {
		return nil, fmt.Errorf("generate ai stream failed: %w", err)
	}
	defer stream.Close()

	var chunks []*schema.Message
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("receive ai stream: %w", err)
		}
		if chunk == nil {
			continue
		}
		chunks = append(chunks, chunk)
		if chunk.Content != "" {
			if err := emit(Event{Type: EventText, Text: chunk.Content}); err != nil {
				return nil, err
			}
		}
	}
	if len(chunks) == 0 {
		return schema.AssistantMessage("", nil), nil
	}
	reply, err := schema.ConcatMessages(chunks)
	if err != nil {
		return nil, fmt.Errorf("concat ai stream: %w", err)
	}
	return reply, nil
}

// runTool always yields a JSON payload; failures are reported to the model.
func (s *Service) runTool(ctx context.Context, tc schema.ToolCall) string {
	name := tc.Function.Name
	t, ok := s.tools[name]
	if !ok {
		metrics.ToolInvocationsTotal.WithLabelValues(name, "unknown").Inc()
		return errorPayload("unknown tool: " + name)
	}
	args := tc.Function.Arguments
	if strings.TrimSpace(args) == "" {
		args = "{}"
	}
	out, err := t.InvokableRun(ctx, args)
	if err != nil {
		s.logger.Warn("tool execution failed", zap.String("tool", name), zap.Error(err))
		metrics.ToolInvocationsTotal.WithLabelValues(name, "error").Inc()
		return errorPayload(err.Error())
	}
	metrics.ToolInvocationsTotal.WithLabelValues(name, "ok").Inc()
	return out
}

// convertMessages prepends the dated persona. Tool-role transcript entries are not
// forwarded because the provider needs the matching assistant call alongside
// them; tool activity is kept in the chat's tool records instead.
func (s *Service) convertMessages(history []models.Message) []*schema.Message {
	messages := make([]*schema.Message, 0, len(history)+1)
	messages = append(messages, schema.SystemMessage(systemPrompt(s.persona, s.now())))
	for _, msg := range models.FilterEmpty(history) {
		switch msg.Role {
		case models.RoleUser:
			messages = append(messages, schema.UserMessage(msg.Content))
		case models.RoleAssistant:
			messages = append(messages, schema.AssistantMessage(msg.Content, nil))
		}
	}
	return messages
}
