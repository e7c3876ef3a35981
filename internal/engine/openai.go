package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/trace"

	"github.com/haasonsaas/scribe/internal/observability"
	"github.com/haasonsaas/scribe/internal/tools"
	"github.com/haasonsaas/scribe/pkg/models"
)

// OpenAIEngine runs turns against OpenAI's chat completions API with
// streaming and tool calling. The agentic loop mirrors the Anthropic
// engine; only the wire format differs.
type OpenAIEngine struct {
	client        *openai.Client
	registry      *tools.Registry
	logger        *observability.Logger
	metrics       *observability.Metrics
	tracer        *observability.Tracer
	model         string
	maxTokens     int
	maxToolRounds int
	systemPrompt  string
}

// OpenAIConfig holds configuration for the OpenAI engine.
type OpenAIConfig struct {
	// APIKey is required.
	APIKey string

	// BaseURL overrides the API endpoint (proxies, compatible servers).
	BaseURL string

	// Model defaults to gpt-4o.
	Model string

	// MaxTokens defaults to 4096.
	MaxTokens int

	// MaxToolRounds caps tool-use cycles per run. Defaults to 8.
	MaxToolRounds int

	// SystemPrompt is prepended to every run unless the request
	// overrides it.
	SystemPrompt string
}

// NewOpenAIEngine creates an OpenAI-backed engine. Metrics and tracer
// may be nil.
func NewOpenAIEngine(config OpenAIConfig, registry *tools.Registry, logger *observability.Logger, metrics *observability.Metrics, tracer *observability.Tracer) (*OpenAIEngine, error) {
	if config.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}
	if config.Model == "" {
		config.Model = "gpt-4o"
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = 4096
	}
	if config.MaxToolRounds <= 0 {
		config.MaxToolRounds = 8
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if strings.TrimSpace(config.BaseURL) != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	return &OpenAIEngine{
		client:        openai.NewClientWithConfig(clientConfig),
		registry:      registry,
		logger:        logger,
		metrics:       metrics,
		tracer:        tracer,
		model:         config.Model,
		maxTokens:     config.MaxTokens,
		maxToolRounds: config.MaxToolRounds,
		systemPrompt:  config.SystemPrompt,
	}, nil
}

func (e *OpenAIEngine) Name() string {
	return "openai"
}

// Run starts the agentic loop for one turn.
func (e *OpenAIEngine) Run(ctx context.Context, req *RunRequest) (<-chan models.EngineEvent, error) {
	system := e.systemPrompt
	if req.System != "" {
		system = req.System
	}
	messages := e.buildMessages(req, system)

	em := newEmitter(ctx, 16)

	go func() {
		defer close(em.ch)
		e.runLoop(ctx, em, messages)
	}()

	return em.ch, nil
}

func (e *OpenAIEngine) runLoop(ctx context.Context, em *emitter, messages []openai.ChatCompletionMessage) {
	var finalText strings.Builder
	callOrdinal := 0

	for round := 0; round <= e.maxToolRounds; round++ {
		start := time.Now()
		llmCtx := ctx
		var llmSpan trace.Span
		if e.tracer != nil {
			llmCtx, llmSpan = e.tracer.TraceLLMRequest(ctx, e.Name(), e.model)
		}
		text, toolCalls, err := e.streamOnce(llmCtx, em, messages)
		status := "success"
		if err != nil {
			status = "error"
		}
		if llmSpan != nil {
			e.tracer.RecordError(llmSpan, err)
			llmSpan.End()
		}
		if e.metrics != nil {
			e.metrics.RecordLLMRequest(e.Name(), e.model, status, time.Since(start).Seconds(), 0, 0)
		}
		if err != nil {
			e.logger.Error(ctx, "llm request failed", "provider", e.Name(), "error", err)
			if e.metrics != nil {
				e.metrics.RecordError("engine", "llm_request")
			}
			em.runError(ctx, err)
			return
		}

		finalText.WriteString(text)

		if len(toolCalls) == 0 {
			em.runCompleted(ctx, finalText.String())
			return
		}
		if round == e.maxToolRounds {
			em.runError(ctx, fmt.Errorf("openai: tool round limit of %d exceeded", e.maxToolRounds))
			return
		}

		assistantMsg := openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleAssistant,
			Content: text,
		}
		for i := range toolCalls {
			if toolCalls[i].ID == "" {
				callOrdinal++
				toolCalls[i].ID = fallbackCallID(toolCalls[i].Name, callOrdinal)
			}
			assistantMsg.ToolCalls = append(assistantMsg.ToolCalls, openai.ToolCall{
				ID:   toolCalls[i].ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      toolCalls[i].Name,
					Arguments: string(toolCalls[i].Input),
				},
			})
		}
		messages = append(messages, assistantMsg)

		for _, call := range toolCalls {
			toolStart := time.Now()
			toolCtx := ctx
			var toolSpan trace.Span
			if e.tracer != nil {
				toolCtx, toolSpan = e.tracer.TraceToolExecution(ctx, call.Name)
			}
			result := executeToolCall(toolCtx, em, e.registry, call)
			if toolSpan != nil {
				toolSpan.End()
			}
			if e.metrics != nil {
				toolStatus := "success"
				if result.IsError {
					toolStatus = "error"
				}
				e.metrics.RecordToolExecution(call.Name, toolStatus, time.Since(toolStart).Seconds())
			}
			messages = append(messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				ToolCallID: result.ToolCallID,
				Content:    result.Content,
			})
		}
	}
}

// streamOnce performs one streaming round trip, emitting text deltas and
// accumulating tool call fragments by index.
func (e *OpenAIEngine) streamOnce(ctx context.Context, em *emitter, messages []openai.ChatCompletionMessage) (string, []models.ToolCall, error) {
	chatReq := openai.ChatCompletionRequest{
		Model:     e.model,
		Messages:  messages,
		MaxTokens: e.maxTokens,
		Stream:    true,
	}
	if toolDefs := e.convertTools(); len(toolDefs) > 0 {
		chatReq.Tools = toolDefs
	}

	stream, err := e.client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		return "", nil, fmt.Errorf("openai: %w", err)
	}
	defer stream.Close()

	var text strings.Builder
	pending := make(map[int]*models.ToolCall)
	var order []int

	for {
		response, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return "", nil, fmt.Errorf("openai: %w", err)
		}
		if len(response.Choices) == 0 {
			continue
		}

		delta := response.Choices[0].Delta
		if delta.Content != "" {
			text.WriteString(delta.Content)
			if !em.textDelta(ctx, delta.Content) {
				return "", nil, ctx.Err()
			}
		}

		for _, tc := range delta.ToolCalls {
			index := 0
			if tc.Index != nil {
				index = *tc.Index
			}
			if pending[index] == nil {
				pending[index] = &models.ToolCall{}
				order = append(order, index)
			}
			if tc.ID != "" {
				pending[index].ID = tc.ID
			}
			if tc.Function.Name != "" {
				pending[index].Name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				pending[index].Input = append(pending[index].Input, tc.Function.Arguments...)
			}
		}
	}

	var toolCalls []models.ToolCall
	for _, index := range order {
		tc := pending[index]
		if tc.Name == "" {
			continue
		}
		toolCalls = append(toolCalls, *tc)
	}
	return text.String(), toolCalls, nil
}

func (e *OpenAIEngine) buildMessages(req *RunRequest, system string) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(req.History)+2)
	if system != "" {
		result = append(result, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	for _, msg := range req.History {
		switch msg.Role {
		case models.RoleUser:
			result = append(result, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: msg.Content,
			})
		case models.RoleAssistant:
			if msg.Content != "" {
				result = append(result, openai.ChatCompletionMessage{
					Role:    openai.ChatMessageRoleAssistant,
					Content: msg.Content,
				})
			}
		}
	}
	result = append(result, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Message,
	})
	return result
}

func (e *OpenAIEngine) convertTools() []openai.Tool {
	var result []openai.Tool
	for _, tool := range e.registry.List() {
		result = append(result, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name(),
				Description: tool.Description(),
				Parameters:  tool.Schema(),
			},
		})
	}
	return result
}
