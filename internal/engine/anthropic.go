package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.opentelemetry.io/otel/trace"

	"github.com/haasonsaas/scribe/internal/observability"
	"github.com/haasonsaas/scribe/internal/tools"
	"github.com/haasonsaas/scribe/pkg/models"
)

// AnthropicEngine runs turns against Anthropic's Messages API with
// streaming and tool use. Each run is an agentic loop: stream one model
// response, execute any requested tools, feed the results back, repeat
// until the model stops asking for tools or the round limit is hit.
type AnthropicEngine struct {
	client        anthropic.Client
	registry      *tools.Registry
	logger        *observability.Logger
	metrics       *observability.Metrics
	tracer        *observability.Tracer
	model         string
	maxTokens     int
	maxToolRounds int
	systemPrompt  string
}

// AnthropicConfig holds configuration for the Anthropic engine.
type AnthropicConfig struct {
	// APIKey is required.
	APIKey string

	// BaseURL overrides the API endpoint.
	BaseURL string

	// Model defaults to claude-sonnet-4-20250514.
	Model string

	// MaxTokens defaults to 4096.
	MaxTokens int

	// MaxToolRounds caps tool-use cycles per run. Defaults to 8.
	MaxToolRounds int

	// SystemPrompt is prepended to every run unless the request
	// overrides it.
	SystemPrompt string
}

// NewAnthropicEngine creates an Anthropic-backed engine. Metrics and
// tracer may be nil.
func NewAnthropicEngine(config AnthropicConfig, registry *tools.Registry, logger *observability.Logger, metrics *observability.Metrics, tracer *observability.Tracer) (*AnthropicEngine, error) {
	if config.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	if config.Model == "" {
		config.Model = "claude-sonnet-4-20250514"
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = 4096
	}
	if config.MaxToolRounds <= 0 {
		config.MaxToolRounds = 8
	}

	options := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if strings.TrimSpace(config.BaseURL) != "" {
		options = append(options, option.WithBaseURL(config.BaseURL))
	}

	return &AnthropicEngine{
		client:        anthropic.NewClient(options...),
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

func (e *AnthropicEngine) Name() string {
	return "anthropic"
}

// Run starts the agentic loop for one turn.
func (e *AnthropicEngine) Run(ctx context.Context, req *RunRequest) (<-chan models.EngineEvent, error) {
	messages, err := e.buildMessages(req)
	if err != nil {
		return nil, fmt.Errorf("anthropic: build messages: %w", err)
	}

	em := newEmitter(ctx, 16)

	system := e.systemPrompt
	if req.System != "" {
		system = req.System
	}

	go func() {
		defer close(em.ch)
		e.runLoop(ctx, em, system, messages)
	}()

	return em.ch, nil
}

func (e *AnthropicEngine) runLoop(ctx context.Context, em *emitter, system string, messages []anthropic.MessageParam) {
	var finalText strings.Builder
	callOrdinal := 0

	for round := 0; round <= e.maxToolRounds; round++ {
		start := time.Now()
		llmCtx := ctx
		var llmSpan trace.Span
		if e.tracer != nil {
			llmCtx, llmSpan = e.tracer.TraceLLMRequest(ctx, e.Name(), e.model)
		}
		text, toolCalls, err := e.streamOnce(llmCtx, em, system, messages)
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
			em.runError(ctx, fmt.Errorf("anthropic: tool round limit of %d exceeded", e.maxToolRounds))
			return
		}

		// Record the assistant turn (text + tool use) and execute the
		// requested tools, feeding results back as one user turn.
		var assistantContent []anthropic.ContentBlockParamUnion
		if text != "" {
			assistantContent = append(assistantContent, anthropic.NewTextBlock(text))
		}
		var resultContent []anthropic.ContentBlockParamUnion
		for _, call := range toolCalls {
			if call.ID == "" {
				callOrdinal++
				call.ID = fallbackCallID(call.Name, callOrdinal)
			}

			var input map[string]any
			if len(call.Input) > 0 {
				if err := json.Unmarshal(call.Input, &input); err != nil {
					em.runError(ctx, fmt.Errorf("anthropic: invalid tool input for %s: %w", call.Name, err))
					return
				}
			}
			assistantContent = append(assistantContent, anthropic.NewToolUseBlock(call.ID, input, call.Name))

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
			resultContent = append(resultContent, anthropic.NewToolResultBlock(result.ToolCallID, result.Content, result.IsError))
		}

		messages = append(messages,
			anthropic.NewAssistantMessage(assistantContent...),
			anthropic.NewUserMessage(resultContent...),
		)
	}
}

// streamOnce performs one streaming round trip, emitting deltas as they
// arrive and returning the assembled text plus any tool calls.
func (e *AnthropicEngine) streamOnce(ctx context.Context, em *emitter, system string, messages []anthropic.MessageParam) (string, []models.ToolCall, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(e.model),
		Messages:  messages,
		MaxTokens: int64(e.maxTokens),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: system}}
	}

	toolDefs, err := e.convertTools()
	if err != nil {
		return "", nil, err
	}
	if len(toolDefs) > 0 {
		params.Tools = toolDefs
	}

	stream := e.client.Messages.NewStreaming(ctx, params)

	var text strings.Builder
	var toolCalls []models.ToolCall
	var currentTool *models.ToolCall
	var currentInput strings.Builder

	for stream.Next() {
		event := stream.Current()

		switch event.Type {
		case "content_block_start":
			block := event.AsContentBlockStart().ContentBlock
			if block.Type == "tool_use" {
				toolUse := block.AsToolUse()
				currentTool = &models.ToolCall{ID: toolUse.ID, Name: toolUse.Name}
				currentInput.Reset()
			}

		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				if delta.Text != "" {
					text.WriteString(delta.Text)
					if !em.textDelta(ctx, delta.Text) {
						return "", nil, ctx.Err()
					}
				}
			case "thinking_delta":
				if delta.Thinking != "" {
					if !em.reasoningDelta(ctx, delta.Thinking) {
						return "", nil, ctx.Err()
					}
				}
			case "input_json_delta":
				if delta.PartialJSON != "" {
					currentInput.WriteString(delta.PartialJSON)
				}
			}

		case "content_block_stop":
			if currentTool != nil {
				currentTool.Input = json.RawMessage(currentInput.String())
				toolCalls = append(toolCalls, *currentTool)
				currentTool = nil
			}

		case "message_stop":
			return text.String(), toolCalls, nil

		case "error":
			return "", nil, errors.New("anthropic: stream error")
		}
	}

	if err := stream.Err(); err != nil {
		return "", nil, fmt.Errorf("anthropic: %w", err)
	}
	return text.String(), toolCalls, nil
}

func (e *AnthropicEngine) buildMessages(req *RunRequest) ([]anthropic.MessageParam, error) {
	var result []anthropic.MessageParam
	for _, msg := range req.History {
		switch msg.Role {
		case models.RoleUser:
			result = append(result, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		case models.RoleAssistant:
			if msg.Content != "" {
				result = append(result, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
			}
		}
	}
	result = append(result, anthropic.NewUserMessage(anthropic.NewTextBlock(req.Message)))
	return result, nil
}

func (e *AnthropicEngine) convertTools() ([]anthropic.ToolUnionParam, error) {
	var result []anthropic.ToolUnionParam
	for _, tool := range e.registry.List() {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(tool.Schema(), &schema); err != nil {
			return nil, fmt.Errorf("invalid tool schema for %s: %w", tool.Name(), err)
		}
		toolParam := anthropic.ToolUnionParamOfTool(schema, tool.Name())
		if toolParam.OfTool == nil {
			return nil, fmt.Errorf("invalid tool schema for %s: missing tool definition", tool.Name())
		}
		toolParam.OfTool.Description = anthropic.String(tool.Description())
		result = append(result, toolParam)
	}
	return result, nil
}
