// Package assistants adapts the OpenAI (or Azure OpenAI) Assistants API to conversation.Service.
package assistants

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/azure"
	"github.com/openai/openai-go/option"

	"agentrunner/pkg/conversation"
	"agentrunner/pkg/logx"
	"agentrunner/pkg/tools"
)

// Providers.
const (
	ProviderOpenAI = "openai"
	ProviderAzure  = "azure"
)

// DefaultAzureAPIVersion is used when an Azure config carries none.
const DefaultAzureAPIVersion = "2024-05-01-preview"

const defaultMessageLimit = 20

// ErrMissingAPIKey is returned by New without credentials.
var ErrMissingAPIKey = errors.New("conversation service API key not configured")

// Config selects and authenticates the remote service.
type Config struct {
	Provider   string
	APIKey     string
	BaseURL    string // openai only; empty means the public endpoint
	Endpoint   string // azure only
	APIVersion string // azure only
	// MessageLimit caps how many messages ListMessages fetches.
	MessageLimit int
	HTTPClient   *http.Client
}

// Service implements conversation.Service over openai-go.
type Service struct {
	client       openai.Client
	provider     string
	messageLimit int
	logger       *logx.Logger
}

// New builds the adapter. SDK-level retries are disabled; retry policy lives in interceptors.
func New(cfg Config) (*Service, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	opts := []option.RequestOption{option.WithMaxRetries(0)}

	switch cfg.Provider {
	case "", ProviderOpenAI:
		cfg.Provider = ProviderOpenAI
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
		if cfg.BaseURL != "" {
			opts = append(opts, option.WithBaseURL(cfg.BaseURL))
		}
	case ProviderAzure:
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("azure provider requires an endpoint")
		}
		version := cfg.APIVersion
		if version == "" {
			version = DefaultAzureAPIVersion
		}
		opts = append(opts, azure.WithEndpoint(cfg.Endpoint, version), azure.WithAPIKey(cfg.APIKey))
	default:
		return nil, fmt.Errorf("unknown conversation provider %q", cfg.Provider)
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	limit := cfg.MessageLimit
	if limit <= 0 {
		limit = defaultMessageLimit
	}
	return &Service{
		client:       openai.NewClient(opts...),
		provider:     cfg.Provider,
		messageLimit: limit,
		logger:       logx.NewLogger("assistants"),
	}, nil
}

// Provider returns the configured provider name.
func (s *Service) Provider() string {
	return s.provider
}

func (s *Service) CreateThread(ctx context.Context) (conversation.Thread, error) {
	th, err := s.client.Beta.Threads.New(ctx, openai.BetaThreadNewParams{})
	if err != nil {
		return conversation.Thread{}, classify(conversation.OpCreateThread, err)
	}
	return conversation.Thread{ID: th.ID}, nil
}

func (s *Service) CreateMessage(ctx context.Context, threadID string, msg conversation.NewMessage) (string, error) {
	role := openai.BetaThreadMessageNewParamsRoleUser
	if msg.Role == conversation.RoleAssistant {
		role = openai.BetaThreadMessageNewParamsRoleAssistant
	}
	created, err := s.client.Beta.Threads.Messages.New(ctx, threadID, openai.BetaThreadMessageNewParams{
		Role:    role,
		Content: openai.BetaThreadMessageNewParamsContentUnion{OfString: openai.String(msg.Content)},
	})
	if err != nil {
		return "", classify(conversation.OpCreateMessage, err)
	}
	return created.ID, nil
}

func (s *Service) CreateRun(ctx context.Context, threadID, agentID string) (conversation.Run, error) {
	run, err := s.client.Beta.Threads.Runs.New(ctx, threadID, openai.BetaThreadRunNewParams{AssistantID: agentID})
	if err != nil {
		return conversation.Run{}, classify(conversation.OpCreateRun, err)
	}
	return toRun(run), nil
}

func (s *Service) GetRun(ctx context.Context, threadID, runID string) (conversation.Run, error) {
	run, err := s.client.Beta.Threads.Runs.Get(ctx, threadID, runID)
	if err != nil {
		return conversation.Run{}, classify(conversation.OpGetRun, err)
	}
	return toRun(run), nil
}

// ListRuns returns the thread's runs, newest first.
func (s *Service) ListRuns(ctx context.Context, threadID string) ([]conversation.Run, error) {
	page, err := s.client.Beta.Threads.Runs.List(ctx, threadID, openai.BetaThreadRunListParams{
		Order: openai.BetaThreadRunListParamsOrderDesc,
	})
	if err != nil {
		return nil, classify(conversation.OpListRuns, err)
	}
	runs := make([]conversation.Run, 0, len(page.Data))
	for i := range page.Data {
		runs = append(runs, toRun(&page.Data[i]))
	}
	return runs, nil
}

func (s *Service) CancelRun(ctx context.Context, threadID, runID string) error {
	if _, err := s.client.Beta.Threads.Runs.Cancel(ctx, threadID, runID); err != nil {
		return classify(conversation.OpCancelRun, err)
	}
	return nil
}

func (s *Service) SubmitToolOutputs(ctx context.Context, threadID, runID string, results []conversation.ToolResult) (conversation.Run, error) {
	outputs := make([]openai.BetaThreadRunSubmitToolOutputsParamsToolOutput, len(results))
	for i, r := range results {
		outputs[i] = openai.BetaThreadRunSubmitToolOutputsParamsToolOutput{
			ToolCallID: openai.String(r.ToolCallID),
			Output:     openai.String(r.Output),
		}
	}
	run, err := s.client.Beta.Threads.Runs.SubmitToolOutputs(ctx, threadID, runID, openai.BetaThreadRunSubmitToolOutputsParams{
		ToolOutputs: outputs,
	})
	if err != nil {
		return conversation.Run{}, classify(conversation.OpSubmitToolOutputs, err)
	}
	return toRun(run), nil
}

func (s *Service) ListMessages(ctx context.Context, threadID string, order conversation.Order) ([]conversation.Message, error) {
	params := openai.BetaThreadMessageListParams{
		Order: openai.BetaThreadMessageListParamsOrderDesc,
		Limit: openai.Int(int64(s.messageLimit)),
	}
	if order == conversation.OrderAsc {
		params.Order = openai.BetaThreadMessageListParamsOrderAsc
	}
	page, err := s.client.Beta.Threads.Messages.List(ctx, threadID, params)
	if err != nil {
		return nil, classify(conversation.OpListMessages, err)
	}
	out := make([]conversation.Message, 0, len(page.Data))
	for i := range page.Data {
		out = append(out, toMessage(&page.Data[i]))
	}
	return out, nil
}

// CreateOrUpdateAgent creates an assistant, or updates spec.ID in place when set.
func (s *Service) CreateOrUpdateAgent(ctx context.Context, spec conversation.AgentSpec) (conversation.Agent, error) {
	toolParams := toolParams(spec.Tools)

	if spec.ID != "" {
		updated, err := s.client.Beta.Assistants.Update(ctx, spec.ID, openai.BetaAssistantUpdateParams{
			Model:        openai.BetaAssistantUpdateParamsModel(spec.Model),
			Name:         openai.String(spec.Name),
			Instructions: openai.String(spec.Instructions),
			Tools:        toolParams,
		})
		if err != nil {
			return conversation.Agent{}, classify(conversation.OpCreateOrUpdate, err)
		}
		s.logger.Info("Updated assistant %s (%s)", updated.ID, spec.Name)
		return conversation.Agent{ID: updated.ID, Name: spec.Name, Model: updated.Model}, nil
	}

	created, err := s.client.Beta.Assistants.New(ctx, openai.BetaAssistantNewParams{
		Model:        openai.ChatModel(spec.Model),
		Name:         openai.String(spec.Name),
		Instructions: openai.String(spec.Instructions),
		Tools:        toolParams,
	})
	if err != nil {
		return conversation.Agent{}, classify(conversation.OpCreateOrUpdate, err)
	}
	s.logger.Info("Created assistant %s (%s)", created.ID, spec.Name)
	return conversation.Agent{ID: created.ID, Name: spec.Name, Model: created.Model}, nil
}

func toolParams(defs []tools.Definition) []openai.AssistantToolUnionParam {
	out := make([]openai.AssistantToolUnionParam, 0, len(defs))
	for i := range defs {
		def := defs[i]
		out = append(out, openai.AssistantToolUnionParam{
			OfFunction: &openai.FunctionToolParam{
				Function: openai.FunctionDefinitionParam{
					Name:        def.Name,
					Description: openai.String(def.Description),
					Parameters:  openai.FunctionParameters(def.InputSchema.Schema()),
				},
			},
		})
	}
	return out
}

func toRun(r *openai.Run) conversation.Run {
	run := conversation.Run{
		ID:        r.ID,
		ThreadID:  r.ThreadID,
		AgentID:   r.AssistantID,
		Status:    conversation.RunStatus(r.Status),
		CreatedAt: time.Unix(r.CreatedAt, 0),
	}
	if calls := r.RequiredAction.SubmitToolOutputs.ToolCalls; len(calls) > 0 {
		action := &conversation.RequiredAction{ToolCalls: make([]conversation.ToolCall, len(calls))}
		for i, tc := range calls {
			action.ToolCalls[i] = conversation.ToolCall{
				ID:        tc.ID,
				Type:      string(tc.Type),
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			}
		}
		run.RequiredAction = action
	}
	if r.LastError.Message != "" || r.LastError.Code != "" {
		run.LastError = &conversation.RunError{Code: string(r.LastError.Code), Message: r.LastError.Message}
	}
	return run
}

func toMessage(m *openai.Message) conversation.Message {
	msg := conversation.Message{
		ID:        m.ID,
		Role:      string(m.Role),
		CreatedAt: time.Unix(m.CreatedAt, 0),
		Content:   make([]conversation.ContentSegment, 0, len(m.Content)),
	}
	for _, c := range m.Content {
		seg := conversation.ContentSegment{Type: c.Type}
		if c.Type == conversation.ContentTypeText {
			seg.Text = c.Text.Value
		}
		msg.Content = append(msg.Content, seg)
	}
	return msg
}

// classify converts SDK errors into *conversation.Error. Caller cancellation is passed through.
func classify(op conversation.Op, err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, err)
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &conversation.Error{
			Op:         op,
			Type:       conversation.ClassifyStatus(apiErr.StatusCode),
			StatusCode: apiErr.StatusCode,
			Err:        err,
		}
	}
	// No HTTP response: connection refused, reset, deadline.
	return &conversation.Error{Op: op, Type: conversation.ErrorTypeTransient, Err: err}
}

var _ conversation.Service = (*Service)(nil)
