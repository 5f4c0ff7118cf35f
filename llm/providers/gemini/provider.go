package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/finflow/agent"
	"github.com/BaSui01/finflow/config"
	"github.com/BaSui01/finflow/internal/tlsutil"
	"github.com/BaSui01/finflow/tools"
	"github.com/BaSui01/finflow/types"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com"
	defaultModel   = "gemini-2.0-flash"
)

// RequestObserver is notified after every generateContent call.
type RequestObserver func(backend, model string, ok bool, promptTokens, completionTokens int)

// Option 配置 Provider
type Option func(*Provider)

// WithHTTPClient 替换默认 HTTP 客户端
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		if c != nil {
			p.client = c
		}
	}
}

// WithRequestObserver 接收每次请求的结果与 Token 用量
func WithRequestObserver(o RequestObserver) Option {
	return func(p *Provider) { p.observer = o }
}

// Provider 通过 Gemini REST API 实现 agent.Backend
// Gemini API 特点：
// 1. 使用 x-goog-api-key 请求头认证
// 2. system 消息通过 systemInstruction 传递
// 3. 原生 function calling，委派以 delegate_work 函数声明暴露
type Provider struct {
	cfg      config.ModelConfig
	client   *http.Client
	logger   *zap.Logger
	observer RequestObserver
}

// New 创建 Gemini Provider
func New(cfg config.ModelConfig, logger *zap.Logger, opts ...Option) *Provider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Provider{
		cfg:    cfg,
		client: tlsutil.NewHTTPClient(tlsutil.ClientOptions{Timeout: cfg.Timeout, Proxy: cfg.Proxy}),
		logger: logger.With(zap.String("component", "gemini"), zap.String("model", cfg.Model)),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name implements agent.Backend.
func (p *Provider) Name() string { return "gemini" }

// Model returns the configured model id.
func (p *Provider) Model() string { return p.cfg.Model }

// Gemini 消息结构
type geminiContent struct {
	Role  string       `json:"role,omitempty"` // user, model
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text             string                  `json:"text,omitempty"`
	FunctionCall     *geminiFunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *geminiFunctionResponse `json:"functionResponse,omitempty"`
}

type geminiFunctionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

type geminiFunctionResponse struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

type geminiTool struct {
	FunctionDeclarations []geminiFunctionDeclaration `json:"functionDeclarations,omitempty"`
}

type geminiFunctionDeclaration struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"` // JSON Schema
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	Tools             []geminiTool            `json:"tools,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason,omitempty"`
	Index        int           `json:"index"`
}

type geminiUsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type geminiResponse struct {
	Candidates    []geminiCandidate    `json:"candidates"`
	UsageMetadata *geminiUsageMetadata `json:"usageMetadata,omitempty"`
	ModelVersion  string               `json:"modelVersion,omitempty"`
	ResponseID    string               `json:"responseId,omitempty"`
}

type geminiErrorResp struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func (p *Provider) buildHeaders(req *http.Request) {
	req.Header.Set("x-goog-api-key", p.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
}

// Generate implements agent.Backend.
func (p *Provider) Generate(ctx context.Context, req *agent.Request) (*agent.Response, error) {
	if p.cfg.APIKey == "" {
		return nil, types.NewError(types.ErrAuthentication, "gemini api key is not configured").WithProvider(p.Name())
	}

	systemInstruction, contents := convertContents(req.Messages)
	body := geminiRequest{
		Contents:          contents,
		Tools:             convertTools(req.Tools, req.Coworkers),
		SystemInstruction: systemInstruction,
	}
	if p.cfg.Temperature > 0 || p.cfg.MaxOutputTokens > 0 {
		body.GenerationConfig = &geminiGenerationConfig{
			Temperature:     p.cfg.Temperature,
			MaxOutputTokens: p.cfg.MaxOutputTokens,
		}
	}

	gr, err := p.post(ctx, body)
	if err != nil {
		p.notify(false, 0, 0)
		p.logger.Warn("generate failed", append(contextFields(ctx), zap.String("agent", req.Agent), zap.Error(err))...)
		return nil, err
	}

	resp, err := toResponse(gr, p.cfg.Model)
	if err != nil {
		p.notify(false, 0, 0)
		return nil, err
	}
	p.notify(true, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	p.logger.Debug("generate completed", append(contextFields(ctx),
		zap.String("agent", req.Agent),
		zap.Int("tool_calls", len(resp.ToolCalls)),
		zap.Bool("delegation", resp.Delegation != nil),
		zap.Int("total_tokens", resp.Usage.TotalTokens))...)
	return resp, nil
}

// contextFields returns the run/step/crew/task ids carried by ctx.
func contextFields(ctx context.Context) []zap.Field {
	var fields []zap.Field
	if v, ok := types.RunID(ctx); ok {
		fields = append(fields, zap.String("run_id", v))
	}
	if v, ok := types.StepID(ctx); ok {
		fields = append(fields, zap.String("step", v))
	}
	if v, ok := types.Crew(ctx); ok {
		fields = append(fields, zap.String("crew", v))
	}
	if v, ok := types.TaskID(ctx); ok {
		fields = append(fields, zap.String("task", v))
	}
	return fields
}

// Ping sends one minimal prompt and returns the model's answer.
func (p *Provider) Ping(ctx context.Context, prompt string) (string, error) {
	resp, err := p.Generate(ctx, &agent.Request{
		Agent:    "check-model",
		Messages: []types.Message{types.NewUserMessage(prompt)},
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// HealthCheck lists models to verify the key and endpoint without spending tokens.
func (p *Provider) HealthCheck(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	endpoint := fmt.Sprintf("%s/v1beta/models", strings.TrimRight(p.cfg.BaseURL, "/"))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	p.buildHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return time.Since(start), types.NewTransient(err, "gemini health check failed").WithProvider(p.Name())
	}
	defer resp.Body.Close()
	latency := time.Since(start)
	if resp.StatusCode >= 400 {
		return latency, mapError(resp.StatusCode, readErrMsg(resp.Body), p.Name())
	}
	return latency, nil
}

func (p *Provider) post(ctx context.Context, body geminiRequest) (*geminiResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "encode gemini request").WithCause(err)
	}
	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", strings.TrimRight(p.cfg.BaseURL, "/"), p.cfg.Model)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	p.buildHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, types.NewTransient(err, "gemini request failed").WithProvider(p.Name())
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, mapError(resp.StatusCode, readErrMsg(resp.Body), p.Name())
	}

	var gr geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return nil, types.NewTransient(err, "decode gemini response").WithProvider(p.Name())
	}
	return &gr, nil
}

func (p *Provider) notify(ok bool, prompt, completion int) {
	if p.observer != nil {
		p.observer(p.Name(), p.cfg.Model, ok, prompt, completion)
	}
}

// convertContents 将统一消息转换为 Gemini 格式；连续的工具结果合并为同一条 user 内容
func convertContents(msgs []types.Message) (*geminiContent, []geminiContent) {
	var systemInstruction *geminiContent
	var contents []geminiContent

	for _, m := range msgs {
		switch m.Role {
		case types.RoleSystem:
			if systemInstruction == nil {
				systemInstruction = &geminiContent{}
			}
			systemInstruction.Parts = append(systemInstruction.Parts, geminiPart{Text: m.Content})
			continue

		case types.RoleTool:
			part := geminiPart{FunctionResponse: &geminiFunctionResponse{Name: m.Name, Response: responseObject(m.Content)}}
			if n := len(contents); n > 0 && contents[n-1].Role == "user" && contents[n-1].Parts[0].FunctionResponse != nil {
				contents[n-1].Parts = append(contents[n-1].Parts, part)
			} else {
				contents = append(contents, geminiContent{Role: "user", Parts: []geminiPart{part}})
			}
			continue
		}

		role := "user"
		if m.Role == types.RoleAssistant {
			role = "model"
		}
		content := geminiContent{Role: role}
		if m.Content != "" {
			content.Parts = append(content.Parts, geminiPart{Text: m.Content})
		}
		for _, tc := range m.ToolCalls {
			args := map[string]any{}
			if len(tc.Arguments) > 0 {
				_ = json.Unmarshal(tc.Arguments, &args)
			}
			content.Parts = append(content.Parts, geminiPart{FunctionCall: &geminiFunctionCall{Name: tc.Name, Args: args}})
		}
		if len(content.Parts) > 0 {
			contents = append(contents, content)
		}
	}
	return systemInstruction, contents
}

// responseObject 将工具结果包装为 JSON 对象；非对象内容放入 result 字段
func responseObject(content string) map[string]any {
	var obj map[string]any
	if err := json.Unmarshal([]byte(content), &obj); err == nil && obj != nil {
		return obj
	}
	var v any
	if err := json.Unmarshal([]byte(content), &v); err == nil {
		return map[string]any{"result": v}
	}
	return map[string]any{"result": content}
}

func convertTools(schemas []tools.Schema, coworkers []string) []geminiTool {
	declarations := make([]geminiFunctionDeclaration, 0, len(schemas)+1)
	for _, t := range schemas {
		var params map[string]any
		if len(t.Parameters) > 0 {
			if err := json.Unmarshal(t.Parameters, &params); err != nil {
				continue
			}
		}
		declarations = append(declarations, geminiFunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  params,
		})
	}
	if len(coworkers) > 0 {
		declarations = append(declarations, delegateDeclaration(coworkers))
	}
	if len(declarations) == 0 {
		return nil
	}
	return []geminiTool{{FunctionDeclarations: declarations}}
}

func delegateDeclaration(coworkers []string) geminiFunctionDeclaration {
	return geminiFunctionDeclaration{
		Name:        agent.DelegateToolName,
		Description: "Delegate a specific sub-task to one of your coworkers. Provide everything they need to know in task and context.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"to":      map[string]any{"type": "string", "enum": coworkers, "description": "The coworker to delegate to"},
				"task":    map[string]any{"type": "string", "description": "The sub-task to perform"},
				"context": map[string]any{"type": "string", "description": "Everything the coworker needs to know"},
			},
			"required": []string{"to", "task"},
		},
	}
}

// toResponse 解析首个候选；delegate_work 调用转换为委派请求
func toResponse(gr *geminiResponse, model string) (*agent.Response, error) {
	if len(gr.Candidates) == 0 {
		return nil, types.NewTransient(nil, "gemini returned no candidates").WithProvider("gemini")
	}
	candidate := gr.Candidates[0]

	resp := &agent.Response{Model: model}
	if gr.ModelVersion != "" {
		resp.Model = gr.ModelVersion
	}
	if gr.UsageMetadata != nil {
		resp.Usage = agent.Usage{
			PromptTokens:     gr.UsageMetadata.PromptTokenCount,
			CompletionTokens: gr.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      gr.UsageMetadata.TotalTokenCount,
		}
	}

	toolCallIndex := 0
	for _, part := range candidate.Content.Parts {
		if part.Text != "" {
			resp.Content += part.Text
		}
		if part.FunctionCall == nil {
			continue
		}
		argsJSON, _ := json.Marshal(part.FunctionCall.Args)
		if part.FunctionCall.Name == agent.DelegateToolName {
			var d agent.Delegation
			if err := json.Unmarshal(argsJSON, &d); err == nil && resp.Delegation == nil {
				resp.Delegation = &d
			}
			continue
		}
		toolCallID := fmt.Sprintf("call_%s_%d", part.FunctionCall.Name, toolCallIndex)
		if gr.ResponseID != "" {
			toolCallID = fmt.Sprintf("call_%s_%s_%d", gr.ResponseID, part.FunctionCall.Name, toolCallIndex)
		}
		resp.ToolCalls = append(resp.ToolCalls, types.ToolCall{
			ID:        toolCallID,
			Name:      part.FunctionCall.Name,
			Arguments: argsJSON,
		})
		toolCallIndex++
	}

	if resp.Delegation == nil && len(resp.ToolCalls) == 0 && strings.TrimSpace(resp.Content) == "" {
		if candidate.FinishReason == "SAFETY" || candidate.FinishReason == "RECITATION" {
			return nil, types.NewError(types.ErrInvalidRequest,
				fmt.Sprintf("gemini blocked the answer (finish reason %s)", candidate.FinishReason)).WithProvider("gemini")
		}
		return nil, types.NewTransient(nil, "gemini returned an empty answer (finish reason %s)", candidate.FinishReason).WithProvider("gemini")
	}
	return resp, nil
}

func readErrMsg(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, 64<<10))
	var errResp geminiErrorResp
	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error.Message != "" {
		return fmt.Sprintf("%s (status: %s)", errResp.Error.Message, errResp.Error.Status)
	}
	return string(data)
}

// mapError 将 Gemini HTTP 错误映射为统一错误；配额错误不可重试
func mapError(status int, msg, provider string) *types.Error {
	if status == http.StatusBadRequest && strings.Contains(strings.ToLower(msg), "api key") {
		return types.NewError(types.ErrAuthentication, msg).WithHTTPStatus(status).WithProvider(provider)
	}
	if status == http.StatusTooManyRequests && strings.Contains(strings.ToLower(msg), "quota") {
		return types.NewError(types.ErrRateLimit, msg).WithHTTPStatus(status).WithProvider(provider)
	}
	return tools.MapHTTPError(status, msg, provider)
}
