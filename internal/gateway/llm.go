package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/todorun/internal/config"
	"github.com/fyrsmithlabs/todorun/internal/secrets"
	"github.com/fyrsmithlabs/todorun/internal/task"
)

const (
	defaultTimeout   = 60 * time.Second
	defaultRateLimit = 2.0
	defaultBurst     = 4
)

var errEmptyResponse = errors.New("empty response from model")

// LLMGateway implements Gateway on top of a chat model in JSON mode.
type LLMGateway struct {
	model    llms.Model
	limiter  *rate.Limiter
	timeout  time.Duration
	scrubber secrets.Scrubber
	logger   *zap.Logger
}

// Option configures an LLMGateway.
type Option func(*LLMGateway)

// WithTimeout bounds each model call.
func WithTimeout(d time.Duration) Option {
	return func(g *LLMGateway) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithRateLimit sets the outbound request rate in requests per second.
func WithRateLimit(rps float64, burst int) Option {
	return func(g *LLMGateway) {
		if rps > 0 && burst > 0 {
			g.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		}
	}
}

// WithScrubber redacts secrets from text before it leaves the process.
func WithScrubber(s secrets.Scrubber) Option {
	return func(g *LLMGateway) {
		if s != nil {
			g.scrubber = s
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(g *LLMGateway) {
		if l != nil {
			g.logger = l
		}
	}
}

// New wraps model.
func New(model llms.Model, opts ...Option) (*LLMGateway, error) {
	if model == nil {
		return nil, errors.New("model is required")
	}
	g := &LLMGateway{
		model:    model,
		limiter:  rate.NewLimiter(rate.Limit(defaultRateLimit), defaultBurst),
		timeout:  defaultTimeout,
		scrubber: secrets.NoopScrubber{},
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// NewFromConfig builds a gateway backed by an OpenAI-compatible endpoint.
func NewFromConfig(cfg config.GatewayConfig, opts ...Option) (*LLMGateway, error) {
	if !cfg.APIKey.IsSet() {
		return nil, errors.New("gateway api key required (set OPENAI_API_KEY or gateway.api_key)")
	}

	clientOpts := []openai.Option{
		openai.WithToken(cfg.APIKey.Value()),
		openai.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		clientOpts = append(clientOpts, openai.WithBaseURL(cfg.BaseURL))
	}
	model, err := openai.New(clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating openai client: %w", err)
	}

	base := []Option{
		WithTimeout(cfg.Timeout),
		WithRateLimit(cfg.RateLimit, cfg.Burst),
	}
	return New(model, append(base, opts...)...)
}

type generatedRecord struct {
	ID          json.Number `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Status      string      `json:"status"`
	Phase       string      `json:"phase"`
	Reasoning   string      `json:"reasoning"`
}

type generateResponse struct {
	Tasks []generatedRecord `json:"tasks"`
}

type editResponse struct {
	Title          *string  `json:"title"`
	Description    *string  `json:"description"`
	Phase          *string  `json:"phase"`
	ChangesMade    []string `json:"changes_made"`
	Interpretation string   `json:"interpretation"`
}

// Analyze implements Gateway.
func (g *LLMGateway) Analyze(ctx context.Context, goal string) Analysis {
	var resp Analysis
	if err := g.complete(ctx, "analyze", analyzeSystemPrompt, analyzeUserPrompt(g.scrub(goal)), analyzeTemperature, &resp); err != nil {
		return Analysis{Questions: []Question{}}
	}
	if resp.Questions == nil {
		resp.Questions = []Question{}
	}
	if len(resp.Questions) == 0 {
		resp.NeedsClarification = false
	}
	return resp
}

// Generate implements Gateway.
func (g *LLMGateway) Generate(ctx context.Context, goal string, expertise Expertise, clarifications []Clarification) []task.Record {
	var resp generateResponse
	system := generateSystemPrompt(expertise, clarifications)
	if err := g.complete(ctx, "generate", g.scrub(system), generateUserPrompt(g.scrub(goal)), generateTemperature, &resp); err != nil {
		return []task.Record{}
	}

	records := make([]task.Record, 0, len(resp.Tasks))
	for _, r := range resp.Tasks {
		rec := task.Record{
			Title:       r.Title,
			Description: r.Description,
			Status:      r.Status,
			Phase:       r.Phase,
			Reasoning:   r.Reasoning,
		}
		if id, err := strconv.Atoi(r.ID.String()); err == nil {
			rec.ID = &id
		}
		records = append(records, rec)
	}
	return records
}

// InterpretEdit implements Gateway. Empty strings in the response count as
// omitted fields.
func (g *LLMGateway) InterpretEdit(ctx context.Context, request string, current task.Task) EditProposal {
	var resp editResponse
	user := interpretUserPrompt(g.scrub(request), current)
	if err := g.complete(ctx, "interpret_edit", interpretSystemPrompt, g.scrub(user), interpretTemperature, &resp); err != nil {
		return unchangedProposal()
	}

	p := EditProposal{
		Title:          nonEmpty(resp.Title),
		Description:    nonEmpty(resp.Description),
		ChangesMade:    resp.ChangesMade,
		Interpretation: resp.Interpretation,
	}
	if v := nonEmpty(resp.Phase); v != nil {
		phase := task.ParsePhase(*v)
		p.Phase = &phase
	}
	if p.ChangesMade == nil {
		p.ChangesMade = []string{}
	}
	return p
}

// Execute implements Gateway. The returned status is passed through
// verbatim; the queue validates it.
func (g *LLMGateway) Execute(ctx context.Context, t task.Task, capabilities []string) task.Outcome {
	var out task.Outcome
	user := g.scrub(executeUserPrompt(t))
	if err := g.complete(ctx, "execute", executeSystemPrompt(capabilities), user, executeTemperature, &out); err != nil {
		return FailedOutcome(err)
	}
	if out.ActionsTaken == nil {
		out.ActionsTaken = []string{}
	}
	if out.ToolsUsed == nil {
		out.ToolsUsed = []string{}
	}
	return out
}

// complete sends one system+user exchange and decodes the JSON reply into v.
func (g *LLMGateway) complete(ctx context.Context, op, system, user string, temperature float64, v any) error {
	if err := g.limiter.Wait(ctx); err != nil {
		g.logger.Warn("rate limiter wait failed", zap.String("op", op), zap.Error(err))
		return fmt.Errorf("rate limiter: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, user),
	}
	resp, err := g.model.GenerateContent(callCtx, messages,
		llms.WithTemperature(temperature),
		llms.WithJSONMode(),
	)
	if err != nil {
		g.logger.Warn("model call failed",
			zap.String("op", op),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return err
	}
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
		g.logger.Warn("model returned no choices", zap.String("op", op))
		return errEmptyResponse
	}

	content := stripCodeFence(resp.Choices[0].Content)
	if content == "" {
		g.logger.Warn("model returned empty content", zap.String("op", op))
		return errEmptyResponse
	}
	if err := json.Unmarshal([]byte(content), v); err != nil {
		g.logger.Warn("model returned malformed JSON",
			zap.String("op", op),
			zap.Int("content_length", len(content)),
			zap.Error(err),
		)
		return fmt.Errorf("decoding %s response: %w", op, err)
	}

	g.logger.Debug("model call completed",
		zap.String("op", op),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

func (g *LLMGateway) scrub(s string) string {
	return g.scrubber.Scrub(s).Scrubbed
}

// stripCodeFence removes a markdown code fence wrapped around a JSON body.
func stripCodeFence(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}

func nonEmpty(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	return s
}

var _ Gateway = (*LLMGateway)(nil)
