package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ormasoftchile/parla/pkg/logging"
	"github.com/ormasoftchile/parla/pkg/vars"
)

// Structured output modes.
const (
	// SchemaStrict sends a strict json_schema response format.
	SchemaStrict = "json_schema"
	// SchemaObject asks for json_object and spells the schema out in the
	// prompt, for services (e.g. DeepSeek) without json_schema support.
	SchemaObject = "json_object"
)

// OpenAIConfig configures the chat-completions adapter.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string // empty means the OpenAI default
	Model      string
	SchemaMode string
	Timeout    time.Duration
	MaxRetries int
	// Language is the learner's target language, e.g. "Dutch".
	Language string

	EvaluateTemperature float64
	ExtractTemperature  float64
	ReplyTemperature    float64
	MaxTokens           int64
	// ErrorHint is appended to transport errors shown to the learner.
	ErrorHint string
}

// OpenAI talks to any OpenAI-compatible chat-completions endpoint.
type OpenAI struct {
	client openai.Client
	cfg    OpenAIConfig
	log    *logging.Logger
	tracer trace.Tracer
}

// NewOpenAI builds the adapter. A nil tracer disables spans.
func NewOpenAI(cfg OpenAIConfig, log *logging.Logger, tracer trace.Tracer) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai gateway: API key is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("openai gateway: model is required")
	}
	switch cfg.SchemaMode {
	case "":
		cfg.SchemaMode = SchemaStrict
	case SchemaStrict, SchemaObject:
	default:
		return nil, fmt.Errorf("openai gateway: unknown schema mode %q", cfg.SchemaMode)
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 150
	}
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("parla/gateway")
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	if cfg.MaxRetries >= 0 {
		opts = append(opts, option.WithMaxRetries(cfg.MaxRetries))
	}
	return &OpenAI{
		client: openai.NewClient(opts...),
		cfg:    cfg,
		log:    log,
		tracer: tracer,
	}, nil
}

// EvaluateGoal implements Gateway.
func (g *OpenAI) EvaluateGoal(ctx context.Context, transcript []Message, goalTitle string) Evaluation {
	ctx, span := g.tracer.Start(ctx, "gateway.evaluate_goal", trace.WithAttributes(
		attribute.String("goal", goalTitle),
		attribute.Int("transcript.len", len(transcript)),
	))
	defer span.End()

	system := evaluationPrompt(goalTitle, g.cfg.Language)
	text, err := g.complete(ctx, system, transcript, "goal_evaluation", evaluationSchema, g.cfg.EvaluateTemperature)
	if err != nil {
		recordError(span, err)
		g.log.Warn("goal evaluation failed", "goal", goalTitle, "error", err)
		return Evaluation{Verdict: NotAchieved, Detail: g.errorDetail(err), Err: err}
	}
	ev := ParseEvaluation(text)
	span.SetAttributes(attribute.String("verdict", ev.Verdict.String()))
	g.log.Debug("goal evaluated", "goal", goalTitle, "verdict", ev.Verdict.String(), "reason", ev.Reason)
	return ev
}

// ExtractInformation implements Gateway.
func (g *OpenAI) ExtractInformation(ctx context.Context, text string, spec map[string]string) vars.Optional {
	if len(spec) == 0 {
		return vars.Optional{}
	}
	ctx, span := g.tracer.Start(ctx, "gateway.extract_information", trace.WithAttributes(
		attribute.Int("fields", len(spec)),
	))
	defer span.End()

	system := extractionPrompt(spec, g.cfg.Language)
	user := []Message{{Role: RoleUser, Text: text}}
	out, err := g.complete(ctx, system, user, "extraction", extractionSchema(spec), g.cfg.ExtractTemperature)
	if err != nil {
		recordError(span, err)
		g.log.Warn("extraction failed", "error", err)
		return vars.Optional{}
	}
	values := ParseExtraction(out, spec)
	if len(values) == 0 {
		g.log.Warn("extraction reply not understood", "reply", out)
	}
	span.SetAttributes(attribute.Int("extracted", len(values.NonNull())))
	return values
}

// OpenReply implements Gateway.
func (g *OpenAI) OpenReply(ctx context.Context, transcript []Message, concepts []Concept) Reply {
	ctx, span := g.tracer.Start(ctx, "gateway.open_reply", trace.WithAttributes(
		attribute.Int("concepts", len(concepts)),
	))
	defer span.End()

	if len(concepts) == 0 {
		text, err := g.complete(ctx, correctionPrompt, transcript, "", nil, g.cfg.ReplyTemperature)
		if err != nil {
			recordError(span, err)
			g.log.Warn("correction failed", "error", err)
			return Reply{Text: g.errorDetail(err), Err: err}
		}
		return Reply{Text: strings.TrimSpace(text)}
	}

	system := replyPrompt(concepts, g.cfg.Language)
	text, err := g.complete(ctx, system, transcript, "open_reply", replySchema, g.cfg.ReplyTemperature)
	if err != nil {
		recordError(span, err)
		g.log.Warn("open reply failed", "error", err)
		return Reply{Text: g.errorDetail(err), Err: err}
	}
	r := ParseReply(text)
	span.SetAttributes(attribute.Int("covered", len(r.Covered)))
	return r
}

// complete sends one chat completion. A nil schema requests plain text.
func (g *OpenAI) complete(ctx context.Context, system string, transcript []Message, name string, schema map[string]any, temperature float64) (string, error) {
	if schema != nil && g.cfg.SchemaMode == SchemaObject {
		system += "\n\n" + schemaInstruction(name, schema)
	}
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(transcript)+1)
	msgs = append(msgs, openai.SystemMessage(system))
	for _, m := range transcript {
		switch m.Role {
		case RoleUser:
			msgs = append(msgs, openai.UserMessage(m.Text))
		case RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(m.Text))
		case RoleSystem:
			msgs = append(msgs, openai.SystemMessage(m.Text))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(g.cfg.Model),
		Messages:    msgs,
		MaxTokens:   openai.Int(g.cfg.MaxTokens),
		Temperature: openai.Float(temperature),
	}
	if schema != nil {
		switch g.cfg.SchemaMode {
		case SchemaStrict:
			params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
				OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
					JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
						Name:   name,
						Schema: schema,
						Strict: openai.Bool(true),
					},
				},
			}
		case SchemaObject:
			params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
				OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
			}
		}
	}

	resp, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion: no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

func (g *OpenAI) errorDetail(err error) string {
	if g.cfg.ErrorHint == "" {
		return err.Error()
	}
	return err.Error() + "\n\n" + g.cfg.ErrorHint
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

var _ Gateway = (*OpenAI)(nil)
