package extraction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"text/template"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/soundprediction/lorekeeper/pkg/nlp"
	"github.com/soundprediction/lorekeeper/pkg/types"
)

// DefaultTimeout bounds a single model invocation.
const DefaultTimeout = 120 * time.Second

// Options configures an Extractor.
type Options struct {
	Rules *Rules
	// Timeout bounds each model call; zero means DefaultTimeout.
	Timeout time.Duration
	// RepairJSON enables one jsonrepair pass over syntactically broken output.
	RepairJSON bool
	Logger     *slog.Logger
}

// Extractor calls a language model on one chunk and returns a validated candidate set.
type Extractor struct {
	client  nlp.Client
	rules   *Rules
	timeout time.Duration
	repair  bool
	tmpl    *template.Template
	schema  *jsonschema.Schema
	logger  *slog.Logger
}

// New creates an Extractor that talks to client.
func New(client nlp.Client, opts Options) (*Extractor, error) {
	if client == nil {
		return nil, errors.New("extraction requires a model client")
	}
	if opts.Rules == nil {
		opts.Rules = DefaultRules()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	tmpl, err := parsePrompt()
	if err != nil {
		return nil, err
	}

	return &Extractor{
		client:  client,
		rules:   opts.Rules,
		timeout: opts.Timeout,
		repair:  opts.RepairJSON,
		tmpl:    tmpl,
		schema:  ResponseSchema(),
		logger:  opts.Logger,
	}, nil
}

// ResponseSchema returns the JSON Schema of Response sent to the model.
func ResponseSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
		Anonymous:                 true,
	}
	schema := reflector.Reflect(&Response{})
	schema.Version = ""
	return schema
}

// Rules returns the rules the extractor applies.
func (e *Extractor) Rules() *Rules {
	return e.rules
}

// Extract runs one model invocation over chunk. The returned error, if any,
// is an *ExtractionError.
func (e *Extractor) Extract(ctx context.Context, chunk string) (*types.CandidateExtraction, error) {
	prompt, err := renderPrompt(e.tmpl, promptData{
		Text:       chunk,
		Labels:     e.rules.Labels,
		Vocabulary: e.rules.VocabularyList(),
	})
	if err != nil {
		return nil, &ExtractionError{Kind: KindPrompt, Err: err}
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	resp, err := e.client.ChatWithStructuredOutput(callCtx, []types.Message{
		nlp.NewSystemMessage(systemPrompt),
		nlp.NewUserMessage(prompt),
	}, e.schema)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, unavailable(fmt.Errorf("model call timed out after %s: %w", e.timeout, err))
		}
		return nil, unavailable(err)
	}
	if resp == nil {
		return nil, unavailable(nlp.NewEmptyResponseError("model returned no response"))
	}

	candidate, err := Parse(resp.Content, e.repair)
	if err != nil {
		return nil, err
	}

	result := e.rules.Apply(candidate)
	e.logger.Debug("extracted candidates",
		"entities", len(result.Entities),
		"relationships", len(result.Relationships),
		"rejected", len(result.Rejected),
		"duration", time.Since(start))

	return result, nil
}
