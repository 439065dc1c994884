// Package narrator talks to the language model that plays the Dungeon Master.
package narrator

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/user/solo-adventure/internal/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrMalformedResponse indicates a reply body in neither supported shape.
	ErrMalformedResponse = errors.New("malformed narrator response")
	// ErrNoModel indicates no model was configured or selected.
	ErrNoModel = errors.New("no narrator model selected")
)

// DefaultWindow is the number of transcript turns sent with each call
const DefaultWindow = 10

// Narrator produces the next narration for a transcript window
type Narrator interface {
	Complete(ctx context.Context, system string, window []types.Turn) (string, error)
	ListModels(ctx context.Context) ([]string, error)
}

// Message is one chat message on the wire
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Messages prepends the system instruction to the window
func Messages(system string, window []types.Turn) []Message {
	msgs := make([]Message, 0, len(window)+1)
	msgs = append(msgs, Message{Role: "system", Content: system})
	for _, turn := range window {
		msgs = append(msgs, Message{Role: string(turn.Role), Content: turn.Content})
	}
	return msgs
}

// Window returns the last n non-error turns of transcript
func Window(transcript []types.Turn, n int) []types.Turn {
	if n <= 0 {
		return nil
	}
	out := make([]types.Turn, 0, n)
	for i := len(transcript) - 1; i >= 0 && len(out) < n; i-- {
		if transcript[i].Kind == types.KindError {
			continue
		}
		out = append(out, transcript[i])
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

var reasoning = regexp.MustCompile(`(?is)<think>.*?</think>`)

// StripReasoning removes <think>...</think> blocks and trims the result
func StripReasoning(text string) string {
	return strings.TrimSpace(reasoning.ReplaceAllString(text, ""))
}

// NormalizeReply extracts the reply text from either a {message:{content}}
// body or a {choices:[{message:{content}}]} body
func NormalizeReply(body []byte) (string, error) {
	if !gjson.ValidBytes(body) {
		return "", ErrMalformedResponse
	}
	for _, path := range []string{"message.content", "choices.0.message.content"} {
		if r := gjson.GetBytes(body, path); r.Exists() && r.Type == gjson.String {
			return strings.TrimSpace(r.String()), nil
		}
	}
	return "", ErrMalformedResponse
}

const tracerName = "github.com/user/solo-adventure/internal/narrator"

type traced struct {
	next    Narrator
	backend string
	model   string
	tracer  trace.Tracer
}

// Traced wraps n so every call is recorded as a span
func Traced(n Narrator, backend, model string) Narrator {
	return &traced{next: n, backend: backend, model: model, tracer: otel.Tracer(tracerName)}
}

func (t *traced) Complete(ctx context.Context, system string, window []types.Turn) (string, error) {
	ctx, span := t.tracer.Start(ctx, "narrator.complete", trace.WithAttributes(
		attribute.String("narrator.backend", t.backend),
		attribute.String("narrator.model", t.model),
		attribute.Int("narrator.window", len(window)),
	))
	defer span.End()

	reply, err := t.next.Complete(ctx, system, window)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	span.SetAttributes(attribute.Int("narrator.reply_length", len(reply)))
	return reply, nil
}

func (t *traced) ListModels(ctx context.Context) ([]string, error) {
	ctx, span := t.tracer.Start(ctx, "narrator.list_models", trace.WithAttributes(
		attribute.String("narrator.backend", t.backend),
	))
	defer span.End()

	models, err := t.next.ListModels(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return models, err
}
