package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/kbforge/graphrag-go/internal/budget"
	"github.com/kbforge/graphrag-go/internal/logging"
)

// FailureAnswer is returned as the answer text when the generation model
// fails. Generation failure is a degraded outcome, not an error: the caller
// still receives the retrieved sources and can retry or fall back to them.
const FailureAnswer = "I was unable to generate an answer for this question. Please try again."

const answerSystemPrompt = `You are a knowledge-base assistant. Answer the user's question using ONLY the
provided context passages. If the context does not contain the answer, say so
plainly instead of guessing. Be concise and cite facts from the passages.`

// History persists question/answer pairs. Implementations must be safe for
// concurrent use.
type History interface {
	Append(ctx context.Context, question, answer string, sources []string) error
}

// Answer is the result of a retrieval-augmented generation request.
type Answer struct {
	// Answer is the generated response, or FailureAnswer when generation failed.
	Answer string `json:"answer"`
	// Sources lists the retrieved chunks the answer was grounded on, in rank order.
	Sources []SearchResult `json:"sources"`
	// Degraded is true when retrieval ran on a single branch (see ResultSet).
	Degraded bool `json:"degraded,omitempty"`
	// GenerationFailed is true when the model call failed and Answer carries
	// the failure marker instead of a real response.
	GenerationFailed bool `json:"generation_failed,omitempty"`
}

// Answerer composes retrieval and generation: it searches the engine for
// relevant chunks, packs them into a token-budgeted context block, and asks
// the chat model to answer from that context.
type Answerer struct {
	engine  *Engine
	chat    model.BaseChatModel
	history History

	maxContextTokens int
	topK             int
}

// AnswererConfig configures an Answerer. Zero values select defaults.
type AnswererConfig struct {
	// MaxContextTokens caps the estimated size of the context block passed to
	// the model. Defaults to budget.DefaultMaxContextTokens.
	MaxContextTokens int
	// TopK is how many chunks to retrieve per question. Defaults to DefaultTopK.
	TopK int
	// History, if non-nil, receives every question/answer pair. Persistence
	// failures are logged and never fail the request.
	History History
}

// NewAnswerer constructs an Answerer over an engine and a chat model.
func NewAnswerer(engine *Engine, chat model.BaseChatModel, cfg AnswererConfig) (*Answerer, error) {
	if engine == nil {
		return nil, fmt.Errorf("rag: answerer requires an engine: %w", ErrConfig)
	}
	if chat == nil {
		return nil, fmt.Errorf("rag: answerer requires a chat model: %w", ErrConfig)
	}
	if cfg.MaxContextTokens == 0 {
		cfg.MaxContextTokens = budget.DefaultMaxContextTokens
	}
	if cfg.MaxContextTokens < 0 {
		return nil, fmt.Errorf("rag: max context tokens must be positive: %w", ErrConfig)
	}
	if cfg.TopK == 0 {
		cfg.TopK = DefaultTopK
	}
	return &Answerer{
		engine:           engine,
		chat:             chat,
		history:          cfg.History,
		maxContextTokens: cfg.MaxContextTokens,
		topK:             cfg.TopK,
	}, nil
}

// Ask retrieves context for the question and generates an answer from it.
// Retrieval errors propagate; generation errors do not — a failed model call
// yields the failure marker with GenerationFailed set, because the retrieved
// sources still have value on their own.
func (a *Answerer) Ask(ctx context.Context, question string, mode SearchMode) (*Answer, error) {
	log := logging.FromContext(ctx)

	rs, err := a.engine.Search(ctx, question, a.topK, mode)
	if err != nil {
		return nil, err
	}

	out := &Answer{Sources: rs.Results, Degraded: rs.Degraded}
	if len(rs.Results) == 0 {
		out.Answer = "No relevant context was found for this question."
		a.persist(ctx, question, out)
		return out, nil
	}

	contextBlock, dropped := a.buildContext(rs.Results)
	if dropped > 0 {
		log.Warn("answer: dropped low-ranked chunks to fit context budget",
			slog.Int("dropped", dropped),
			slog.Int("retained", len(rs.Results)-dropped),
			slog.Int("max_tokens", a.maxContextTokens),
		)
	}

	messages := []*schema.Message{
		schema.SystemMessage(answerSystemPrompt),
		schema.SystemMessage(contextBlock),
		schema.UserMessage(question),
	}

	msg, err := a.chat.Generate(ctx, messages)
	if err != nil {
		log.Error("answer: generation failed", slog.Any("error", err))
		out.Answer = FailureAnswer
		out.GenerationFailed = true
		a.persist(ctx, question, out)
		return out, nil
	}

	out.Answer = msg.Content
	a.persist(ctx, question, out)
	return out, nil
}

// buildContext formats retrieved chunks into a single context block, dropping
// the lowest-ranked chunks first when the whole set exceeds the token budget.
// Returns the block and the number of chunks dropped.
func (a *Answerer) buildContext(results []SearchResult) (string, int) {
	parts := make([]string, 0, len(results))
	for i, r := range results {
		parts = append(parts, fmt.Sprintf("[%d] (document %s)\n%s", i+1, r.DocID, r.Text))
	}

	header := "Context passages:\n\n"
	kept := budget.FitParts(parts, a.maxContextTokens-budget.Estimate(header))
	return header + strings.Join(kept, "\n\n"), len(parts) - len(kept)
}

func (a *Answerer) persist(ctx context.Context, question string, ans *Answer) {
	if a.history == nil {
		return
	}
	sources := make([]string, 0, len(ans.Sources))
	for _, s := range ans.Sources {
		sources = append(sources, s.ChunkID)
	}
	if err := a.history.Append(ctx, question, ans.Answer, sources); err != nil {
		logging.FromContext(ctx).Warn("answer: failed to persist history", slog.Any("error", err))
	}
}
