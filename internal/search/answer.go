package search

import (
	"context"
	"log/slog"
	"time"

	"github.com/Aman-CERP/noterag/internal/llm"
)

// Answer streaming parameters. The model call is not streamed; the
// full answer is re-cut into small fragments with a short pause so the
// client renders progressively.
const (
	answerFragmentRunes = 10
	answerFragmentDelay = 50 * time.Millisecond
)

// AnswerGenerator produces an answer from retrieval results.
type AnswerGenerator interface {
	GenerateAnswer(ctx context.Context, query string, local, web []llm.Passage) (string, error)
}

// Answerer turns retrieval results into a streamed answer.
type Answerer struct {
	llm    AnswerGenerator
	logger *slog.Logger

	// fragmentDelay is shortened in tests.
	fragmentDelay time.Duration
}

// NewAnswerer wires an answer streamer.
func NewAnswerer(generator AnswerGenerator, logger *slog.Logger) *Answerer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Answerer{
		llm:           generator,
		logger:        logger,
		fragmentDelay: answerFragmentDelay,
	}
}

// Stream generates an answer and emits it in fragments. When the
// model fails, the fallback answer is emitted as a single fragment and
// no error is returned; the user still sees their retrieval results.
func (a *Answerer) Stream(ctx context.Context, query string, results []Result, emit func(fragment string) error) error {
	local, web := splitPassages(results)

	answer, err := a.llm.GenerateAnswer(ctx, query, local, web)
	if err != nil {
		a.logger.Error("answer_generation_failed", slog.String("error", err.Error()))
		return emit(llm.FallbackAnswer(query, local, web))
	}

	runes := []rune(answer)
	for start := 0; start < len(runes); start += answerFragmentRunes {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := start + answerFragmentRunes
		if end > len(runes) {
			end = len(runes)
		}
		if err := emit(string(runes[start:end])); err != nil {
			return err
		}
		if a.fragmentDelay > 0 {
			select {
			case <-time.After(a.fragmentDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	return nil
}

// splitPassages separates results by source and maps them into prompt
// passages, preserving order.
func splitPassages(results []Result) (local, web []llm.Passage) {
	for _, r := range results {
		passage := llm.Passage{Title: r.Title, Content: r.Content}
		if r.Source == SourceWeb {
			web = append(web, passage)
		} else {
			local = append(local, passage)
		}
	}
	return local, web
}
