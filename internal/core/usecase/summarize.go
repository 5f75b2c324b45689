package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/pdf-summarizer/internal/core/domain"
	"github.com/kirillkom/pdf-summarizer/internal/core/ports"
)

const (
	PhaseSimple = "simple"
	PhaseMap    = "map"
	PhaseReduce = "reduce"
)

const defaultMapConcurrency = 4

// LLMCallObserver receives one callback per completed LLM call.
type LLMCallObserver interface {
	ObserveLLMCall(phase string, duration time.Duration, err error)
}

type SummarizerOptions struct {
	MapConcurrency int
	Observer       LLMCallObserver
}

// Summarizer produces a summary with a single call for short text and a
// map-reduce over chunks otherwise.
type Summarizer struct {
	llm            ports.LLMClient
	chunker        ports.Chunker
	mapConcurrency int
	observer       LLMCallObserver
}

func NewSummarizer(llm ports.LLMClient, chunker ports.Chunker, opts SummarizerOptions) *Summarizer {
	if opts.MapConcurrency <= 0 {
		opts.MapConcurrency = defaultMapConcurrency
	}
	return &Summarizer{
		llm:            llm,
		chunker:        chunker,
		mapConcurrency: opts.MapConcurrency,
		observer:       opts.Observer,
	}
}

func (s *Summarizer) Summarize(ctx context.Context, text string) (string, error) {
	chunks := s.chunker.Split(text)
	switch len(chunks) {
	case 0:
		return "", domain.WrapError(domain.ErrEmptyContent, "summarize", errors.New("no chunks to summarize"))
	case 1:
		return s.complete(ctx, PhaseSimple, simpleSummaryPrompt(text))
	default:
		return s.mapReduce(ctx, chunks)
	}
}

func (s *Summarizer) mapReduce(ctx context.Context, chunks []domain.Chunk) (string, error) {
	partials := make([]string, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.mapConcurrency)
	for idx, chunk := range chunks {
		g.Go(func() error {
			out, err := s.complete(gctx, PhaseMap, sectionSummaryPrompt(strings.TrimSpace(chunk.Text)))
			if err != nil {
				return fmt.Errorf("chunk %d: %w", chunk.Index, err)
			}
			partials[idx] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	return s.complete(ctx, PhaseReduce, combineSummaryPrompt(strings.Join(partials, "\n\n")))
}

func (s *Summarizer) complete(ctx context.Context, phase string, prompt domain.Prompt) (string, error) {
	started := time.Now()
	out, err := s.llm.Complete(ctx, prompt)
	out = strings.TrimSpace(out)
	if err == nil && out == "" {
		err = errors.New("empty completion")
	}
	if s.observer != nil {
		s.observer.ObserveLLMCall(phase, time.Since(started), err)
	}
	if err != nil {
		return "", domain.WrapError(domain.ErrSummarization, phase+" summary", err)
	}
	return out, nil
}
