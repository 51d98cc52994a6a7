package cli

import (
	"context"

	"github.com/rcliao/meridian/internal/analysis"
	"github.com/rcliao/meridian/internal/digest"
	"github.com/rcliao/meridian/internal/embedding"
	"github.com/rcliao/meridian/internal/intake"
	"github.com/rcliao/meridian/internal/model"
	"github.com/rcliao/meridian/internal/precedent"
	"github.com/rcliao/meridian/internal/provider"
	"github.com/rcliao/meridian/internal/scoring"
	"github.com/rcliao/meridian/internal/store"
	"github.com/rcliao/meridian/internal/transmission"
)

func newEmbedder() embedding.Embedder {
	return embedding.New(embedding.Config{
		Provider: cfg.Embedding.Provider,
		Model:    cfg.Embedding.Model,
		BaseURL:  cfg.Embedding.BaseURL,
		APIKey:   cfg.Embedding.APIKey,
		Dims:     cfg.Embedding.Dims,
	})
}

func newMatcher(s *store.SQLiteStore) *precedent.Matcher {
	return precedent.NewMatcher(s, newEmbedder(), cfg.Precedent.TopK)
}

func newFetcher() *intake.FeedFetcher {
	return intake.NewFeedFetcher(intake.FetchOptions{
		Timeout:      cfg.Intake.Timeout,
		FetchBody:    cfg.Intake.FetchBody,
		MinBodyChars: cfg.Intake.MinBodyChars,
	})
}

func configuredFeeds() []intake.Feed {
	if len(cfg.Intake.Feeds) == 0 {
		return intake.DefaultFeeds
	}
	feeds := make([]intake.Feed, len(cfg.Intake.Feeds))
	for i, f := range cfg.Intake.Feeds {
		feeds[i] = intake.Feed{Source: f.Source, URL: f.URL}
	}
	return feeds
}

func newOrchestrator(ctx context.Context, s *store.SQLiteStore) (*analysis.Orchestrator, error) {
	ev := transmission.NewEvaluator()
	p, err := provider.New(ctx, cfg.LLM, ev)
	if err != nil {
		return nil, err
	}
	return analysis.New(s, newMatcher(s), p, ev, analysis.Config{
		TopK:            cfg.Precedent.TopK,
		MaxAttempts:     cfg.LLM.MaxAttempts,
		BaseDelay:       cfg.LLM.BaseDelay,
		Lease:           cfg.Analysis.Lease,
		KnowledgeBudget: cfg.Analysis.KnowledgeBudget,
		BatchLimit:      cfg.Analysis.BatchLimit,
	}), nil
}

func newAssembler(s *store.SQLiteStore) (*digest.Assembler, error) {
	dir := digest.NewSnapshotDir(cfg.Digest.SnapshotDir)
	return digest.New(s, cfg.Digest, digest.Sources{Market: dir, Calendar: dir, Theses: dir})
}

// intakeOnce polls every configured feed and stores the items.
func intakeOnce(ctx context.Context, s *store.SQLiteStore) (model.RunReport, error) {
	payloads, fetched := newFetcher().FetchAll(ctx, configuredFeeds())
	report := intake.NewNormalizer(s, cfg.Intake.Bucket).IngestBatch(ctx, payloads)
	report.Failed += fetched.Failed
	return report, nil
}

func scoreOnce(ctx context.Context, s *store.SQLiteStore) (model.RunReport, error) {
	sum, err := scoring.New(cfg.Scoring, s).ScorePending(ctx, cfg.Scoring.BatchLimit, false)
	if sum == nil {
		return model.RunReport{}, err
	}
	return sum.RunReport, err
}

func analyzeOnce(ctx context.Context, s *store.SQLiteStore) (model.RunReport, error) {
	o, err := newOrchestrator(ctx, s)
	if err != nil {
		return model.RunReport{}, err
	}
	rep, err := o.AnalyzePending(ctx, analysis.BatchOptions{})
	if rep == nil {
		return model.RunReport{}, err
	}
	return rep.RunReport, err
}

// digestToday refreshes today's digest only when its upstream changed.
func digestToday(ctx context.Context, s *store.SQLiteStore) (model.RunReport, error) {
	a, err := newAssembler(s)
	if err != nil {
		return model.RunReport{}, err
	}
	d, err := a.Get(ctx, a.Today())
	if err != nil {
		return model.RunReport{Failed: 1}, err
	}
	if d.Regenerated {
		return model.RunReport{Processed: 1}, nil
	}
	return model.RunReport{Skipped: 1}, nil
}
