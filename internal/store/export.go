package store

import (
	"context"
	"fmt"

	"github.com/rcliao/meridian/internal/model"
)

// Seed is the portable form of the reference material: knowledge entries
// and the historical case library.
type Seed struct {
	Knowledge []model.KnowledgeEntry `json:"knowledge"`
	Cases     []model.HistoricalCase `json:"historical_cases"`
}

// ExportSeed returns all reference material. Embeddings are dropped unless
// withEmbeddings is set, since they are large and provider specific.
func (s *SQLiteStore) ExportSeed(ctx context.Context, withEmbeddings bool) (*Seed, error) {
	knowledge, err := s.ListKnowledge(ctx, "")
	if err != nil {
		return nil, err
	}
	cases, err := s.ListCases(ctx)
	if err != nil {
		return nil, err
	}
	if !withEmbeddings {
		for i := range cases {
			cases[i].Embedding = nil
		}
	}
	if knowledge == nil {
		knowledge = []model.KnowledgeEntry{}
	}
	if cases == nil {
		cases = []model.HistoricalCase{}
	}
	return &Seed{Knowledge: knowledge, Cases: cases}, nil
}

// ImportSeed stores knowledge and cases from a seed. Existing rows with the
// same keys are replaced.
func (s *SQLiteStore) ImportSeed(ctx context.Context, seed *Seed) (knowledge, cases int, err error) {
	if len(seed.Knowledge) > 0 {
		knowledge, err = s.PutKnowledge(ctx, seed.Knowledge)
		if err != nil {
			return 0, 0, fmt.Errorf("import knowledge: %w", err)
		}
	}
	if len(seed.Cases) > 0 {
		cases, err = s.PutCases(ctx, seed.Cases)
		if err != nil {
			return knowledge, 0, fmt.Errorf("import cases: %w", err)
		}
	}
	return knowledge, cases, nil
}
