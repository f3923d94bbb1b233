package search

import (
	"context"

	"coparent/api/internal/logger"
)

// Service is the facade that tries Meilisearch first and falls back to the
// database-backed searcher.
type Service struct {
	meili    *Meili
	fallback Searcher
	log      *logger.Logger
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, fallback Searcher, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{meili: meili, fallback: fallback, log: log.Component("search")}
}

func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		s.log.Warn().Err(err).Msg("meilisearch error, falling back")
	}

	if s.fallback == nil || !s.fallback.Healthy() {
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	results, total, err := s.fallback.Search(q)
	if err != nil {
		s.log.Error().Err(err).Msg("fallback search failed")
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexSection pushes one section to Meilisearch in the background.
func (s *Service) IndexSection(record SectionRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexSections([]SectionRecord{record}); err != nil {
			s.log.Warn().Err(err).Str("section", record.SectionID).Msg("index section")
		}
	}()
}

// ReindexAll loads every section and pushes it to Meilisearch. Called at
// startup once the plan has been seeded.
func (s *Service) ReindexAll(ctx context.Context, load func(ctx context.Context) ([]SectionRecord, error)) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	records, err := load(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("reindex load failed")
		return
	}
	if err := s.meili.IndexSections(records); err != nil {
		s.log.Warn().Err(err).Msg("reindex sections")
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
