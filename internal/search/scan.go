package search

import (
	"context"
	"sort"
	"strings"
	"unicode"
)

// ScanSearcher matches query terms against records loaded on every search.
// It backs the in-memory deployment, where there is neither Meilisearch nor
// PostgreSQL to query.
type ScanSearcher struct {
	load func(ctx context.Context) ([]SectionRecord, error)
}

func NewScanSearcher(load func(ctx context.Context) ([]SectionRecord, error)) *ScanSearcher {
	return &ScanSearcher{load: load}
}

func (s *ScanSearcher) Healthy() bool {
	return s.load != nil
}

// Search returns records containing every query term, case-insensitively,
// ordered by how many times the terms occur. Title matches count double.
func (s *ScanSearcher) Search(q Query) ([]Result, int, error) {
	terms := strings.FieldsFunc(strings.ToLower(q.Text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	if len(terms) == 0 {
		return nil, 0, nil
	}
	records, err := s.load(context.Background())
	if err != nil {
		return nil, 0, err
	}

	type scored struct {
		record SectionRecord
		score  int
	}
	var hits []scored
	for _, record := range records {
		if q.PlanID != "" && record.PlanID != q.PlanID {
			continue
		}
		if q.Status != "" && record.Status != q.Status {
			continue
		}
		title := strings.ToLower(record.Title)
		content := strings.ToLower(record.Content)
		score := 0
		for _, term := range terms {
			n := 2*strings.Count(title, term) + strings.Count(content, term)
			if n == 0 {
				score = 0
				break
			}
			score += n
		}
		if score > 0 {
			hits = append(hits, scored{record: record, score: score})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].score > hits[j].score
	})

	total := len(hits)
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	end := offset + normalizeLimit(q.Limit)
	if end > total {
		end = total
	}

	results := make([]Result, 0, end-offset)
	for _, hit := range hits[offset:end] {
		results = append(results, Result{
			SectionID: hit.record.SectionID,
			Title:     hit.record.Title,
			Snippet:   snippet(hit.record.Content, terms[0], 30),
			Status:    hit.record.Status,
		})
	}
	return results, total, nil
}

// snippet returns up to words words of content around the first occurrence of term.
func snippet(content, term string, words int) string {
	fields := strings.Fields(content)
	start := 0
	for i, field := range fields {
		if strings.Contains(strings.ToLower(field), term) {
			start = i - words/3
			break
		}
	}
	if start < 0 {
		start = 0
	}
	end := start + words
	if end > len(fields) {
		end = len(fields)
	}
	return strings.Join(fields[start:end], " ")
}
