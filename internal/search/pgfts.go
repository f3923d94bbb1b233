package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search over the
// current section text. It is the fallback when Meilisearch is unavailable.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true; if Postgres is down the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

const sectionVector = "to_tsvector('english', title || ' ' || content)"

// Search ranks plan_sections rows with plainto_tsquery and ts_rank and uses
// ts_headline for snippets. Status is derived by the caller, so a status
// filter is ignored here.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}
	limit := normalizeLimit(q.Limit)
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	tsQuery := "plainto_tsquery('english', $1)"
	where := sectionVector + " @@ " + tsQuery
	args := []any{q.Text}
	if q.PlanID != "" {
		where += " AND plan_id = $2"
		args = append(args, q.PlanID)
	}

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, "SELECT count(*) FROM plan_sections WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	dataSQL := fmt.Sprintf(`SELECT section_id, title,
			ts_headline('english', content, %s, 'MaxFragments=1,MaxWords=30') AS snippet
		FROM plan_sections
		WHERE %s
		ORDER BY ts_rank(%s, %s) DESC, sort_order, section_id
		LIMIT %d OFFSET %d`, tsQuery, where, sectionVector, tsQuery, limit, offset)
	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.SectionID, &r.Title, &r.Snippet); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}
	return results, total, rows.Err()
}
