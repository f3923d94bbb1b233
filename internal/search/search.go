package search

// Result is a single search hit returned to the caller.
type Result struct {
	SectionID string `json:"sectionId"`
	Title     string `json:"title"`
	Snippet   string `json:"snippet"`
	Status    string `json:"status,omitempty"`
}

// Query describes a search request.
type Query struct {
	Text   string
	PlanID string
	Status string // empty = any status
	Limit  int
	Offset int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// SectionRecord is the data we index for a plan section.
type SectionRecord struct {
	ID        string `json:"id"`
	PlanID    string `json:"planId"`
	SectionID string `json:"sectionId"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	Status    string `json:"status"`
}

// RecordID is the index primary key for a section of a plan. Meilisearch keys
// only allow alphanumerics, hyphens and underscores.
func RecordID(planID, sectionID string) string {
	return keySafe(planID) + "__" + keySafe(sectionID)
}

func keySafe(value string) string {
	out := make([]rune, 0, len(value))
	for _, r := range value {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			out = append(out, r)
			continue
		}
		out = append(out, '_')
	}
	return string(out)
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	return limit
}
