package search

import (
	"strings"

	"compliance/api/internal/store"
)

// Scan implements Searcher with a full pass over the current store snapshot.
// It is always available and backs the service whenever Meilisearch is not.
type Scan struct {
	store   *store.Store
	catalog store.Catalog
}

func NewScan(st *store.Store, catalog store.Catalog) *Scan {
	return &Scan{store: st, catalog: catalog}
}

// Healthy always returns true; the snapshot is in memory.
func (s *Scan) Healthy() bool {
	return true
}

// Search matches the query text case-insensitively against the same fields
// Meilisearch indexes. An empty query matches nothing.
func (s *Scan) Search(q Query) ([]Result, int, error) {
	needle := strings.ToLower(strings.TrimSpace(q.Text))
	if needle == "" {
		return nil, 0, nil
	}
	evidence, reports := Records(s.store.Snapshot(), s.catalog)

	var matches []Result
	if q.FilterType == "" || q.FilterType == ResultEvidence {
		for _, r := range evidence {
			if q.Department != "" && r.Department != string(q.Department) {
				continue
			}
			if contains(needle, r.Task, r.Comment, r.Feedback, r.UserName) {
				matches = append(matches, r.result())
			}
		}
	}
	if q.FilterType == "" || q.FilterType == ResultDMAX {
		for _, r := range reports {
			if q.Department != "" && r.Department != string(q.Department) {
				continue
			}
			if contains(needle, r.Period, r.Content, r.FileName, r.UserName) {
				matches = append(matches, r.result())
			}
		}
	}
	return page(matches, q.Offset, q.Limit), len(matches), nil
}

func contains(needle string, fields ...string) bool {
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), needle) {
			return true
		}
	}
	return false
}

func page(results []Result, offset, limit int) []Result {
	if limit <= 0 {
		limit = defaultLimit
	}
	if offset >= len(results) {
		return []Result{}
	}
	if offset < 0 {
		offset = 0
	}
	end := offset + limit
	if end > len(results) {
		end = len(results)
	}
	return results[offset:end]
}
