package search

import (
	"log"

	"compliance/api/internal/store"
	"compliance/api/internal/visibility"
)

// Service is the facade that tries Meilisearch first and falls back to a
// scan of the in-memory snapshot. Hits the viewer may not see are dropped.
type Service struct {
	meili    *Meili
	scan     *Scan
	resolver visibility.Resolver
	catalog  store.Catalog
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, scan *Scan, resolver visibility.Resolver, catalog store.Catalog) *Service {
	return &Service{meili: meili, scan: scan, resolver: resolver, catalog: catalog}
}

func (s *Service) Search(viewer store.User, q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, _, err := s.meili.Search(q)
		if err == nil {
			return s.respond(viewer, q, results)
		}
		log.Printf("search: meilisearch error, falling back to scan: %v", err)
	}

	results, _, err := s.scan.Search(q)
	if err != nil {
		log.Printf("search: scan error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return s.respond(viewer, q, results)
}

func (s *Service) respond(viewer store.User, q Query, results []Result) Response {
	visible := make([]Result, 0, len(results))
	for _, r := range results {
		if s.resolver.Sees(viewer, r.UserID, r.Department) {
			visible = append(visible, r)
		}
	}
	return Response{Results: visible, Total: len(visible), Query: q.Text}
}

// Sync pushes every submission in state to Meilisearch (fire-and-forget).
// Records are upserted by id, so status changes overwrite older entries.
func (s *Service) Sync(state store.State) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	evidence, reports := Records(state, s.catalog)
	go func() {
		if err := s.meili.IndexEvidence(evidence); err != nil {
			log.Printf("search: index evidence: %v", err)
		}
		if err := s.meili.IndexReports(reports); err != nil {
			log.Printf("search: index dmax reports: %v", err)
		}
	}()
}
