package export

import (
	"context"
	"fmt"
	"time"

	"compliance/api/internal/rbac"
	"compliance/api/internal/store"
	"compliance/api/internal/visibility"
)

type Options struct {
	Clock func() time.Time
	PDF   Converter
	DOCX  Converter
}

// Service exports the executive compliance view.
type Service struct {
	store   *store.Store
	catalog store.Catalog
	now     func() time.Time
	pdf     Converter
	docx    Converter
}

func NewService(st *store.Store, catalog store.Catalog, opts Options) *Service {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.PDF == nil {
		opts.PDF = exportPDF
	}
	if opts.DOCX == nil {
		opts.DOCX = exportDOCX
	}
	return &Service{store: st, catalog: catalog, now: opts.Clock, pdf: opts.PDF, docx: opts.DOCX}
}

// Export renders the ledger the viewer sees on the executive tab: evidence
// past review and every DMAX report, optionally for one department.
func (s *Service) Export(ctx context.Context, viewer store.User, req Request) (*Result, error) {
	if !viewer.IsActive || !rbac.Can(viewer.Role, rbac.ActionExportLedger) {
		return nil, ErrNotPermitted
	}

	data := s.Ledger(viewer, req.Department)
	html, err := RenderLedgerHTML(data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	switch req.Format {
	case FormatPDF:
		return s.pdf(ctx, html, data.Title)
	case FormatDOCX:
		return s.docx(ctx, html, data.Title)
	case FormatHTML:
		return &Result{
			Data:     []byte(html),
			Filename: sanitizeFilename(data.Title) + ".html",
			MimeType: "text/html; charset=utf-8",
		}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, req.Format)
	}
}

// Ledger assembles the template data without rendering it.
func (s *Service) Ledger(viewer store.User, dept store.Department) TemplateData {
	state := s.store.Snapshot()
	names := make(map[string]string, len(state.Users))
	for _, u := range state.Users {
		names[u.ID] = u.Name
	}

	title := "Compliance Ledger"
	scope := "All Departments"
	if dept != "" {
		scope = string(dept)
		title += " - " + scope
	}
	data := TemplateData{
		Title:       title,
		Scope:       scope,
		GeneratedBy: viewer.Name,
		GeneratedAt: s.now(),
		Evidence:    []EvidenceRow{},
		Reports:     []ReportRow{},
	}

	for _, e := range visibility.Executive(viewer, dept, state.Evidence) {
		data.Evidence = append(data.Evidence, EvidenceRow{
			ID:         e.ID,
			Task:       s.catalog.TaskLabel(e.ChecklistItemID),
			Submitter:  names[e.UserID],
			Department: string(e.Department),
			Submitted:  e.SubmissionDate,
			Status:     string(e.Status),
			Feedback:   e.ManagerComment,
			SignOff:    e.CGOComment,
		})
		if e.Status == store.StatusFinalAuditCompleted {
			data.Certified++
		}
	}
	for _, r := range visibility.Executive(viewer, dept, state.Reports) {
		data.Reports = append(data.Reports, ReportRow{
			ID:         r.ID,
			Submitter:  r.UserName,
			Department: string(r.Department),
			Period:     fmt.Sprintf("%s %d", r.Month, r.Year),
			Status:     string(r.Status),
			FileName:   r.FileName,
		})
		if r.Status == store.StatusFinalAuditCompleted {
			data.Certified++
		}
	}
	return data
}
