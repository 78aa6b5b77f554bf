package search

import (
	"strconv"

	"compliance/api/internal/store"
)

// ResultType identifies the kind of submission in a search result.
type ResultType string

const (
	ResultEvidence ResultType = "evidence"
	ResultDMAX     ResultType = "dmax"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type       ResultType       `json:"type"`
	ID         string           `json:"id"`
	Title      string           `json:"title"`
	Snippet    string           `json:"snippet"`
	UserID     string           `json:"userId"`
	UserName   string           `json:"userName"`
	Department store.Department `json:"department"`
	Status     store.Status     `json:"status"`
}

// Query describes a search request.
type Query struct {
	Text       string
	FilterType ResultType // empty = all types
	Department store.Department
	Limit      int
	Offset     int
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

// EvidenceRecord is the data we index for a piece of evidence.
type EvidenceRecord struct {
	ID         string `json:"id"`
	Task       string `json:"task"`
	Comment    string `json:"comment"`
	Feedback   string `json:"feedback"`
	UserID     string `json:"userId"`
	UserName   string `json:"userName"`
	Department string `json:"department"`
	Status     string `json:"status"`
}

// ReportRecord is the data we index for a DMAX report.
type ReportRecord struct {
	ID         string `json:"id"`
	Period     string `json:"period"`
	Content    string `json:"content"`
	FileName   string `json:"fileName"`
	UserID     string `json:"userId"`
	UserName   string `json:"userName"`
	Department string `json:"department"`
	Status     string `json:"status"`
}

// Records builds the searchable view of every submission in state. Evidence
// carries no submitter name, so it is looked up in the user directory.
func Records(state store.State, catalog store.Catalog) ([]EvidenceRecord, []ReportRecord) {
	names := make(map[string]string, len(state.Users))
	for _, u := range state.Users {
		names[u.ID] = u.Name
	}
	evidence := make([]EvidenceRecord, 0, len(state.Evidence))
	for _, e := range state.Evidence {
		evidence = append(evidence, EvidenceRecordOf(e, catalog.TaskLabel(e.ChecklistItemID), names[e.UserID]))
	}
	reports := make([]ReportRecord, 0, len(state.Reports))
	for _, r := range state.Reports {
		reports = append(reports, ReportRecordOf(r))
	}
	return evidence, reports
}

func EvidenceRecordOf(e store.Evidence, task, userName string) EvidenceRecord {
	return EvidenceRecord{
		ID:         e.ID,
		Task:       task,
		Comment:    e.Comment,
		Feedback:   e.ManagerComment,
		UserID:     e.UserID,
		UserName:   userName,
		Department: string(e.Department),
		Status:     string(e.Status),
	}
}

func ReportRecordOf(r store.DMAXReport) ReportRecord {
	return ReportRecord{
		ID:         r.ID,
		Period:     r.Month + " " + strconv.Itoa(r.Year),
		Content:    r.Content,
		FileName:   r.FileName,
		UserID:     r.UserID,
		UserName:   r.UserName,
		Department: string(r.Department),
		Status:     string(r.Status),
	}
}

func (r EvidenceRecord) result() Result {
	return Result{
		Type:       ResultEvidence,
		ID:         r.ID,
		Title:      r.Task,
		Snippet:    r.Comment,
		UserID:     r.UserID,
		UserName:   r.UserName,
		Department: store.Department(r.Department),
		Status:     store.Status(r.Status),
	}
}

func (r ReportRecord) result() Result {
	return Result{
		Type:       ResultDMAX,
		ID:         r.ID,
		Title:      "DMAX " + r.Period + " - " + r.UserName,
		Snippet:    r.Content,
		UserID:     r.UserID,
		UserName:   r.UserName,
		Department: store.Department(r.Department),
		Status:     store.Status(r.Status),
	}
}
