package export

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"compliance/api/internal/store"
)

func ledgerStore(t *testing.T) *store.Store {
	t.Helper()
	st := store.New(store.NewMemorySnapshots(), store.SeedUsers())
	if err := st.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	err := st.Update(context.Background(), func(state *store.State) error {
		state.Evidence = append(state.Evidence,
			store.Evidence{ID: "e1", UserID: "u5", ChecklistItemID: "op1", Department: store.DeptOperations, SubmissionDate: "2024-05-02", Status: store.StatusFinalAuditCompleted, ManagerComment: "ok", CGOComment: "Signed <b>off</b>"},
			store.Evidence{ID: "e2", UserID: "u5", ChecklistItemID: "op2", Department: store.DeptOperations, Status: store.StatusRejected},
			store.Evidence{ID: "e3", UserID: "u4", ChecklistItemID: "hr1", Department: store.DeptHR, Status: store.StatusSubmitted},
		)
		state.Reports = append(state.Reports,
			store.DMAXReport{ID: "d1", UserID: "u5", UserName: "Rahul Varma", Department: store.DeptOperations, Month: "May", Year: 2024, Status: store.StatusRejected, FileName: "DMAX_Rahul_May_2024.pdf"},
		)
		return nil
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	return st
}

func user(t *testing.T, st *store.Store, id string) store.User {
	t.Helper()
	u, ok := st.Snapshot().UserByID(id)
	if !ok {
		t.Fatalf("user %s missing", id)
	}
	return u
}

func newService(st *store.Store, pdf, docx Converter) *Service {
	return NewService(st, store.DefaultCatalog(), Options{
		Clock: func() time.Time { return time.Date(2024, 5, 31, 18, 0, 0, 0, time.UTC) },
		PDF:   pdf,
		DOCX:  docx,
	})
}

func TestLedgerMatchesExecutiveView(t *testing.T) {
	st := ledgerStore(t)
	data := newService(st, nil, nil).Ledger(user(t, st, "u3"), "")

	if len(data.Evidence) != 2 {
		t.Fatalf("expected rejected evidence to be left out, got %+v", data.Evidence)
	}
	if len(data.Reports) != 1 {
		t.Fatalf("expected every DMAX report, got %+v", data.Reports)
	}
	if data.Certified != 1 {
		t.Fatalf("Certified = %d", data.Certified)
	}
	if data.Evidence[0].Task != "Daily Output Verification" || data.Evidence[0].Submitter != "Rahul Varma" {
		t.Fatalf("unexpected row %+v", data.Evidence[0])
	}
	if data.Scope != "All Departments" || data.GeneratedBy != "Suresh Kumar" {
		t.Fatalf("unexpected header %+v", data)
	}

	hr := newService(st, nil, nil).Ledger(user(t, st, "u1"), store.DeptHR)
	if len(hr.Evidence) != 1 || hr.Evidence[0].ID != "e3" || len(hr.Reports) != 0 {
		t.Fatalf("department filter not applied: %+v", hr)
	}
	if hr.Title != "Compliance Ledger - HR" {
		t.Fatalf("Title = %q", hr.Title)
	}
}

func TestExportHTML(t *testing.T) {
	st := ledgerStore(t)
	result, err := newService(st, nil, nil).Export(context.Background(), user(t, st, "u3"), Request{Format: FormatHTML})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	html := string(result.Data)
	for _, want := range []string{"Compliance Ledger", "Daily Output Verification", "May 2024", "DMAX_Rahul_May_2024.pdf", `class="status certified"`} {
		if !strings.Contains(html, want) {
			t.Errorf("ledger HTML missing %q", want)
		}
	}
	if strings.Contains(html, "Signed <b>off</b>") {
		t.Error("free text must be escaped")
	}
	if result.Filename != "Compliance-Ledger.html" {
		t.Fatalf("Filename = %q", result.Filename)
	}
}

func TestExportUsesConverters(t *testing.T) {
	st := ledgerStore(t)
	var gotTitle string
	pdf := func(_ context.Context, html, title string) (*Result, error) {
		gotTitle = title
		if !strings.Contains(html, "<table>") {
			t.Error("converter did not receive rendered ledger")
		}
		return &Result{Data: []byte("%PDF"), Filename: sanitizeFilename(title) + ".pdf", MimeType: "application/pdf"}, nil
	}
	docx := func(context.Context, string, string) (*Result, error) {
		return nil, ErrDOCXDependencyMissing
	}
	svc := newService(st, pdf, docx)

	result, err := svc.Export(context.Background(), user(t, st, "u1"), Request{Format: FormatPDF, Department: store.DeptOperations})
	if err != nil {
		t.Fatalf("Export(pdf) error = %v", err)
	}
	if gotTitle != "Compliance Ledger - Operations" || result.Filename != "Compliance-Ledger-Operations.pdf" {
		t.Fatalf("unexpected pdf result %q %q", gotTitle, result.Filename)
	}

	if _, err := svc.Export(context.Background(), user(t, st, "u1"), Request{Format: FormatDOCX}); !errors.Is(err, ErrDOCXDependencyMissing) {
		t.Fatalf("Export(docx) error = %v", err)
	}
	if _, err := svc.Export(context.Background(), user(t, st, "u1"), Request{Format: "xls"}); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("Export(xls) error = %v", err)
	}
}

func TestExportRequiresExecutiveRole(t *testing.T) {
	st := ledgerStore(t)
	svc := newService(st, nil, nil)
	for _, id := range []string{"u2", "u4", "u5"} {
		if _, err := svc.Export(context.Background(), user(t, st, id), Request{Format: FormatHTML}); !errors.Is(err, ErrNotPermitted) {
			t.Fatalf("Export() by %s error = %v", id, err)
		}
	}
}

func TestParseFormat(t *testing.T) {
	if f, ok := ParseFormat("docx"); !ok || f != FormatDOCX {
		t.Fatalf("ParseFormat(docx) = %q, %v", f, ok)
	}
	if _, ok := ParseFormat("odt"); ok {
		t.Fatal("ParseFormat(odt) accepted")
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Hello World", "Hello-World"},
		{"Compliance Ledger - IT", "Compliance-Ledger-IT"},
		{"Special!@#$%Chars", "SpecialChars"},
		{"", "ledger"},
		{"Very Long Title That Exceeds Fifty Characters Limit", "Very-Long-Title-That-Exceeds-Fifty-Characters-Limi"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := sanitizeFilename(tt.input)
			if result != tt.expected {
				t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestPercentEncodeForDataURL(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"hello world", "hello%20world"},
		{"test+sign", "test%2Bsign"},
		{"special<>", "special%3C%3E"},
		{"normal-text.txt", "normal-text.txt"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := percentEncodeForDataURL(tt.input)
			if result != tt.expected {
				t.Errorf("percentEncodeForDataURL(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}
