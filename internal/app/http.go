package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"compliance/api/internal/admin"
	"compliance/api/internal/attachment"
	"compliance/api/internal/export"
	"compliance/api/internal/rbac"
	"compliance/api/internal/search"
	"compliance/api/internal/store"
	"compliance/api/internal/workflow"
)

const maxUploadMemory = 32 << 20

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{}
		for name, err := range s.service.Ready(ctx) {
			if err != nil {
				status = "not_ready"
				statusCode = http.StatusServiceUnavailable
				checks[name] = map[string]any{
					"status": "error",
					"error":  err.Error(),
				}
				continue
			}
			checks[name] = map[string]any{"status": "ok"}
		}

		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/metrics" {
		handler := s.service.MetricsHandler()
		if handler == nil {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
			return
		}
		handler.ServeHTTP(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/session" {
		authenticated := false
		if token := bearerToken(r); token != "" {
			if _, err := s.service.Authenticate(r.Context(), token); err == nil {
				authenticated = true
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"authenticated": authenticated,
			"session":       s.service.SessionState(),
		})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/session/open" {
		writeJSON(w, http.StatusOK, map[string]any{"session": s.service.OpenSession()})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/session/login" {
		var body struct {
			Email string `json:"email"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		session, err := s.service.Login(r.Context(), body.Email)
		if err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"token":     session.Token,
			"expiresAt": session.ExpiresAt,
			"user":      session.User,
			"session":   s.service.SessionState(),
		})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/session/logout" {
		if token := bearerToken(r); token != "" {
			if _, err := s.service.Authenticate(r.Context(), token); err == nil {
				if err := s.service.Logout(r.Context(), token); err != nil {
					respondError(w, err)
					return
				}
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	viewer, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/session/tab" {
		var body struct {
			Tab string `json:"tab"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		state, err := s.service.SetTab(rbac.Tab(strings.TrimSpace(body.Tab)))
		if err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"session": state})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/checklist" {
		writeJSON(w, http.StatusOK, map[string]any{"items": s.service.Checklist(viewer)})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/dashboard" {
		writeJSON(w, http.StatusOK, s.service.Dashboard(viewer))
		return
	}

	if r.URL.Path == "/api/profile" {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, map[string]any{"user": viewer})
		case http.MethodPut:
			var body admin.ProfileInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			updated, err := s.service.UpdateProfile(r.Context(), viewer, body)
			if err != nil {
				respondError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"user": updated})
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if r.URL.Path == "/api/evidence" || r.URL.Path == "/api/dmax" {
		s.handleSubmissions(w, r, viewer)
		return
	}

	parts := splitPath(r.URL.Path)

	if len(parts) == 4 && parts[0] == "api" && (parts[1] == "evidence" || parts[1] == "dmax") {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}
		s.handleTransition(w, r, viewer, parts[1], parts[2], parts[3])
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/search" {
		s.handleSearch(w, r, viewer)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/ledger/export" {
		var body struct {
			Format     string `json:"format"`
			Department string `json:"department"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		format, valid := export.ParseFormat(strings.ToLower(strings.TrimSpace(body.Format)))
		if !valid {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "format must be 'pdf', 'docx' or 'html'", nil)
			return
		}
		dept, valid := parseDepartment(body.Department)
		if !valid {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "unknown department", nil)
			return
		}
		result, err := s.service.ExportLedger(r.Context(), viewer, export.Request{Format: format, Department: dept})
		if err != nil {
			respondError(w, err)
			return
		}
		w.Header().Set("Content-Disposition", "attachment; filename=\""+result.Filename+"\"")
		w.Header().Set("Content-Type", result.MimeType)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(result.Data)
		return
	}

	if len(parts) >= 3 && parts[0] == "api" && parts[1] == "admin" {
		s.handleAdmin(w, r, viewer, parts[2:])
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleSubmissions(w http.ResponseWriter, r *http.Request, viewer store.User) {
	isEvidence := r.URL.Path == "/api/evidence"

	switch r.Method {
	case http.MethodGet:
		view, valid := workflow.ParseView(strings.TrimSpace(r.URL.Query().Get("view")))
		if !valid {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "view must be 'mine', 'queue' or 'executive'", nil)
			return
		}
		dept, valid := parseDepartment(r.URL.Query().Get("department"))
		if !valid {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "unknown department", nil)
			return
		}
		if isEvidence {
			writeJSON(w, http.StatusOK, map[string]any{"items": s.service.Evidence(viewer, view, dept)})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": s.service.Reports(viewer, view, dept)})

	case http.MethodPost:
		form, err := readSubmission(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if form.closeFile != nil {
			defer form.closeFile()
		}

		if isEvidence {
			created, err := s.service.SubmitEvidence(r.Context(), viewer, workflow.EvidenceInput{
				ChecklistItemID: form.ChecklistItemID,
				Comment:         form.Comment,
				File:            form.file,
			})
			if err != nil {
				respondError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, map[string]any{"evidence": created})
			return
		}

		created, err := s.service.SubmitDMAX(r.Context(), viewer, workflow.DMAXInput{
			Month:   form.Month,
			Year:    form.Year,
			Content: form.Content,
			File:    form.file,
		})
		if err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"report": created})

	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

func (s *HTTPServer) handleTransition(w http.ResponseWriter, r *http.Request, viewer store.User, entity, id, action string) {
	var body struct {
		Comment string `json:"comment"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	if entity == "evidence" {
		updated, err := s.service.TransitionEvidence(r.Context(), viewer, id, action, body.Comment)
		if err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"evidence": updated})
		return
	}

	updated, err := s.service.TransitionDMAX(r.Context(), viewer, id, action)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"report": updated})
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request, viewer store.User) {
	query := r.URL.Query()
	q := search.Query{
		Text:       strings.TrimSpace(query.Get("q")),
		FilterType: search.ResultType(strings.TrimSpace(query.Get("type"))),
		Limit:      20,
	}
	dept, valid := parseDepartment(query.Get("department"))
	if !valid {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "unknown department", nil)
		return
	}
	q.Department = dept
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "limit must be an integer", nil)
			return
		}
		q.Limit = parsed
	}
	if raw := strings.TrimSpace(query.Get("offset")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "offset must be an integer", nil)
			return
		}
		q.Offset = parsed
	}
	if q.Limit <= 0 || q.Limit > 100 {
		q.Limit = 20
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	writeJSON(w, http.StatusOK, s.service.Search(viewer, q))
}

func (s *HTTPServer) handleAdmin(w http.ResponseWriter, r *http.Request, viewer store.User, parts []string) {
	switch {
	case len(parts) == 1 && parts[0] == "users" && r.Method == http.MethodGet:
		users, err := s.service.Users(viewer, r.URL.Query().Get("q"))
		if err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"users": users})

	case len(parts) == 1 && parts[0] == "users" && r.Method == http.MethodPost:
		var body admin.UserInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		created, err := s.service.ProvisionUser(r.Context(), viewer, body)
		if err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"user": created})

	case len(parts) == 2 && parts[0] == "users" && r.Method == http.MethodPut:
		var body admin.UserInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		updated, err := s.service.UpdateUser(r.Context(), viewer, parts[1], body)
		if err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"user": updated})

	case len(parts) == 3 && parts[0] == "users" && parts[2] == "toggle" && r.Method == http.MethodPost:
		updated, err := s.service.ToggleActive(r.Context(), viewer, parts[1])
		if err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"user": updated})

	case len(parts) == 1 && parts[0] == "activity" && r.Method == http.MethodGet:
		entries, err := s.service.Activity(viewer, r.URL.Query().Get("q"))
		if err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"entries": entries})

	case len(parts) == 1 && parts[0] == "defaulters" && r.Method == http.MethodGet:
		period, err := parsePeriod(r.URL.Query().Get("month"), r.URL.Query().Get("year"))
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
			return
		}
		users, resolved, err := s.service.Defaulters(viewer, period)
		if err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"period": resolved, "users": users})

	case len(parts) == 1 && parts[0] == "reminders" && r.Method == http.MethodPost:
		var body admin.Period
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		result, err := s.service.SendReminders(r.Context(), viewer, body)
		if err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (store.User, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return store.User{}, false
	}
	viewer, err := s.service.Authenticate(r.Context(), token)
	if err != nil {
		status, code, message, details := mapError(err)
		if status == http.StatusInternalServerError {
			writeError(w, status, "SERVER_ERROR", "Session lookup failed", nil)
			return store.User{}, false
		}
		writeError(w, status, code, message, details)
		return store.User{}, false
	}
	if err := s.service.RequireActive(); err != nil {
		respondError(w, err)
		return store.User{}, false
	}
	return viewer, true
}

// submissionForm is the union of the evidence and DMAX submission fields,
// read from either a multipart form or a JSON body.
type submissionForm struct {
	ChecklistItemID string `json:"checklistItemId"`
	Comment         string `json:"comment"`
	Month           string `json:"month"`
	Year            int    `json:"year"`
	Content         string `json:"content"`

	file      *attachment.File
	closeFile func() error
}

func readSubmission(r *http.Request) (submissionForm, error) {
	var form submissionForm
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		err := decodeBody(r, &form)
		return form, err
	}

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		return form, fmt.Errorf("invalid multipart body")
	}
	form.ChecklistItemID = r.FormValue("checklistItemId")
	form.Comment = r.FormValue("comment")
	form.Month = r.FormValue("month")
	form.Content = r.FormValue("content")
	if raw := strings.TrimSpace(r.FormValue("year")); raw != "" {
		year, err := strconv.Atoi(raw)
		if err != nil {
			return form, fmt.Errorf("year must be an integer")
		}
		form.Year = year
	}

	file, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return form, nil
	}
	if err != nil {
		return form, fmt.Errorf("invalid file upload")
	}
	form.file = &attachment.File{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	}
	form.closeFile = file.Close
	return form, nil
}

func parseDepartment(value string) (store.Department, bool) {
	dept := store.Department(strings.TrimSpace(value))
	if dept == "" {
		return "", true
	}
	if dept == store.DeptLegacyProduction {
		return store.DeptOperations, true
	}
	return dept, dept.Valid()
}

func parsePeriod(month, year string) (admin.Period, error) {
	p := admin.Period{Month: strings.TrimSpace(month)}
	if raw := strings.TrimSpace(year); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return admin.Period{}, fmt.Errorf("year must be an integer")
		}
		p.Year = parsed
	}
	return p, nil
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func respondError(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	if status == http.StatusInternalServerError {
		log.Printf("request failed: %v", err)
	}
	writeError(w, status, code, message, details)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) || errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
