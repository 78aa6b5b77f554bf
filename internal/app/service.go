package app

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"compliance/api/internal/admin"
	"compliance/api/internal/auth"
	"compliance/api/internal/config"
	"compliance/api/internal/export"
	"compliance/api/internal/metrics"
	"compliance/api/internal/rbac"
	"compliance/api/internal/search"
	"compliance/api/internal/session"
	"compliance/api/internal/store"
	"compliance/api/internal/util"
	"compliance/api/internal/visibility"
	"compliance/api/internal/workflow"
)

// Session is the bearer token handed out at login together with the user it
// was issued for.
type Session struct {
	Token     string     `json:"token"`
	User      store.User `json:"user"`
	ExpiresAt time.Time  `json:"expiresAt"`
}

// Components are the collaborators the Service fronts. Store, Engine,
// Session, Tokens, Directory, Search and Export are required.
type Components struct {
	Store     *store.Store
	Engine    *workflow.Engine
	Session   *session.Controller
	Tokens    session.Registry
	Directory *admin.Directory
	Search    *search.Service
	Export    *export.Service
	Metrics   *metrics.Metrics
	// Checks are run by the readiness probe, keyed by the name reported.
	Checks map[string]func(context.Context) error
	Clock  func() time.Time
}

type Service struct {
	cfg       config.Config
	store     *store.Store
	engine    *workflow.Engine
	session   *session.Controller
	tokens    session.Registry
	directory *admin.Directory
	search    *search.Service
	export    *export.Service
	metrics   *metrics.Metrics
	checks    map[string]func(context.Context) error
	now       func() time.Time

	mu sync.Mutex
	// tokenHash identifies the bearer token of the signed-in session. A new
	// login revokes it.
	tokenHash string
}

func New(cfg config.Config, c Components) *Service {
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 8 * time.Hour
	}
	return &Service{
		cfg:       cfg,
		store:     c.Store,
		engine:    c.Engine,
		session:   c.Session,
		tokens:    c.Tokens,
		directory: c.Directory,
		search:    c.Search,
		export:    c.Export,
		metrics:   c.Metrics,
		checks:    c.Checks,
		now:       c.Clock,
	}
}

// Login signs the user in through the session controller and issues the
// bearer token the rest of the API requires.
func (s *Service) Login(ctx context.Context, email string) (Session, error) {
	user, err := s.session.Login(ctx, email)
	if err != nil {
		return Session{}, err
	}

	expiresAt := s.now().Add(s.cfg.AccessTTL)
	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:  user.ID,
		Name: user.Name,
		Role: string(user.Role),
		JTI:  util.NewID("tok"),
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, fmt.Errorf("issue token: %w", err)
	}
	hash := auth.HashToken(token)
	if err := s.tokens.Save(ctx, hash, user, expiresAt); err != nil {
		return Session{}, fmt.Errorf("save token: %w", err)
	}

	s.mu.Lock()
	previous := s.tokenHash
	s.tokenHash = hash
	s.mu.Unlock()
	if previous != "" && previous != hash {
		_ = s.tokens.Revoke(ctx, previous)
	}
	return Session{Token: token, User: user, ExpiresAt: expiresAt}, nil
}

// Authenticate resolves a bearer token to the active user it was issued for.
func (s *Service) Authenticate(ctx context.Context, token string) (store.User, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return store.User{}, err
	}
	if _, err := s.tokens.Lookup(ctx, auth.HashToken(token)); err != nil {
		return store.User{}, err
	}
	user, ok := s.store.Snapshot().UserByID(claims.Sub)
	if !ok || !user.IsActive {
		return store.User{}, errUnauthorized
	}
	return user, nil
}

// Logout revokes the token and ends the controller's session.
func (s *Service) Logout(ctx context.Context, token string) error {
	if token != "" {
		hash := auth.HashToken(token)
		if err := s.tokens.Revoke(ctx, hash); err != nil {
			return err
		}
		s.mu.Lock()
		if s.tokenHash == hash {
			s.tokenHash = ""
		}
		s.mu.Unlock()
	}
	return s.session.Logout(ctx)
}

// RequireActive fails with session.ErrNotActive while the signed-in session
// is still on the welcome screen.
func (s *Service) RequireActive() error {
	if s.session.State().Phase == session.PhaseWelcome {
		return session.ErrNotActive
	}
	return nil
}

func (s *Service) SessionState() session.State {
	return s.session.State()
}

func (s *Service) OpenSession() session.State {
	return s.session.Open()
}

func (s *Service) SetTab(tab rbac.Tab) (session.State, error) {
	return s.session.SetTab(tab)
}

// Checklist lists the catalog items of the viewer's department.
func (s *Service) Checklist(viewer store.User) []store.ChecklistItem {
	items := s.engine.Catalog().ForDepartment(viewer.Department)
	if items == nil {
		return []store.ChecklistItem{}
	}
	return items
}

func (s *Service) Evidence(viewer store.User, view workflow.View, dept store.Department) []workflow.Row[store.Evidence] {
	return s.engine.Evidence(viewer, view, dept)
}

func (s *Service) Reports(viewer store.User, view workflow.View, dept store.Department) []workflow.Row[store.DMAXReport] {
	return s.engine.Reports(viewer, view, dept)
}

func (s *Service) SubmitEvidence(ctx context.Context, viewer store.User, in workflow.EvidenceInput) (store.Evidence, error) {
	created, err := s.engine.SubmitEvidence(ctx, viewer, in)
	if err != nil {
		return store.Evidence{}, err
	}
	s.reindex()
	return created, nil
}

func (s *Service) SubmitDMAX(ctx context.Context, viewer store.User, in workflow.DMAXInput) (store.DMAXReport, error) {
	created, err := s.engine.SubmitDMAX(ctx, viewer, in)
	if err != nil {
		return store.DMAXReport{}, err
	}
	s.reindex()
	return created, nil
}

// TransitionEvidence applies a review, certification or revision to one
// evidence record. note is the feedback, certifier comment or revised text.
func (s *Service) TransitionEvidence(ctx context.Context, viewer store.User, id, action, note string) (store.Evidence, error) {
	var (
		updated store.Evidence
		err     error
	)
	switch action {
	case "approve":
		updated, err = s.engine.ReviewEvidence(ctx, viewer, id, true, note)
	case "reject":
		updated, err = s.engine.ReviewEvidence(ctx, viewer, id, false, note)
	case "certify":
		updated, err = s.engine.CertifyEvidence(ctx, viewer, id, note)
	case "revise":
		updated, err = s.engine.ReviseEvidence(ctx, viewer, id, note)
	default:
		return store.Evidence{}, domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
	if err != nil {
		return store.Evidence{}, err
	}
	s.reindex()
	return updated, nil
}

func (s *Service) TransitionDMAX(ctx context.Context, viewer store.User, id, action string) (store.DMAXReport, error) {
	var (
		updated store.DMAXReport
		err     error
	)
	switch action {
	case "approve":
		updated, err = s.engine.ReviewDMAX(ctx, viewer, id, true)
	case "reject":
		updated, err = s.engine.ReviewDMAX(ctx, viewer, id, false)
	case "certify":
		updated, err = s.engine.CertifyDMAX(ctx, viewer, id)
	default:
		return store.DMAXReport{}, domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
	if err != nil {
		return store.DMAXReport{}, err
	}
	s.reindex()
	return updated, nil
}

type DashboardStats struct {
	Total    int `json:"total"`
	Approved int `json:"approved"`
	Pending  int `json:"pending"`
	Rejected int `json:"rejected"`
}

type Dashboard struct {
	Stats   DashboardStats   `json:"stats"`
	Recent  []store.Evidence `json:"recent"`
	DMAXDue bool             `json:"dmaxDue"`
	Month   string           `json:"month"`
	Year    int              `json:"year"`
}

const recentLimit = 5

// Dashboard summarises the evidence the viewer tracks: a Manager's whole
// department, everyone else their own.
func (s *Service) Dashboard(viewer store.User) Dashboard {
	state := s.store.Snapshot()
	var tracked []store.Evidence
	if viewer.Role == store.RoleManager {
		tracked = visibility.Department(viewer.Department, state.Evidence)
	} else {
		tracked = visibility.Mine(viewer, state.Evidence)
	}

	out := Dashboard{Recent: []store.Evidence{}}
	for _, e := range tracked {
		out.Stats.Total++
		switch e.Status {
		case store.StatusManagerApproved, store.StatusFinalAuditCompleted:
			out.Stats.Approved++
		case store.StatusSubmitted:
			out.Stats.Pending++
		case store.StatusRejected:
			out.Stats.Rejected++
		}
	}

	recent := append([]store.Evidence(nil), tracked...)
	sort.SliceStable(recent, func(i, j int) bool {
		return recent[i].SubmissionDate > recent[j].SubmissionDate
	})
	if len(recent) > recentLimit {
		recent = recent[:recentLimit]
	}
	out.Recent = append(out.Recent, recent...)

	period := admin.CurrentPeriod(s.now())
	out.Month, out.Year = period.Month, period.Year
	if !rbac.Executive(viewer.Role) {
		out.DMAXDue = true
		for _, r := range state.Reports {
			if r.UserID == viewer.ID && r.Month == period.Month && r.Year == period.Year {
				out.DMAXDue = false
				break
			}
		}
	}
	return out
}

func (s *Service) UpdateProfile(ctx context.Context, viewer store.User, in admin.ProfileInput) (store.User, error) {
	return s.directory.UpdateProfile(ctx, viewer, in)
}

func (s *Service) Users(viewer store.User, query string) ([]store.User, error) {
	return s.directory.Users(viewer, query)
}

func (s *Service) ProvisionUser(ctx context.Context, viewer store.User, in admin.UserInput) (store.User, error) {
	return s.directory.ProvisionUser(ctx, viewer, in)
}

func (s *Service) UpdateUser(ctx context.Context, viewer store.User, id string, in admin.UserInput) (store.User, error) {
	return s.directory.UpdateUser(ctx, viewer, id, in)
}

func (s *Service) ToggleActive(ctx context.Context, viewer store.User, id string) (store.User, error) {
	return s.directory.ToggleActive(ctx, viewer, id)
}

func (s *Service) Activity(viewer store.User, query string) ([]store.ActivityLog, error) {
	return s.directory.ActivityTrail(viewer, query)
}

func (s *Service) Defaulters(viewer store.User, p admin.Period) ([]store.User, admin.Period, error) {
	return s.directory.Defaulters(viewer, p)
}

func (s *Service) SendReminders(ctx context.Context, viewer store.User, p admin.Period) (admin.ReminderResult, error) {
	return s.directory.SendReminders(ctx, viewer, p)
}

func (s *Service) Search(viewer store.User, q search.Query) search.Response {
	return s.search.Search(viewer, q)
}

func (s *Service) ExportLedger(ctx context.Context, viewer store.User, req export.Request) (*export.Result, error) {
	return s.export.Export(ctx, viewer, req)
}

// MetricsHandler serves the Prometheus registry, or nil when metrics are off.
func (s *Service) MetricsHandler() http.Handler {
	if s.metrics == nil {
		return nil
	}
	return s.metrics.Handler()
}

// Ready runs every readiness check and returns the failures by name.
func (s *Service) Ready(ctx context.Context) map[string]error {
	results := make(map[string]error, len(s.checks))
	for name, check := range s.checks {
		results[name] = check(ctx)
	}
	return results
}

// Reindex pushes the current snapshot to the search index.
func (s *Service) Reindex() {
	s.reindex()
}

func (s *Service) reindex() {
	if s.search != nil {
		s.search.Sync(s.store.Snapshot())
	}
}
