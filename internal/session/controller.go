// Package session drives the signed-in session of a portal instance and keeps
// the registry of bearer tokens issued to it.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"compliance/api/internal/activity"
	"compliance/api/internal/rbac"
	"compliance/api/internal/store"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountDisabled    = errors.New("account disabled")
	ErrNotActive          = errors.New("no active session")
	ErrTabNotAllowed      = errors.New("tab not available for role")
)

type Phase string

const (
	PhaseLanding Phase = "landing"
	PhaseLogin   Phase = "login"
	PhaseWelcome Phase = "welcome"
	PhaseActive  Phase = "active"
)

const (
	LoginSuccess  = "success"
	LoginInvalid  = "invalid"
	LoginDisabled = "disabled"
)

// Scheduler runs f once after d. The returned func cancels it.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) (stop func() bool)
}

type timerScheduler struct{}

func (timerScheduler) AfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// LoginObserver counts login attempts by outcome.
type LoginObserver interface {
	Login(outcome string)
}

type nopLoginObserver struct{}

func (nopLoginObserver) Login(string) {}

type Options struct {
	Clock        func() time.Time
	Scheduler    Scheduler
	WelcomeDelay time.Duration
	Observer     LoginObserver
}

// State is the externally visible session: the phase, who is signed in and
// which tab they are on.
type State struct {
	Phase Phase       `json:"phase"`
	User  *store.User `json:"user,omitempty"`
	Tab   rbac.Tab    `json:"tab,omitempty"`
	Tabs  []rbac.Tab  `json:"tabs,omitempty"`
}

// Controller owns the single signed-in session of the process.
type Controller struct {
	store     *store.Store
	logger    *activity.Logger
	scheduler Scheduler
	welcome   time.Duration
	observer  LoginObserver

	mu     sync.Mutex
	phase  Phase
	userID string
	tab    rbac.Tab
	stop   func() bool
	// generation invalidates a welcome timer that fires after a logout or a
	// newer login.
	generation uint64
}

func NewController(st *store.Store, opts Options) *Controller {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Scheduler == nil {
		opts.Scheduler = timerScheduler{}
	}
	if opts.Observer == nil {
		opts.Observer = nopLoginObserver{}
	}
	return &Controller{
		store:     st,
		logger:    activity.NewLogger(opts.Clock),
		scheduler: opts.Scheduler,
		welcome:   opts.WelcomeDelay,
		observer:  opts.Observer,
		phase:     PhaseLanding,
	}
}

// Open moves from the landing page to the login form.
func (c *Controller) Open() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase == PhaseLanding {
		c.phase = PhaseLogin
	}
	return c.stateLocked()
}

// Login signs in the user whose email matches exactly. A failed attempt
// changes nothing. A successful one replaces any current session, records a
// Login entry and lands on the role's default tab once the welcome delay has
// passed.
func (c *Controller) Login(ctx context.Context, email string) (store.User, error) {
	user, ok := c.store.Snapshot().UserByEmail(email)
	if !ok {
		c.observer.Login(LoginInvalid)
		return store.User{}, ErrInvalidCredentials
	}
	if !user.IsActive {
		c.observer.Login(LoginDisabled)
		return store.User{}, ErrAccountDisabled
	}

	err := c.store.Update(store.WithActor(ctx, user.Name), func(state *store.State) error {
		c.logger.Record(state, user, store.ActivityLogin, "User logged into the compliance portal.")
		return nil
	})
	if err != nil {
		return store.User{}, err
	}
	c.observer.Login(LoginSuccess)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelLocked()
	c.generation++
	c.userID = user.ID
	c.tab = ""
	if c.welcome <= 0 {
		c.activateLocked(user.Role)
		return user, nil
	}
	c.phase = PhaseWelcome
	gen := c.generation
	c.stop = c.scheduler.AfterFunc(c.welcome, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.generation != gen || c.phase != PhaseWelcome {
			return
		}
		c.stop = nil
		c.activateLocked(user.Role)
	})
	return user, nil
}

// Logout records a System entry for the signed-in user, if any, and returns
// to the landing page.
func (c *Controller) Logout(ctx context.Context) error {
	c.mu.Lock()
	userID := c.userID
	c.cancelLocked()
	c.generation++
	c.phase = PhaseLanding
	c.userID = ""
	c.tab = ""
	c.mu.Unlock()

	if userID == "" {
		return nil
	}
	user, ok := c.store.Snapshot().UserByID(userID)
	if !ok {
		return nil
	}
	return c.store.Update(store.WithActor(ctx, user.Name), func(state *store.State) error {
		c.logger.Record(state, user, store.ActivitySystem, "User signed out.")
		return nil
	})
}

// SetTab switches the active tab. Only tabs the role can open are accepted.
func (c *Controller) SetTab(tab rbac.Tab) (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhaseActive {
		return c.stateLocked(), ErrNotActive
	}
	user, ok := c.store.Snapshot().UserByID(c.userID)
	if !ok || !rbac.CanOpen(user.Role, tab) {
		return c.stateLocked(), ErrTabNotAllowed
	}
	c.tab = tab
	return c.stateLocked(), nil
}

// Current returns the signed-in user as currently stored, so profile edits
// are reflected.
func (c *Controller) Current() (store.User, bool) {
	c.mu.Lock()
	userID := c.userID
	c.mu.Unlock()
	if userID == "" {
		return store.User{}, false
	}
	return c.store.Snapshot().UserByID(userID)
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Controller) activateLocked(role store.Role) {
	c.phase = PhaseActive
	c.tab = rbac.DefaultTab(role)
}

func (c *Controller) cancelLocked() {
	if c.stop != nil {
		c.stop()
		c.stop = nil
	}
}

func (c *Controller) stateLocked() State {
	out := State{Phase: c.phase, Tab: c.tab}
	if c.userID == "" {
		return out
	}
	if user, ok := c.store.Snapshot().UserByID(c.userID); ok {
		out.User = &user
		out.Tabs = rbac.For(user.Role).Tabs
	}
	return out
}
