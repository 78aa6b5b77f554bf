// Package admin is the Super Admin's user directory, compliance defaulter
// tracking and the self-service profile editor.
package admin

import (
	"context"
	"fmt"
	"log"
	"net/mail"
	"strings"
	"time"

	"compliance/api/internal/activity"
	"compliance/api/internal/rbac"
	"compliance/api/internal/store"
	"compliance/api/internal/util"
	"compliance/api/internal/workflow"
)

const (
	MsgNameRequired  = "Name is required."
	MsgEmailRequired = "Email is required."
	MsgEmailInvalid  = "Please enter a valid email address."
	MsgEmailTaken    = "A user with this email already exists."
	MsgRoleInvalid   = "Please select a valid role."
	MsgDeptInvalid   = "Please select a valid department."
	MsgDisableSelf   = "You cannot disable your own account."
	MsgPeriodInvalid = "Please select a valid month."
)

// Mailer delivers reminder emails.
type Mailer interface {
	IsConfigured() bool
	SendDMAXReminder(to, userName, month string, year int) error
}

type ReminderObserver interface {
	RemindersSent(n int)
}

type Options struct {
	Clock    func() time.Time
	Mailer   Mailer
	Observer ReminderObserver
}

type Directory struct {
	store    *store.Store
	logger   *activity.Logger
	now      func() time.Time
	mailer   Mailer
	observer ReminderObserver
}

func New(st *store.Store, opts Options) *Directory {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Directory{
		store:    st,
		logger:   activity.NewLogger(opts.Clock),
		now:      opts.Clock,
		mailer:   opts.Mailer,
		observer: opts.Observer,
	}
}

type UserInput struct {
	Name       string           `json:"name"`
	Email      string           `json:"email"`
	Role       store.Role       `json:"role"`
	Department store.Department `json:"department"`
	IsActive   *bool            `json:"isActive,omitempty"`
}

type ProfileInput struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	ProfilePic string `json:"profilePic,omitempty"`
}

// ProvisionUser adds a user to the directory. New accounts are active unless
// the input says otherwise.
func (d *Directory) ProvisionUser(ctx context.Context, actor store.User, in UserInput) (store.User, error) {
	in, err := normalizeUser(in)
	if err != nil {
		return store.User{}, err
	}
	var created store.User
	err = d.store.Update(store.WithActor(ctx, actor.Name), func(state *store.State) error {
		admin, err := d.authorize(state, actor.ID, rbac.ActionManageUsers)
		if err != nil {
			return err
		}
		if emailTaken(state.Users, in.Email, "") {
			return &workflow.ValidationError{Field: "email", Message: MsgEmailTaken}
		}
		created = store.User{
			ID:         util.NewID("usr"),
			Name:       in.Name,
			Email:      in.Email,
			Role:       in.Role,
			Department: in.Department,
			IsActive:   in.IsActive == nil || *in.IsActive,
		}
		state.Users = append(state.Users, created)
		d.logger.Record(state, admin, store.ActivitySystem, fmt.Sprintf("Created new system user: %s in %s", created.Name, created.Department))
		return nil
	})
	if err != nil {
		return store.User{}, err
	}
	return created, nil
}

// UpdateUser edits a directory entry. Records already filed by the user keep
// the name and department they were filed under.
func (d *Directory) UpdateUser(ctx context.Context, actor store.User, id string, in UserInput) (store.User, error) {
	in, err := normalizeUser(in)
	if err != nil {
		return store.User{}, err
	}
	var updated store.User
	err = d.store.Update(store.WithActor(ctx, actor.Name), func(state *store.State) error {
		admin, err := d.authorize(state, actor.ID, rbac.ActionManageUsers)
		if err != nil {
			return err
		}
		idx := userIndex(state.Users, id)
		if idx < 0 {
			return workflow.ErrNotFound
		}
		if emailTaken(state.Users, in.Email, id) {
			return &workflow.ValidationError{Field: "email", Message: MsgEmailTaken}
		}
		target := &state.Users[idx]
		if in.IsActive != nil && !*in.IsActive && target.ID == admin.ID {
			return &workflow.ValidationError{Field: "isActive", Message: MsgDisableSelf}
		}
		target.Name = in.Name
		target.Email = in.Email
		target.Role = in.Role
		target.Department = in.Department
		if in.IsActive != nil {
			target.IsActive = *in.IsActive
		}
		updated = *target
		d.logger.Record(state, admin, store.ActivityStatusChange, "Updated details for user: "+target.Name)
		return nil
	})
	if err != nil {
		return store.User{}, err
	}
	return updated, nil
}

// ToggleActive enables a disabled account or disables an enabled one.
// Disabled users cannot sign in; nothing they filed is removed.
func (d *Directory) ToggleActive(ctx context.Context, actor store.User, id string) (store.User, error) {
	var updated store.User
	err := d.store.Update(store.WithActor(ctx, actor.Name), func(state *store.State) error {
		admin, err := d.authorize(state, actor.ID, rbac.ActionManageUsers)
		if err != nil {
			return err
		}
		idx := userIndex(state.Users, id)
		if idx < 0 {
			return workflow.ErrNotFound
		}
		target := &state.Users[idx]
		if target.ID == admin.ID && target.IsActive {
			return &workflow.ValidationError{Field: "isActive", Message: MsgDisableSelf}
		}
		verb := "disabled"
		if !target.IsActive {
			verb = "enabled"
		}
		target.IsActive = !target.IsActive
		updated = *target
		d.logger.Record(state, admin, store.ActivityStatusChange, fmt.Sprintf("Account for %s %s.", target.Name, verb))
		return nil
	})
	if err != nil {
		return store.User{}, err
	}
	return updated, nil
}

// UpdateProfile is the self-service edit of name, email and picture. Role and
// department are not the user's to change.
func (d *Directory) UpdateProfile(ctx context.Context, actor store.User, in ProfileInput) (store.User, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	if in.Name == "" {
		return store.User{}, &workflow.ValidationError{Field: "name", Message: MsgNameRequired}
	}
	if err := checkEmail(in.Email); err != nil {
		return store.User{}, err
	}
	var updated store.User
	err := d.store.Update(store.WithActor(ctx, actor.Name), func(state *store.State) error {
		if _, err := d.authorize(state, actor.ID, rbac.ActionUpdateProfile); err != nil {
			return err
		}
		if emailTaken(state.Users, in.Email, actor.ID) {
			return &workflow.ValidationError{Field: "email", Message: MsgEmailTaken}
		}
		target := &state.Users[userIndex(state.Users, actor.ID)]
		target.Name = in.Name
		target.Email = in.Email
		target.ProfilePic = in.ProfilePic
		updated = *target
		d.logger.Record(state, *target, store.ActivityProfileUpdate, "User updated their profile information.")
		return nil
	})
	if err != nil {
		return store.User{}, err
	}
	return updated, nil
}

// Users lists the directory, narrowed by a case-insensitive match on name,
// email or department.
func (d *Directory) Users(actor store.User, query string) ([]store.User, error) {
	state := d.store.Snapshot()
	if _, err := d.authorize(&state, actor.ID, rbac.ActionManageUsers); err != nil {
		return nil, err
	}
	return SearchUsers(state.Users, query), nil
}

func SearchUsers(users []store.User, query string) []store.User {
	needle := strings.ToLower(strings.TrimSpace(query))
	out := make([]store.User, 0, len(users))
	for _, u := range users {
		if needle == "" ||
			strings.Contains(strings.ToLower(u.Name), needle) ||
			strings.Contains(strings.ToLower(u.Email), needle) ||
			strings.Contains(strings.ToLower(string(u.Department)), needle) {
			out = append(out, u)
		}
	}
	return out
}

// Period is a DMAX reporting month.
type Period struct {
	Month string `json:"month"`
	Year  int    `json:"year"`
}

// CurrentPeriod is the reporting month containing t.
func CurrentPeriod(t time.Time) Period {
	return Period{Month: t.Month().String(), Year: t.Year()}
}

// Resolve fills an empty month or year from the clock.
func (d *Directory) Resolve(p Period) (Period, error) {
	now := CurrentPeriod(d.now())
	if p.Month == "" {
		p.Month = now.Month
	}
	if p.Year == 0 {
		p.Year = now.Year
	}
	if !store.ValidMonth(p.Month) {
		return Period{}, &workflow.ValidationError{Field: "month", Message: MsgPeriodInvalid}
	}
	return p, nil
}

// Defaulters are active users who owe a DMAX report for the period and have
// not filed one. Executive roles do not report.
func Defaulters(state store.State, p Period) []store.User {
	filed := map[string]bool{}
	for _, r := range state.Reports {
		if r.Month == p.Month && r.Year == p.Year {
			filed[r.UserID] = true
		}
	}
	out := make([]store.User, 0)
	for _, u := range state.Users {
		if u.IsActive && !rbac.Executive(u.Role) && !filed[u.ID] {
			out = append(out, u)
		}
	}
	return out
}

func (d *Directory) Defaulters(actor store.User, p Period) ([]store.User, Period, error) {
	p, err := d.Resolve(p)
	if err != nil {
		return nil, Period{}, err
	}
	state := d.store.Snapshot()
	if _, err := d.authorize(&state, actor.ID, rbac.ActionSendReminders); err != nil {
		return nil, Period{}, err
	}
	return Defaulters(state, p), p, nil
}

type ReminderResult struct {
	Period   Period   `json:"period"`
	Count    int      `json:"count"`
	Emailed  int      `json:"emailed"`
	Failed   []string `json:"failed"`
	Notified []string `json:"notified"`
}

// SendReminders emails every defaulter of the period and records one System
// entry for the batch. Delivery failures are reported, never fatal.
func (d *Directory) SendReminders(ctx context.Context, actor store.User, p Period) (ReminderResult, error) {
	defaulters, p, err := d.Defaulters(actor, p)
	if err != nil {
		return ReminderResult{}, err
	}
	result := ReminderResult{Period: p, Count: len(defaulters), Failed: []string{}, Notified: []string{}}
	for _, u := range defaulters {
		result.Notified = append(result.Notified, u.ID)
		if d.mailer == nil || !d.mailer.IsConfigured() {
			continue
		}
		if err := d.mailer.SendDMAXReminder(u.Email, u.Name, p.Month, p.Year); err != nil {
			log.Printf("admin: reminder to %s: %v", u.Email, err)
			result.Failed = append(result.Failed, u.ID)
			continue
		}
		result.Emailed++
	}

	err = d.store.Update(store.WithActor(ctx, actor.Name), func(state *store.State) error {
		admin, err := d.authorize(state, actor.ID, rbac.ActionSendReminders)
		if err != nil {
			return err
		}
		d.logger.Record(state, admin, store.ActivitySystem, fmt.Sprintf("Triggered bulk reminders for %d compliance defaulters.", result.Count))
		return nil
	})
	if err != nil {
		return ReminderResult{}, err
	}
	if d.observer != nil {
		d.observer.RemindersSent(result.Emailed)
	}
	return result, nil
}

// ActivityTrail is the searchable audit trail, newest first.
func (d *Directory) ActivityTrail(actor store.User, query string) ([]store.ActivityLog, error) {
	state := d.store.Snapshot()
	if _, err := d.authorize(&state, actor.ID, rbac.ActionViewActivity); err != nil {
		return nil, err
	}
	return activity.Filter(state.Activity, query), nil
}

func (d *Directory) authorize(state *store.State, actorID string, action rbac.Action) (store.User, error) {
	user, ok := state.UserByID(actorID)
	if !ok || !user.IsActive || !rbac.Can(user.Role, action) {
		return store.User{}, workflow.ErrForbidden
	}
	return user, nil
}

func normalizeUser(in UserInput) (UserInput, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	if in.Name == "" {
		return in, &workflow.ValidationError{Field: "name", Message: MsgNameRequired}
	}
	if err := checkEmail(in.Email); err != nil {
		return in, err
	}
	if !in.Role.Valid() {
		return in, &workflow.ValidationError{Field: "role", Message: MsgRoleInvalid}
	}
	if in.Department == store.DeptLegacyProduction {
		in.Department = store.DeptOperations
	}
	if !in.Department.Valid() {
		return in, &workflow.ValidationError{Field: "department", Message: MsgDeptInvalid}
	}
	return in, nil
}

func checkEmail(email string) error {
	if email == "" {
		return &workflow.ValidationError{Field: "email", Message: MsgEmailRequired}
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return &workflow.ValidationError{Field: "email", Message: MsgEmailInvalid}
	}
	return nil
}

// emailTaken compares exactly, matching how sign-in resolves users.
func emailTaken(users []store.User, email, exceptID string) bool {
	for _, u := range users {
		if u.Email == email && u.ID != exceptID {
			return true
		}
	}
	return false
}

func userIndex(users []store.User, id string) int {
	for i, u := range users {
		if u.ID == id {
			return i
		}
	}
	return -1
}
