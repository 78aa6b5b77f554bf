package admin

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"compliance/api/internal/store"
	"compliance/api/internal/workflow"
)

var now = time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)

type fakeMailer struct {
	configured bool
	fail       map[string]bool
	sent       []string
}

func (m *fakeMailer) IsConfigured() bool { return m.configured }

func (m *fakeMailer) SendDMAXReminder(to, _, month string, year int) error {
	if m.fail[to] {
		return errors.New("mailbox unavailable")
	}
	m.sent = append(m.sent, to)
	return nil
}

type reminderCounter struct{ n int }

func (c *reminderCounter) RemindersSent(n int) { c.n += n }

func newDirectory(t *testing.T, mailer Mailer) (*Directory, *store.Store, *reminderCounter) {
	t.Helper()
	st := store.New(store.NewMemorySnapshots(), store.SeedUsers())
	require.NoError(t, st.Load(context.Background()))
	counter := &reminderCounter{}
	return New(st, Options{Clock: func() time.Time { return now }, Mailer: mailer, Observer: counter}), st, counter
}

func user(t *testing.T, st *store.Store, id string) store.User {
	t.Helper()
	u, ok := st.Snapshot().UserByID(id)
	require.True(t, ok, "user %s", id)
	return u
}

func requireValidation(t *testing.T, err error, message string) {
	t.Helper()
	var verr *workflow.ValidationError
	require.True(t, errors.As(err, &verr), "expected validation error, got %v", err)
	assert.Equal(t, message, verr.Message)
}

func TestProvisionUser(t *testing.T) {
	dir, st, _ := newDirectory(t, nil)
	admin := user(t, st, "u1")

	created, err := dir.ProvisionUser(context.Background(), admin, UserInput{
		Name:       " Meena Iyer ",
		Email:      "meena.i@desicrew.in",
		Role:       store.RoleTeamLead,
		Department: store.DeptLegacyProduction,
	})
	require.NoError(t, err)

	assert.Equal(t, "Meena Iyer", created.Name)
	assert.Equal(t, store.DeptOperations, created.Department, "retired label is rewritten")
	assert.True(t, created.IsActive)
	assert.NotEmpty(t, created.ID)

	state := st.Snapshot()
	assert.Len(t, state.Users, 6)
	require.Len(t, state.Activity, 1)
	assert.Equal(t, store.ActivitySystem, state.Activity[0].Action)
	assert.Equal(t, "Created new system user: Meena Iyer in Operations", state.Activity[0].Description)
}

func TestProvisionUserValidation(t *testing.T) {
	cases := []struct {
		name    string
		in      UserInput
		message string
	}{
		{name: "no name", in: UserInput{Email: "x@y.in", Role: store.RoleHR, Department: store.DeptHR}, message: MsgNameRequired},
		{name: "no email", in: UserInput{Name: "X", Role: store.RoleHR, Department: store.DeptHR}, message: MsgEmailRequired},
		{name: "bad email", in: UserInput{Name: "X", Email: "not-an-email", Role: store.RoleHR, Department: store.DeptHR}, message: MsgEmailInvalid},
		{name: "taken email", in: UserInput{Name: "X", Email: "rahul.v@desicrew.in", Role: store.RoleHR, Department: store.DeptHR}, message: MsgEmailTaken},
		{name: "bad role", in: UserInput{Name: "X", Email: "x@y.in", Role: "CEO", Department: store.DeptHR}, message: MsgRoleInvalid},
		{name: "bad department", in: UserInput{Name: "X", Email: "x@y.in", Role: store.RoleHR, Department: "Sales"}, message: MsgDeptInvalid},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir, st, _ := newDirectory(t, nil)
			_, err := dir.ProvisionUser(context.Background(), user(t, st, "u1"), tc.in)
			requireValidation(t, err, tc.message)
			assert.Len(t, st.Snapshot().Users, 5)
			assert.Empty(t, st.Snapshot().Activity)
		})
	}
}

func TestDirectoryRequiresSuperAdmin(t *testing.T) {
	dir, st, _ := newDirectory(t, nil)
	ctx := context.Background()
	for _, id := range []string{"u2", "u3", "u4", "u5"} {
		actor := user(t, st, id)
		_, err := dir.ProvisionUser(ctx, actor, UserInput{Name: "X", Email: "x@y.in", Role: store.RoleHR, Department: store.DeptHR})
		assert.ErrorIs(t, err, workflow.ErrForbidden, id)
		_, err = dir.ToggleActive(ctx, actor, "u5")
		assert.ErrorIs(t, err, workflow.ErrForbidden, id)
		_, err = dir.Users(actor, "")
		assert.ErrorIs(t, err, workflow.ErrForbidden, id)
		_, err = dir.ActivityTrail(actor, "")
		assert.ErrorIs(t, err, workflow.ErrForbidden, id)
	}
}

func TestUpdateUserKeepsFiledRecords(t *testing.T) {
	dir, st, _ := newDirectory(t, nil)
	require.NoError(t, st.Update(context.Background(), func(state *store.State) error {
		state.Reports = append(state.Reports, store.DMAXReport{ID: "d1", UserID: "u5", UserName: "Rahul Varma", Department: store.DeptOperations, Month: "April", Year: 2024, Status: store.StatusSubmitted})
		return nil
	}))

	updated, err := dir.UpdateUser(context.Background(), user(t, st, "u1"), "u5", UserInput{
		Name:       "Rahul V",
		Email:      "rahul.v@desicrew.in",
		Role:       store.RoleTeamLead,
		Department: store.DeptIT,
	})
	require.NoError(t, err)
	assert.Equal(t, store.DeptIT, updated.Department)
	assert.True(t, updated.IsActive, "omitted isActive leaves the flag alone")

	state := st.Snapshot()
	assert.Equal(t, "Rahul Varma", state.Reports[0].UserName)
	assert.Equal(t, store.DeptOperations, state.Reports[0].Department)
	assert.Equal(t, "Updated details for user: Rahul V", state.Activity[0].Description)

	_, err = dir.UpdateUser(context.Background(), user(t, st, "u1"), "nobody", UserInput{Name: "X", Email: "x@y.in", Role: store.RoleHR, Department: store.DeptHR})
	assert.ErrorIs(t, err, workflow.ErrNotFound)
}

func TestToggleActive(t *testing.T) {
	dir, st, _ := newDirectory(t, nil)
	ctx := context.Background()
	admin := user(t, st, "u1")

	disabled, err := dir.ToggleActive(ctx, admin, "u5")
	require.NoError(t, err)
	assert.False(t, disabled.IsActive)
	assert.Equal(t, "Account for Rahul Varma disabled.", st.Snapshot().Activity[0].Description)
	assert.Equal(t, store.ActivityStatusChange, st.Snapshot().Activity[0].Action)

	enabled, err := dir.ToggleActive(ctx, admin, "u5")
	require.NoError(t, err)
	assert.True(t, enabled.IsActive)
	assert.Equal(t, "Account for Rahul Varma enabled.", st.Snapshot().Activity[0].Description)

	_, err = dir.ToggleActive(ctx, admin, "u1")
	requireValidation(t, err, MsgDisableSelf)
}

func TestUpdateProfile(t *testing.T) {
	dir, st, _ := newDirectory(t, nil)
	ctx := context.Background()
	rahul := user(t, st, "u5")

	updated, err := dir.UpdateProfile(ctx, rahul, ProfileInput{Name: "Rahul Varma", Email: "rahul@desicrew.in", ProfilePic: "https://cdn.example/rahul.png"})
	require.NoError(t, err)
	assert.Equal(t, "rahul@desicrew.in", updated.Email)
	assert.Equal(t, store.RoleContributor, updated.Role)

	log := st.Snapshot().Activity[0]
	assert.Equal(t, store.ActivityProfileUpdate, log.Action)
	assert.Equal(t, "User updated their profile information.", log.Description)
	assert.Equal(t, "u5", log.UserID)

	_, err = dir.UpdateProfile(ctx, rahul, ProfileInput{Name: "Rahul", Email: "admin@desicrew.in"})
	requireValidation(t, err, MsgEmailTaken)

	_, err = dir.UpdateProfile(ctx, rahul, ProfileInput{Name: " ", Email: "rahul@desicrew.in"})
	requireValidation(t, err, MsgNameRequired)
}

func TestSearchUsers(t *testing.T) {
	users := store.SeedUsers()
	assert.Len(t, SearchUsers(users, ""), 5)
	assert.Len(t, SearchUsers(users, "AUDIT"), 2)
	assert.Len(t, SearchUsers(users, "priya.s@"), 1)
	assert.Empty(t, SearchUsers(users, "nobody"))
}

func TestDefaulters(t *testing.T) {
	dir, st, _ := newDirectory(t, nil)
	require.NoError(t, st.Update(context.Background(), func(state *store.State) error {
		state.Reports = append(state.Reports,
			store.DMAXReport{ID: "d1", UserID: "u4", Month: "May", Year: 2024, Status: store.StatusSubmitted},
			store.DMAXReport{ID: "d2", UserID: "u5", Month: "May", Year: 2023, Status: store.StatusSubmitted},
		)
		state.Users = append(state.Users, store.User{ID: "u9", Name: "Gone", Role: store.RoleContributor, Department: store.DeptIT, IsActive: false})
		return nil
	}))

	defaulters, period, err := dir.Defaulters(user(t, st, "u1"), Period{})
	require.NoError(t, err)
	assert.Equal(t, Period{Month: "May", Year: 2024}, period)

	ids := make([]string, 0, len(defaulters))
	for _, u := range defaulters {
		ids = append(ids, u.ID)
	}
	assert.Equal(t, []string{"u2", "u5"}, ids, "executives, filers and inactive users are excluded")

	_, _, err = dir.Defaulters(user(t, st, "u1"), Period{Month: "Smarch"})
	requireValidation(t, err, MsgPeriodInvalid)
}

func TestSendReminders(t *testing.T) {
	mailer := &fakeMailer{configured: true, fail: map[string]bool{"anjali.n@desicrew.in": true}}
	dir, st, counter := newDirectory(t, mailer)

	result, err := dir.SendReminders(context.Background(), user(t, st, "u1"), Period{Month: "May", Year: 2024})
	require.NoError(t, err)

	assert.Equal(t, 3, result.Count)
	assert.Equal(t, 2, result.Emailed)
	assert.Equal(t, []string{"u2"}, result.Failed)
	assert.ElementsMatch(t, []string{"priya.s@desicrew.in", "rahul.v@desicrew.in"}, mailer.sent)
	assert.Equal(t, 2, counter.n)

	log := st.Snapshot().Activity[0]
	assert.Equal(t, store.ActivitySystem, log.Action)
	assert.Equal(t, "Triggered bulk reminders for 3 compliance defaulters.", log.Description)
}

func TestSendRemindersWithoutMailerStillRecords(t *testing.T) {
	dir, st, _ := newDirectory(t, &fakeMailer{configured: false})
	result, err := dir.SendReminders(context.Background(), user(t, st, "u1"), Period{})
	require.NoError(t, err)
	assert.Equal(t, 3, result.Count)
	assert.Zero(t, result.Emailed)
	assert.Len(t, st.Snapshot().Activity, 1)
}

func TestActivityTrail(t *testing.T) {
	dir, st, _ := newDirectory(t, nil)
	ctx := context.Background()
	admin := user(t, st, "u1")
	_, err := dir.ToggleActive(ctx, admin, "u5")
	require.NoError(t, err)
	_, err = dir.ToggleActive(ctx, admin, "u4")
	require.NoError(t, err)

	trail, err := dir.ActivityTrail(admin, "priya")
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.Equal(t, "Account for Priya Sharma disabled.", trail[0].Description)

	all, err := dir.ActivityTrail(admin, "status change")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
