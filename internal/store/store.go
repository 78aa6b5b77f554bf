package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
)

// Snapshot keys. Each collection is persisted as one JSON array.
const (
	KeyEvidence = "dc_evidence"
	KeyDMAX     = "dc_dmax"
	KeyUsers    = "dc_users"
	KeyActivity = "dc_activity"
)

var Keys = []string{KeyEvidence, KeyDMAX, KeyUsers, KeyActivity}

// MaxActivity bounds the audit trail; older entries are dropped.
const MaxActivity = 1000

// Snapshots is a whole-collection key/value backend. Get returns (nil, nil)
// for a key that was never written.
type Snapshots interface {
	Get(ctx context.Context, key string) ([]byte, error)
	PutAll(ctx context.Context, snapshots map[string][]byte) error
}

type State struct {
	Users    []User
	Evidence []Evidence
	Reports  []DMAXReport
	Activity []ActivityLog
}

func (s State) Clone() State {
	return State{
		Users:    append([]User(nil), s.Users...),
		Evidence: append([]Evidence(nil), s.Evidence...),
		Reports:  append([]DMAXReport(nil), s.Reports...),
		Activity: append([]ActivityLog(nil), s.Activity...),
	}
}

func (s State) UserByID(id string) (User, bool) {
	for _, u := range s.Users {
		if u.ID == id {
			return u, true
		}
	}
	return User{}, false
}

// UserByEmail matches exactly; login is case-sensitive.
func (s State) UserByEmail(email string) (User, bool) {
	for _, u := range s.Users {
		if u.Email == email {
			return u, true
		}
	}
	return User{}, false
}

// Store owns the four collections. All mutations go through Update, which
// applies a change atomically and then writes every snapshot.
type Store struct {
	mu        sync.RWMutex
	state     State
	snapshots Snapshots
	seed      []User
}

func New(snapshots Snapshots, seed []User) *Store {
	return &Store{snapshots: snapshots, seed: seed}
}

func (s *Store) Snapshots() Snapshots {
	return s.snapshots
}

// Load replaces the in-memory state with the persisted snapshots. A snapshot
// that is missing or malformed falls back to an empty collection, or to the
// seed directory for users. Only backend read failures are returned.
func (s *Store) Load(ctx context.Context) error {
	raw := make(map[string][]byte, len(Keys))
	for _, key := range Keys {
		data, err := s.snapshots.Get(ctx, key)
		if err != nil {
			return fmt.Errorf("read snapshot %s: %w", key, err)
		}
		raw[key] = data
	}

	next := State{
		Evidence: decodeCollection[Evidence](KeyEvidence, raw[KeyEvidence]),
		Reports:  decodeCollection[DMAXReport](KeyDMAX, raw[KeyDMAX]),
		Activity: decodeCollection[ActivityLog](KeyActivity, raw[KeyActivity]),
	}
	users, ok := decodeUsers(raw[KeyUsers])
	if !ok {
		users = append([]User(nil), s.seed...)
	}
	next.Users = users
	if len(next.Activity) > MaxActivity {
		next.Activity = next.Activity[:MaxActivity]
	}
	MigrateDepartments(&next)

	s.mu.Lock()
	s.state = next
	s.mu.Unlock()
	return nil
}

// Save writes all four collections.
func (s *Store) Save(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saveLocked(ctx)
}

func (s *Store) saveLocked(ctx context.Context) error {
	encoded, err := Encode(s.state)
	if err != nil {
		return err
	}
	if err := s.snapshots.PutAll(ctx, encoded); err != nil {
		return fmt.Errorf("write snapshots: %w", err)
	}
	return nil
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// Update runs fn against a copy of the state. If fn returns an error nothing
// is applied. Otherwise the copy becomes current and is persisted; a failed
// write is logged and the in-memory change stands.
func (s *Store) Update(ctx context.Context, fn func(*State) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.state.Clone()
	if err := fn(&next); err != nil {
		return err
	}
	s.state = next
	if err := s.saveLocked(ctx); err != nil {
		log.Printf("store: %v", err)
	}
	return nil
}

// Encode serializes every collection under its snapshot key. Nil slices are
// written as empty arrays.
func Encode(state State) (map[string][]byte, error) {
	out := make(map[string][]byte, len(Keys))
	values := map[string]any{
		KeyEvidence: nonNil(state.Evidence),
		KeyDMAX:     nonNil(state.Reports),
		KeyUsers:    nonNil(state.Users),
		KeyActivity: nonNil(state.Activity),
	}
	for key, value := range values {
		data, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", key, err)
		}
		out[key] = data
	}
	return out, nil
}

// MigrateDepartments rewrites the retired "Production" label in place on
// every collection.
func MigrateDepartments(state *State) {
	for i := range state.Users {
		state.Users[i].Department = migrateDepartment(state.Users[i].Department)
	}
	for i := range state.Evidence {
		state.Evidence[i].Department = migrateDepartment(state.Evidence[i].Department)
	}
	for i := range state.Reports {
		state.Reports[i].Department = migrateDepartment(state.Reports[i].Department)
	}
	for i := range state.Activity {
		state.Activity[i].Department = migrateDepartment(state.Activity[i].Department)
	}
}

func migrateDepartment(d Department) Department {
	if d == DeptLegacyProduction {
		return DeptOperations
	}
	return d
}

func decodeCollection[T any](key string, data []byte) []T {
	if len(data) == 0 {
		return []T{}
	}
	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		log.Printf("store: discarding malformed snapshot %s: %v", key, err)
		return []T{}
	}
	if items == nil {
		return []T{}
	}
	return items
}

func decodeUsers(data []byte) ([]User, bool) {
	if len(data) == 0 {
		return nil, false
	}
	var users []User
	if err := json.Unmarshal(data, &users); err != nil {
		log.Printf("store: discarding malformed snapshot %s: %v", KeyUsers, err)
		return nil, false
	}
	if users == nil {
		return nil, false
	}
	return users, true
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

type actorKey struct{}

// WithActor records who is behind the mutations made with ctx. Backends that
// keep history attribute their writes to this name.
func WithActor(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, actorKey{}, name)
}

func ActorFrom(ctx context.Context) string {
	name, _ := ctx.Value(actorKey{}).(string)
	return name
}
