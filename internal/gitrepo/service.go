package gitrepo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"compliance/api/internal/store"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

const defaultAuthor = "Compliance Portal"

type Revision struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

// Ledger is a snapshot backend that commits every save to a local git
// repository, one <key>.json file per collection on branch main.
type Ledger struct {
	path string
	mu   sync.Mutex
	repo *git.Repository
}

func Open(path string) (*Ledger, error) {
	repo, err := git.PlainOpen(path)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		repo, err = initRepo(path)
	}
	if err != nil {
		return nil, fmt.Errorf("open ledger repo: %w", err)
	}
	return &Ledger{path: path, repo: repo}, nil
}

func initRepo(path string) (*git.Repository, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create repo dir: %w", err)
	}
	repo, err := git.PlainInit(path, false)
	if err != nil {
		return nil, fmt.Errorf("init repo: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName("main"))); err != nil {
		return nil, fmt.Errorf("set HEAD to main: %w", err)
	}
	return repo, nil
}

// Get reads the committed snapshot for key. A key never committed reads as nil.
func (l *Ledger) Get(_ context.Context, key string) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	head, err := l.headCommit()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return readFile(head, fileName(key))
}

// PutAll writes the snapshots and commits the ones that changed. Saves that
// change nothing produce no commit.
func (l *Ledger) PutAll(ctx context.Context, snapshots map[string][]byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	worktree, err := l.repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}
	root := worktree.Filesystem.Root()

	keys := make([]string, 0, len(snapshots))
	for key := range snapshots {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	changed := make([]string, 0, len(keys))
	for _, key := range keys {
		path := filepath.Join(root, fileName(key))
		current, err := os.ReadFile(path)
		if err == nil && bytes.Equal(current, snapshots[key]) {
			continue
		}
		if err := os.WriteFile(path, snapshots[key], 0o644); err != nil {
			return fmt.Errorf("write %s: %w", key, err)
		}
		if _, err := worktree.Add(fileName(key)); err != nil {
			return fmt.Errorf("git add %s: %w", key, err)
		}
		changed = append(changed, key)
	}
	if len(changed) == 0 {
		return nil
	}

	author := store.ActorFrom(ctx)
	if author == "" {
		author = defaultAuthor
	}
	message := "Record " + strings.Join(changed, ", ")
	if _, err := worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  author,
			Email: fmt.Sprintf("%s@ledger.portal.local", sanitizeEmail(author)),
			When:  time.Now(),
		},
	}); err != nil {
		return fmt.Errorf("commit snapshots: %w", err)
	}
	return nil
}

// History lists commits that touched key, newest first.
func (l *Ledger) History(key string, limit int) ([]Revision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	head, err := l.headCommit()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return []Revision{}, nil
	}
	if err != nil {
		return nil, err
	}

	name := fileName(key)
	iter, err := l.repo.Log(&git.LogOptions{From: head.Hash, FileName: &name})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]Revision, 0)
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toRevision(commitObj))
		if limit > 0 && len(items) >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

// At returns the snapshot for key as of the given commit.
func (l *Ledger) At(hash, key string) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	resolved, err := resolveHash(l.repo, hash)
	if err != nil {
		return nil, err
	}
	commitObj, err := l.repo.CommitObject(resolved)
	if err != nil {
		return nil, fmt.Errorf("read commit %s: %w", hash, err)
	}
	return readFile(commitObj, fileName(key))
}

func (l *Ledger) headCommit() (*object.Commit, error) {
	ref, err := l.repo.Reference(plumbing.NewBranchReferenceName("main"), true)
	if err != nil {
		return nil, err
	}
	commitObj, err := l.repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, fmt.Errorf("load head commit: %w", err)
	}
	return commitObj, nil
}

func readFile(commitObj *object.Commit, name string) ([]byte, error) {
	file, err := commitObj.File(name)
	if errors.Is(err, object.ErrFileNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s from commit: %w", name, err)
	}
	reader, err := file.Reader()
	if err != nil {
		return nil, fmt.Errorf("open %s reader: %w", name, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}

func fileName(key string) string {
	return key + ".json"
}

func toRevision(commitObj *object.Commit) Revision {
	return Revision{
		Hash:      commitObj.Hash.String(),
		Message:   strings.TrimSpace(commitObj.Message),
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
}

func sanitizeEmail(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			out = append(out, '.')
		}
	}
	if len(out) == 0 {
		return "user"
	}
	return string(out)
}

func resolveHash(repo *git.Repository, hash string) (plumbing.Hash, error) {
	if len(hash) == 40 {
		return plumbing.NewHash(hash), nil
	}
	resolved, err := repo.ResolveRevision(plumbing.Revision(hash))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolve hash %s: %w", hash, err)
	}
	return *resolved, nil
}
