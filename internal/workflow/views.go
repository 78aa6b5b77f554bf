package workflow

import (
	"compliance/api/internal/store"
	"compliance/api/internal/visibility"
)

type View string

const (
	ViewVisible   View = ""
	ViewMine      View = "mine"
	ViewQueue     View = "queue"
	ViewExecutive View = "executive"
)

func ParseView(value string) (View, bool) {
	switch View(value) {
	case ViewVisible, ViewMine, ViewQueue, ViewExecutive:
		return View(value), true
	default:
		return "", false
	}
}

// Row pairs a submission with the actions the viewer may take on it.
type Row[T store.Submission] struct {
	Item    T                   `json:"item"`
	Actions []visibility.Action `json:"actions"`
}

func (e *Engine) Evidence(viewer store.User, view View, dept store.Department) []Row[store.Evidence] {
	return rows(e.resolver, viewer, selectView(e.resolver, viewer, view, dept, e.store.Snapshot().Evidence))
}

func (e *Engine) Reports(viewer store.User, view View, dept store.Department) []Row[store.DMAXReport] {
	return rows(e.resolver, viewer, selectView(e.resolver, viewer, view, dept, e.store.Snapshot().Reports))
}

func selectView[T store.Submission](r visibility.Resolver, viewer store.User, view View, dept store.Department, items []T) []T {
	switch view {
	case ViewMine:
		return visibility.Mine(viewer, items)
	case ViewQueue:
		return visibility.Queue(r, viewer, items)
	case ViewExecutive:
		return visibility.Executive(viewer, dept, items)
	default:
		visible := visibility.Visible(r, viewer, items)
		if dept != "" {
			visible = visibility.Department(dept, visible)
		}
		return visible
	}
}

func rows[T store.Submission](r visibility.Resolver, viewer store.User, items []T) []Row[T] {
	out := make([]Row[T], 0, len(items))
	for _, item := range items {
		out = append(out, Row[T]{Item: item, Actions: r.Actions(viewer, item.CurrentStatus(), item.Dept())})
	}
	return out
}
