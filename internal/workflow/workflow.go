// Package workflow moves evidence and DMAX reports through their approval
// lifecycle: Submitted, then Auditor Approved or Rejected, then Certified.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"compliance/api/internal/activity"
	"compliance/api/internal/attachment"
	"compliance/api/internal/rbac"
	"compliance/api/internal/store"
	"compliance/api/internal/util"
	"compliance/api/internal/visibility"
)

const (
	EntityEvidence = "evidence"
	EntityDMAX     = "dmax"

	MaxCommentLength = 1000
	MaxContentLength = 2000
)

// Delayer simulates the latency of a submission round trip. It runs before
// anything is written.
type Delayer func(time.Duration)

func NoDelay(time.Duration) {}

// Observer is told about every accepted submission and transition.
type Observer interface {
	Submitted(entity, department string)
	Transitioned(entity, from, to string)
	ActivitySize(n int)
}

type nopObserver struct{}

func (nopObserver) Submitted(string, string)            {}
func (nopObserver) Transitioned(string, string, string) {}
func (nopObserver) ActivitySize(int)                    {}

type Options struct {
	Clock           func() time.Time
	Delay           Delayer
	EvidenceLatency time.Duration
	ReportLatency   time.Duration
	Observer        Observer
	Attachments     *attachment.Service
}

type Engine struct {
	store       *store.Store
	catalog     store.Catalog
	resolver    visibility.Resolver
	logger      *activity.Logger
	now         func() time.Time
	delay       Delayer
	evidenceLag time.Duration
	reportLag   time.Duration
	observer    Observer
	attachments *attachment.Service
}

func New(st *store.Store, catalog store.Catalog, resolver visibility.Resolver, opts Options) *Engine {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Delay == nil {
		opts.Delay = NoDelay
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	return &Engine{
		store:       st,
		catalog:     catalog,
		resolver:    resolver,
		logger:      activity.NewLogger(opts.Clock),
		now:         opts.Clock,
		delay:       opts.Delay,
		evidenceLag: opts.EvidenceLatency,
		reportLag:   opts.ReportLatency,
		observer:    opts.Observer,
		attachments: opts.Attachments,
	}
}

func (e *Engine) Catalog() store.Catalog {
	return e.catalog
}

func (e *Engine) Resolver() visibility.Resolver {
	return e.resolver
}

type EvidenceInput struct {
	ChecklistItemID string
	Comment         string
	File            *attachment.File
}

// SubmitEvidence files evidence against a checklist item of the actor's
// department. The attachment is optional and unrestricted.
func (e *Engine) SubmitEvidence(ctx context.Context, actor store.User, in EvidenceInput) (store.Evidence, error) {
	if !rbac.Can(actor.Role, rbac.ActionSubmitEvidence) {
		return store.Evidence{}, ErrForbidden
	}
	itemID := strings.TrimSpace(in.ChecklistItemID)
	if itemID == "" {
		return store.Evidence{}, invalid("checklistItemId", MsgSelectChecklistItem)
	}
	item, ok := e.catalog.Lookup(itemID)
	if !ok {
		return store.Evidence{}, invalid("checklistItemId", MsgSelectChecklistItem)
	}
	if item.Department != actor.Department {
		return store.Evidence{}, invalid("checklistItemId", MsgChecklistDepartment)
	}
	if strings.TrimSpace(in.Comment) == "" {
		return store.Evidence{}, invalid("comment", MsgCommentRequired)
	}
	if utf8.RuneCountInString(in.Comment) > MaxCommentLength {
		return store.Evidence{}, invalid("comment", MsgCommentTooLong)
	}

	e.delay(e.evidenceLag)

	id := util.NewID("ev")
	var upload attachment.Descriptor
	if in.File != nil {
		desc, err := e.accept(ctx, *in.File, attachment.Policy{}, id, "")
		if err != nil {
			return store.Evidence{}, err
		}
		upload = desc
	}

	var created store.Evidence
	err := e.store.Update(store.WithActor(ctx, actor.Name), func(state *store.State) error {
		submitter, err := activeUser(state, actor.ID)
		if err != nil {
			return err
		}
		created = store.Evidence{
			ID:              id,
			UserID:          submitter.ID,
			ChecklistItemID: item.ID,
			Department:      submitter.Department,
			SubmissionDate:  e.today(),
			FileURL:         upload.Reference,
			Comment:         in.Comment,
			Status:          store.StatusSubmitted,
		}
		state.Evidence = append(state.Evidence, created)
		e.logger.Record(state, submitter, store.ActivitySubmission, "Submitted evidence for task: "+item.Task)
		e.observer.ActivitySize(len(state.Activity))
		return nil
	})
	if err != nil {
		e.discard(ctx, upload)
		return store.Evidence{}, err
	}
	e.observer.Submitted(EntityEvidence, string(created.Department))
	return created, nil
}

type DMAXInput struct {
	Month   string
	Year    int
	Content string
	File    *attachment.File
}

// SubmitDMAX files the actor's monthly report. A report for the same month
// and year blocks the submission unless it was rejected.
func (e *Engine) SubmitDMAX(ctx context.Context, actor store.User, in DMAXInput) (store.DMAXReport, error) {
	if !rbac.Can(actor.Role, rbac.ActionSubmitDMAX) {
		return store.DMAXReport{}, ErrForbidden
	}
	if !store.ValidMonth(in.Month) {
		return store.DMAXReport{}, invalid("month", MsgMonth)
	}
	year := in.Year
	if year == 0 {
		year = e.now().Year()
	}
	if year < 2000 || year > 9999 {
		return store.DMAXReport{}, invalid("year", MsgYear)
	}
	if strings.TrimSpace(in.Content) == "" {
		return store.DMAXReport{}, invalid("content", MsgContentRequired)
	}
	if utf8.RuneCountInString(in.Content) > MaxContentLength {
		return store.DMAXReport{}, invalid("content", MsgContentTooLong)
	}
	if in.File == nil {
		return store.DMAXReport{}, invalid("file", MsgFileRequired)
	}
	if err := fileError(attachment.DMAXPolicy.Check(*in.File)); err != nil {
		return store.DMAXReport{}, err
	}
	if hasActiveReport(e.store.Snapshot().Reports, actor.ID, in.Month, year) {
		return store.DMAXReport{}, duplicatePeriod(in.Month, year)
	}

	e.delay(e.reportLag)

	id := util.NewID("dmax")
	desc, err := e.accept(ctx, *in.File, attachment.DMAXPolicy, id, attachment.DMAXObjectName(actor.Name, in.Month, year, in.File.Name))
	if err != nil {
		return store.DMAXReport{}, err
	}

	var created store.DMAXReport
	err = e.store.Update(store.WithActor(ctx, actor.Name), func(state *store.State) error {
		submitter, err := activeUser(state, actor.ID)
		if err != nil {
			return err
		}
		if hasActiveReport(state.Reports, submitter.ID, in.Month, year) {
			return duplicatePeriod(in.Month, year)
		}
		created = store.DMAXReport{
			ID:             id,
			UserID:         submitter.ID,
			UserName:       submitter.Name,
			Department:     submitter.Department,
			Month:          in.Month,
			Year:           year,
			Content:        in.Content,
			Status:         store.StatusSubmitted,
			SubmissionDate: e.today(),
			FileName:       desc.Name,
			FileURL:        desc.Reference,
			FileSize:       desc.SizeLabel,
		}
		state.Reports = append(state.Reports, created)
		e.logger.Record(state, submitter, store.ActivitySubmission, fmt.Sprintf("Submitted DMAX report for %s %d.", in.Month, year))
		e.observer.ActivitySize(len(state.Activity))
		return nil
	})
	if err != nil {
		e.discard(ctx, desc)
		return store.DMAXReport{}, err
	}
	e.observer.Submitted(EntityDMAX, string(created.Department))
	return created, nil
}

// ReviewEvidence approves or rejects submitted evidence. The feedback is
// kept as the manager comment.
func (e *Engine) ReviewEvidence(ctx context.Context, actor store.User, id string, approve bool, feedback string) (store.Evidence, error) {
	action := reviewAction(approve)
	var updated store.Evidence
	var from store.Status
	err := e.store.Update(store.WithActor(ctx, actor.Name), func(state *store.State) error {
		idx := indexOf(state.Evidence, id)
		if idx < 0 {
			return ErrNotFound
		}
		item := &state.Evidence[idx]
		reviewer, err := e.authorize(state, actor.ID, action, item.Status, item.Department)
		if err != nil {
			return err
		}
		from = item.Status
		item.Status = target(action)
		item.ManagerComment = feedback
		updated = *item

		note := strings.TrimSpace(feedback)
		if note == "" {
			note = "No feedback provided"
		}
		e.logger.Record(state, reviewer, reviewLogType(approve), fmt.Sprintf("%s evidence for task: %s. Feedback: %s", verb(approve), e.catalog.TaskLabel(item.ChecklistItemID), note))
		e.observer.ActivitySize(len(state.Activity))
		return nil
	})
	if err != nil {
		return store.Evidence{}, err
	}
	e.observer.Transitioned(EntityEvidence, string(from), string(updated.Status))
	return updated, nil
}

func (e *Engine) ReviewDMAX(ctx context.Context, actor store.User, id string, approve bool) (store.DMAXReport, error) {
	action := reviewAction(approve)
	var updated store.DMAXReport
	var from store.Status
	err := e.store.Update(store.WithActor(ctx, actor.Name), func(state *store.State) error {
		idx := indexOf(state.Reports, id)
		if idx < 0 {
			return ErrNotFound
		}
		report := &state.Reports[idx]
		reviewer, err := e.authorize(state, actor.ID, action, report.Status, report.Department)
		if err != nil {
			return err
		}
		from = report.Status
		report.Status = target(action)
		updated = *report

		e.logger.Record(state, reviewer, reviewLogType(approve), fmt.Sprintf("%s DMAX report for %s (%s %d).", verb(approve), report.UserName, report.Month, report.Year))
		e.observer.ActivitySize(len(state.Activity))
		return nil
	})
	if err != nil {
		return store.DMAXReport{}, err
	}
	e.observer.Transitioned(EntityDMAX, string(from), string(updated.Status))
	return updated, nil
}

// CertifyEvidence is the final sign-off. Only Auditor Approved evidence can
// be certified. A non-empty comment is kept as the certifier's comment.
func (e *Engine) CertifyEvidence(ctx context.Context, actor store.User, id, comment string) (store.Evidence, error) {
	var updated store.Evidence
	err := e.store.Update(store.WithActor(ctx, actor.Name), func(state *store.State) error {
		idx := indexOf(state.Evidence, id)
		if idx < 0 {
			return ErrNotFound
		}
		item := &state.Evidence[idx]
		certifier, err := e.authorize(state, actor.ID, visibility.ActionCertify, item.Status, item.Department)
		if err != nil {
			return err
		}
		item.Status = store.StatusFinalAuditCompleted
		if c := strings.TrimSpace(comment); c != "" {
			item.CGOComment = c
		}
		updated = *item
		e.logger.Record(state, certifier, store.ActivityApproval, "External Auditor performed final sign-off for checklist item ID: "+item.ID)
		e.observer.ActivitySize(len(state.Activity))
		return nil
	})
	if err != nil {
		return store.Evidence{}, err
	}
	e.observer.Transitioned(EntityEvidence, string(store.StatusManagerApproved), string(updated.Status))
	return updated, nil
}

func (e *Engine) CertifyDMAX(ctx context.Context, actor store.User, id string) (store.DMAXReport, error) {
	var updated store.DMAXReport
	err := e.store.Update(store.WithActor(ctx, actor.Name), func(state *store.State) error {
		idx := indexOf(state.Reports, id)
		if idx < 0 {
			return ErrNotFound
		}
		report := &state.Reports[idx]
		certifier, err := e.authorize(state, actor.ID, visibility.ActionCertify, report.Status, report.Department)
		if err != nil {
			return err
		}
		report.Status = store.StatusFinalAuditCompleted
		updated = *report
		e.logger.Record(state, certifier, store.ActivityApproval, "External Auditor certified DMAX report ID: "+report.ID)
		e.observer.ActivitySize(len(state.Activity))
		return nil
	})
	if err != nil {
		return store.DMAXReport{}, err
	}
	e.observer.Transitioned(EntityDMAX, string(store.StatusManagerApproved), string(updated.Status))
	return updated, nil
}

// ReviseEvidence lets the owner change the comment of evidence that is still
// a Draft. Anything already submitted is frozen.
func (e *Engine) ReviseEvidence(ctx context.Context, actor store.User, id, comment string) (store.Evidence, error) {
	if strings.TrimSpace(comment) == "" {
		return store.Evidence{}, invalid("comment", MsgCommentRequired)
	}
	if utf8.RuneCountInString(comment) > MaxCommentLength {
		return store.Evidence{}, invalid("comment", MsgCommentTooLong)
	}
	var updated store.Evidence
	err := e.store.Update(store.WithActor(ctx, actor.Name), func(state *store.State) error {
		idx := indexOf(state.Evidence, id)
		if idx < 0 {
			return ErrNotFound
		}
		item := &state.Evidence[idx]
		if item.UserID != actor.ID {
			return ErrForbidden
		}
		if item.Status != store.StatusDraft {
			return fmt.Errorf("%w: %s evidence cannot be edited", ErrInvalidTransition, item.Status)
		}
		owner, err := activeUser(state, actor.ID)
		if err != nil {
			return err
		}
		item.Comment = comment
		updated = *item
		e.logger.Record(state, owner, store.ActivityStatusChange, "Revised draft evidence for task: "+e.catalog.TaskLabel(item.ChecklistItemID))
		e.observer.ActivitySize(len(state.Activity))
		return nil
	})
	if err != nil {
		return store.Evidence{}, err
	}
	return updated, nil
}

// authorize resolves the acting user from state and checks the action
// against their role, the submission's status and its department.
func (e *Engine) authorize(state *store.State, actorID string, action visibility.Action, status store.Status, dept store.Department) (store.User, error) {
	actor, err := activeUser(state, actorID)
	if err != nil {
		return store.User{}, err
	}
	capability := rbac.ActionReview
	if action == visibility.ActionCertify {
		capability = rbac.ActionCertify
	}
	if !rbac.Can(actor.Role, capability) {
		return store.User{}, ErrForbidden
	}
	if !CanTransition(status, target(action)) {
		return store.User{}, transitionError(status, target(action))
	}
	if !e.resolver.Allowed(actor, action, status, dept) {
		return store.User{}, ErrForbidden
	}
	return actor, nil
}

func (e *Engine) accept(ctx context.Context, f attachment.File, policy attachment.Policy, owner, name string) (attachment.Descriptor, error) {
	if e.attachments == nil {
		if err := fileError(policy.Check(f)); err != nil {
			return attachment.Descriptor{}, err
		}
		name = attachment.DisplayName(f, name)
		key := attachment.ObjectKey(owner, name)
		return attachment.Descriptor{Name: name, SizeLabel: attachment.SizeLabel(f.Size), Reference: "file://" + key, Key: key}, nil
	}
	desc, err := e.attachments.Accept(ctx, f, policy, owner, name)
	if err != nil {
		return attachment.Descriptor{}, fileError(err)
	}
	return desc, nil
}

// discard drops an upload whose record was never written.
func (e *Engine) discard(ctx context.Context, desc attachment.Descriptor) {
	if e.attachments == nil || desc.Key == "" {
		return
	}
	if err := e.attachments.Discard(ctx, desc); err != nil {
		log.Printf("workflow: %v", err)
	}
}

func (e *Engine) today() string {
	return e.now().Format("2006-01-02")
}

func fileError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, attachment.ErrFileType):
		return invalid("file", MsgFileType)
	case errors.Is(err, attachment.ErrFileTooLarge):
		return invalid("file", MsgFileTooLarge)
	default:
		return err
	}
}

func activeUser(state *store.State, id string) (store.User, error) {
	user, ok := state.UserByID(id)
	if !ok || !user.IsActive {
		return store.User{}, ErrForbidden
	}
	return user, nil
}

func hasActiveReport(reports []store.DMAXReport, userID, month string, year int) bool {
	for _, r := range reports {
		if r.UserID == userID && r.Month == month && r.Year == year && r.Status != store.StatusRejected {
			return true
		}
	}
	return false
}

func indexOf[T store.Submission](items []T, id string) int {
	for i, item := range items {
		if item.Key() == id {
			return i
		}
	}
	return -1
}

func reviewAction(approve bool) visibility.Action {
	if approve {
		return visibility.ActionApprove
	}
	return visibility.ActionReject
}

func reviewLogType(approve bool) store.ActivityType {
	if approve {
		return store.ActivityApproval
	}
	return store.ActivityRejection
}

func verb(approve bool) string {
	if approve {
		return "Approved"
	}
	return "Rejected"
}
