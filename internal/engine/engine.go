package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"urbanaid/internal/domain"
	"urbanaid/internal/engine/auth"
	"urbanaid/internal/events"
	"urbanaid/internal/gateway"
	"urbanaid/internal/session"
	"urbanaid/internal/views"
)

// Engine mediates report state between the local view and the remote
// authority. It is the single writer of report snapshots and of the
// optimistic claim set; the session manager is the single writer of
// identity. Each backend response is treated as the authoritative snapshot
// for its report id at dispatch time: a stale response never overwrites a
// newer one, regardless of completion order.
type Engine struct {
	Gateway *gateway.Client
	Session *session.Manager
	Events  events.Writer
	Now     func() time.Time

	mu        sync.Mutex
	seq       uint64
	snapshots map[string]snapshot
	nearby    []string            // report ids from the last nearby fetch
	inFlight  map[string]domain.ClaimAttempt
	claimed   map[string]bool // ids claimed by this actor in this session
}

type snapshot struct {
	report domain.Report
	seq    uint64
}

// New wires an engine over a gateway and session manager.
func New(gw *gateway.Client, sess *session.Manager, ev events.Writer) *Engine {
	return &Engine{
		Gateway:   gw,
		Session:   sess,
		Events:    ev,
		Now:       time.Now,
		snapshots: map[string]snapshot{},
		inFlight:  map[string]domain.ClaimAttempt{},
		claimed:   map[string]bool{},
	}
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// ensureTransition guards the forward-only lifecycle. Three legal edges;
// everything else, including any backward move, is rejected before a
// request is made.
func ensureTransition(oldStatus, newStatus domain.Status) error {
	switch oldStatus {
	case domain.StatusCreated:
		if newStatus == domain.StatusAssigned {
			return nil
		}
	case domain.StatusAssigned:
		if newStatus == domain.StatusInProgress {
			return nil
		}
	case domain.StatusInProgress:
		if newStatus == domain.StatusCompleted {
			return nil
		}
	}
	return fmt.Errorf("invalid status transition %s -> %s", oldStatus, newStatus)
}

// dispatch hands out a monotonically increasing sequence for a request
// about to leave. Responses apply under last-write-wins per report id.
func (e *Engine) dispatch() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seq++
	return e.seq
}

func (e *Engine) apply(r domain.Report, seq uint64) domain.Report {
	e.mu.Lock()
	defer e.mu.Unlock()
	cur, ok := e.snapshots[r.ID]
	if ok && cur.seq > seq {
		// a later-dispatched response already landed; keep it
		return cur.report
	}
	e.snapshots[r.ID] = snapshot{report: r, seq: seq}
	return r
}

func (e *Engine) applyList(reports []domain.Report, seq uint64) []domain.Report {
	out := make([]domain.Report, 0, len(reports))
	for _, r := range reports {
		out = append(out, e.apply(r, seq))
	}
	return out
}

// Snapshot returns the engine's current view of a report, if any.
func (e *Engine) Snapshot(reportID string) (domain.Report, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.snapshots[reportID]
	return s.report, ok
}

// SubmitReport files a new report as the signed-in citizen. When image is
// non-nil it is uploaded first; the report payload carries the returned
// path.
func (e *Engine) SubmitReport(ctx context.Context, d domain.Draft, image io.Reader, imageName string) (domain.Report, error) {
	actor, err := e.Session.RequireActor(ctx)
	if err != nil {
		return domain.Report{}, err
	}
	if err := auth.CanCreateReport(actor.Role); err != nil {
		return domain.Report{}, err
	}
	if image != nil {
		path, err := e.Gateway.UploadImage(ctx, imageName, image)
		if err != nil {
			return domain.Report{}, fmt.Errorf("upload image: %w", err)
		}
		d.ImagePath = path
	}
	seq := e.dispatch()
	r, err := e.Gateway.CreateReport(ctx, d, actor.ID)
	if err != nil {
		return domain.Report{}, err
	}
	r = e.apply(r, seq)
	e.record(ctx, "report.created", r.ID, actor.ID, events.Payload{"category": string(r.Category)})
	return r, nil
}

// MyReports lists reports scoped to the current actor: owned for citizens,
// assigned for volunteers.
func (e *Engine) MyReports(ctx context.Context) ([]domain.Report, error) {
	if _, err := e.Session.RequireActor(ctx); err != nil {
		return nil, err
	}
	seq := e.dispatch()
	reports, err := e.Gateway.MyReports(ctx)
	if err != nil {
		return nil, err
	}
	return e.applyList(reports, seq), nil
}

// Nearby fetches the claimable pool for the signed-in volunteer, filtered
// through the optimistic claim set.
func (e *Engine) Nearby(ctx context.Context) ([]domain.Report, error) {
	actor, err := e.Session.RequireActor(ctx)
	if err != nil {
		return nil, err
	}
	if err := auth.CanBrowseNearby(actor.Role); err != nil {
		return nil, err
	}
	if err := e.refreshNearby(ctx, actor); err != nil {
		return nil, err
	}
	return e.ClaimablePool(), nil
}

func (e *Engine) refreshNearby(ctx context.Context, actor domain.Actor) error {
	seq := e.dispatch()
	reports, err := e.Gateway.NearbyReports(ctx, actor.ID)
	if err != nil {
		return err
	}
	reports = e.applyList(reports, seq)
	e.mu.Lock()
	e.nearby = e.nearby[:0]
	for _, r := range reports {
		e.nearby = append(e.nearby, r.ID)
	}
	e.mu.Unlock()
	return nil
}

// ClaimablePool is the last-fetched nearby list minus reports with a claim
// in flight or already claimed by this actor.
func (e *Engine) ClaimablePool() []domain.Report {
	e.mu.Lock()
	defer e.mu.Unlock()
	hidden := map[string]bool{}
	for id := range e.inFlight {
		hidden[id] = true
	}
	for id := range e.claimed {
		hidden[id] = true
	}
	var pool []domain.Report
	for _, id := range e.nearby {
		if s, ok := e.snapshots[id]; ok {
			pool = append(pool, s.report)
		}
	}
	return views.ClaimablePool(pool, hidden)
}

// Claim attempts to take an unassigned report. The report leaves the
// claimable pool synchronously, before any network traffic, so a second
// claim from this client cannot race the first. Conflict and generic
// failures both roll the optimistic state back and refetch ground truth;
// the conflict is surfaced as *gateway.ConflictError so the caller can
// present the specific "someone else claimed it" message.
func (e *Engine) Claim(ctx context.Context, reportID string) (domain.Report, error) {
	actor, err := e.Session.RequireActor(ctx)
	if err != nil {
		return domain.Report{}, err
	}
	if err := auth.CanClaim(actor.Role); err != nil {
		return domain.Report{}, err
	}
	if _, err := gateway.ParseReportID(reportID); err != nil {
		return domain.Report{}, err
	}
	if snap, ok := e.Snapshot(reportID); ok {
		if err := ensureTransition(snap.Status, domain.StatusAssigned); err != nil {
			return domain.Report{}, err
		}
	}
	if !e.beginClaim(reportID, actor.ID) {
		return domain.Report{}, fmt.Errorf("claim already in flight for report %s", reportID)
	}

	seq := e.dispatch()
	r, err := e.Gateway.ClaimReport(ctx, reportID, actor.ID)
	if err != nil {
		e.abortClaim(reportID)
		// ground truth, not the optimistic guess: refetch the pool
		if refreshErr := e.refreshNearby(ctx, actor); refreshErr != nil {
			err = fmt.Errorf("%w (pool refresh also failed: %v)", err, refreshErr)
		}
		var conflict *gateway.ConflictError
		if errors.As(err, &conflict) {
			e.record(ctx, "report.claim.lost", reportID, actor.ID, nil)
		} else {
			e.record(ctx, "report.claim.failed", reportID, actor.ID, nil)
		}
		return domain.Report{}, err
	}
	r = e.apply(r, seq)
	e.settleClaim(reportID)
	e.record(ctx, "report.claim.won", r.ID, actor.ID, events.Payload{"status": string(r.Status)})
	return r, nil
}

func (e *Engine) beginClaim(reportID, actorID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, dup := e.inFlight[reportID]; dup {
		return false
	}
	e.inFlight[reportID] = domain.ClaimAttempt{
		ID:       uuid.New().String(),
		ReportID: reportID,
		ActorID:  actorID,
		Started:  e.now().UTC().Format(time.RFC3339),
	}
	return true
}

func (e *Engine) abortClaim(reportID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inFlight, reportID)
}

func (e *Engine) settleClaim(reportID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inFlight, reportID)
	e.claimed[reportID] = true
}

// UpdateStatus performs a remote status transition. No optimistic local
// mutation: on failure the cached snapshot is untouched; on success both
// scoped lists are refetched so counts stay consistent.
func (e *Engine) UpdateStatus(ctx context.Context, reportID string, newStatus domain.Status) (domain.Report, error) {
	actor, err := e.Session.RequireActor(ctx)
	if err != nil {
		return domain.Report{}, err
	}
	if err := auth.CanUpdateStatus(actor.Role); err != nil {
		return domain.Report{}, err
	}
	if _, err := gateway.ParseReportID(reportID); err != nil {
		return domain.Report{}, err
	}
	current, ok := e.Snapshot(reportID)
	if !ok {
		current, err = e.Report(ctx, reportID)
		if err != nil {
			return domain.Report{}, err
		}
	}
	if err := ensureTransition(current.Status, newStatus); err != nil {
		return domain.Report{}, err
	}
	seq := e.dispatch()
	r, err := e.Gateway.UpdateStatus(ctx, reportID, newStatus, actor.ID)
	if err != nil {
		return domain.Report{}, err
	}
	r = e.apply(r, seq)
	e.record(ctx, "report.status.updated", r.ID, actor.ID, events.Payload{
		"from": string(current.Status),
		"to":   string(r.Status),
	})
	// invalidate both views; errors here are reconciliation noise, the
	// update itself succeeded
	_, _ = e.MyReports(ctx)
	if actor.Role == domain.RoleVolunteer {
		_ = e.refreshNearby(ctx, actor)
	}
	return r, nil
}

// Report fetches one report. A malformed id is not found, with no network
// call.
func (e *Engine) Report(ctx context.Context, reportID string) (domain.Report, error) {
	if _, err := e.Session.RequireActor(ctx); err != nil {
		return domain.Report{}, err
	}
	if _, err := gateway.ParseReportID(reportID); err != nil {
		return domain.Report{}, err
	}
	seq := e.dispatch()
	r, err := e.Gateway.GetReport(ctx, reportID)
	if err != nil {
		return domain.Report{}, err
	}
	return e.apply(r, seq), nil
}

// AdminReports lists all reports; admin only.
func (e *Engine) AdminReports(ctx context.Context) ([]domain.Report, error) {
	actor, err := e.Session.RequireActor(ctx)
	if err != nil {
		return nil, err
	}
	if err := auth.CanAdminister(actor.Role); err != nil {
		return nil, err
	}
	seq := e.dispatch()
	reports, err := e.Gateway.AdminReports(ctx)
	if err != nil {
		return nil, err
	}
	return e.applyList(reports, seq), nil
}

// AdminUsers lists all accounts; admin only.
func (e *Engine) AdminUsers(ctx context.Context) ([]domain.User, error) {
	actor, err := e.Session.RequireActor(ctx)
	if err != nil {
		return nil, err
	}
	if err := auth.CanAdminister(actor.Role); err != nil {
		return nil, err
	}
	return e.Gateway.AdminUsers(ctx)
}

// AdminVolunteers lists all volunteer profiles; admin only.
func (e *Engine) AdminVolunteers(ctx context.Context) ([]domain.VolunteerProfile, error) {
	actor, err := e.Session.RequireActor(ctx)
	if err != nil {
		return nil, err
	}
	if err := auth.CanAdminister(actor.Role); err != nil {
		return nil, err
	}
	return e.Gateway.AdminVolunteers(ctx)
}

// record appends to the local action log. Logging is best effort; a log
// failure never fails the operation it describes.
func (e *Engine) record(ctx context.Context, evtType, reportID, actorID string, payload events.Payload) {
	if e.Events.DB == nil {
		return
	}
	_ = e.Events.Append(ctx, evtType, reportID, actorID, payload)
}

