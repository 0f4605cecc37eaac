package engine_test

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"urbanaid/internal/db"
	"urbanaid/internal/domain"
	"urbanaid/internal/engine"
	"urbanaid/internal/events"
	"urbanaid/internal/gateway"
	"urbanaid/internal/migrate"
	"urbanaid/internal/repo"
	"urbanaid/internal/server"
	"urbanaid/internal/session"
)

// gate lets a test hold claim requests at the door or fail them outright,
// to observe the engine's optimistic state mid-flight.
type gate struct {
	next      http.Handler
	holdClaim chan struct{} // when non-nil, claim requests wait here
	failClaim bool          // when set, claim requests get a canned 409
}

func (g *gate) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if strings.HasSuffix(r.URL.Path, "/claim") {
		if g.failClaim {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusConflict)
			w.Write([]byte(`{"message":"Report already assigned or closed"}`))
			return
		}
		if g.holdClaim != nil {
			<-g.holdClaim
		}
	}
	g.next.ServeHTTP(w, r)
}

type env struct {
	URL  string
	Gate *gate
	Repo repo.Repo
}

func newEnv(t *testing.T) *env {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	r := repo.Repo{DB: conn}
	handler, err := server.New(server.Config{Repo: r, Workspace: workspace, Auth: server.AuthConfig{JWTSecret: "test-secret"}})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	g := &gate{next: handler}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: g}
	go srv.Serve(ln)
	t.Cleanup(func() {
		srv.Shutdown(context.Background())
		ln.Close()
		conn.Close()
	})
	return &env{URL: "http://" + ln.Addr().String(), Gate: g, Repo: r}
}

// actor is a fully wired client: its own gateway, session and engine, the
// way one process would hold them.
type actor struct {
	Session *session.Manager
	Engine  *engine.Engine
}

func newActor(t *testing.T, e *env) *actor {
	t.Helper()
	client := gateway.New(e.URL)
	sess := &session.Manager{Store: session.NewMemStore(), Client: client}
	return &actor{Session: sess, Engine: engine.New(client, sess, events.Writer{})}
}

func citizenActor(t *testing.T, e *env, email string) *actor {
	t.Helper()
	a := newActor(t, e)
	ctx := context.Background()
	err := a.Session.Register(ctx, domain.Registration{
		Name: "Cit Izen", Email: email, Password: "pass1234", Mobile: "9876543210",
	})
	if err != nil {
		t.Fatalf("register citizen: %v", err)
	}
	if _, err := a.Session.SignIn(ctx, email, "pass1234"); err != nil {
		t.Fatalf("signin citizen: %v", err)
	}
	return a
}

func volunteerActor(t *testing.T, e *env, email, skill string) *actor {
	t.Helper()
	a := newActor(t, e)
	ctx := context.Background()
	err := a.Session.Register(ctx, domain.Registration{
		Name: "Vol Unteer", Email: email, Password: "pass1234", Mobile: "9876543211",
		Role: domain.RoleVolunteer, Area: "Downtown", Latitude: 12.9, Longitude: 77.6, Skill: skill,
	})
	if err != nil {
		t.Fatalf("register volunteer: %v", err)
	}
	if _, err := a.Session.SignIn(ctx, email, "pass1234"); err != nil {
		t.Fatalf("signin volunteer: %v", err)
	}
	return a
}

func submit(t *testing.T, a *actor, description string) domain.Report {
	t.Helper()
	r, err := a.Engine.SubmitReport(context.Background(), domain.Draft{
		Description: description,
		Category:    domain.CategoryRoadDamage,
		Address:     "Main St",
		Latitude:    12.9,
		Longitude:   77.6,
	}, nil, "")
	if err != nil {
		t.Fatalf("submit report: %v", err)
	}
	return r
}

func poolHas(pool []domain.Report, id string) bool {
	for _, r := range pool {
		if r.ID == id {
			return true
		}
	}
	return false
}

func TestFullLifecycle(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	citizen := citizenActor(t, e, "c@example.com")
	volunteer := volunteerActor(t, e, "v@example.com", "road")

	r := submit(t, citizen, "Pothole on Main St, deep one")
	if r.Status != domain.StatusCreated {
		t.Fatalf("new report status = %s", r.Status)
	}
	if r.Category != domain.CategoryRoadDamage {
		t.Fatalf("round-tripped category = %s", r.Category)
	}
	if r.Title != "Pothole on Main St, deep one" {
		t.Fatalf("title = %q", r.Title)
	}
	if r.VolunteerID != "" {
		t.Fatalf("fresh report already has assignee %q", r.VolunteerID)
	}

	nearby, err := volunteer.Engine.Nearby(ctx)
	if err != nil {
		t.Fatalf("nearby: %v", err)
	}
	if !poolHas(nearby, r.ID) {
		t.Fatalf("report missing from nearby: %+v", nearby)
	}

	claimed, err := volunteer.Engine.Claim(ctx, r.ID)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed.Status != domain.StatusAssigned || !claimed.Assigned() {
		t.Fatalf("claimed = %+v", claimed)
	}
	if poolHas(volunteer.Engine.ClaimablePool(), r.ID) {
		t.Fatalf("claimed report still in pool")
	}

	if _, err := volunteer.Engine.UpdateStatus(ctx, r.ID, domain.StatusInProgress); err != nil {
		t.Fatalf("to in-progress: %v", err)
	}
	done, err := volunteer.Engine.UpdateStatus(ctx, r.ID, domain.StatusCompleted)
	if err != nil {
		t.Fatalf("to completed: %v", err)
	}
	if done.Status != domain.StatusCompleted {
		t.Fatalf("final status = %s", done.Status)
	}

	// no going back
	if _, err := volunteer.Engine.UpdateStatus(ctx, r.ID, domain.StatusInProgress); err == nil {
		t.Fatalf("backward transition accepted")
	}

	// citizen's view converges
	mine, err := citizen.Engine.MyReports(ctx)
	if err != nil {
		t.Fatalf("citizen my reports: %v", err)
	}
	if len(mine) != 1 || mine[0].Status != domain.StatusCompleted {
		t.Fatalf("citizen view = %+v", mine)
	}
	if mine[0].UpdatedAt < mine[0].CreatedAt {
		t.Fatalf("timestamps went backward: %+v", mine[0])
	}
}

func TestSkippingStatesRejectedLocally(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	citizen := citizenActor(t, e, "c@example.com")
	volunteer := volunteerActor(t, e, "v@example.com", "road")

	r := submit(t, citizen, "Water leak near the park entrance")
	if _, err := volunteer.Engine.Nearby(ctx); err != nil {
		t.Fatalf("nearby: %v", err)
	}

	// created -> in-progress skips assigned
	if _, err := volunteer.Engine.UpdateStatus(ctx, r.ID, domain.StatusInProgress); err == nil {
		t.Fatalf("skip transition accepted")
	}
	// created -> completed skips two states
	if _, err := volunteer.Engine.UpdateStatus(ctx, r.ID, domain.StatusCompleted); err == nil {
		t.Fatalf("skip transition accepted")
	}
}

func TestClaimHidesReportBeforeResponse(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	citizen := citizenActor(t, e, "c@example.com")
	volunteer := volunteerActor(t, e, "v@example.com", "road")

	r := submit(t, citizen, "Streetlight out on 2nd Ave corner")
	if _, err := volunteer.Engine.Nearby(ctx); err != nil {
		t.Fatalf("nearby: %v", err)
	}

	release := make(chan struct{})
	e.Gate.holdClaim = release
	claimed := make(chan error, 1)
	go func() {
		_, err := volunteer.Engine.Claim(ctx, r.ID)
		claimed <- err
	}()

	// the report leaves the pool before the backend answers
	deadline := time.After(2 * time.Second)
	for poolHas(volunteer.Engine.ClaimablePool(), r.ID) {
		select {
		case <-deadline:
			t.Fatalf("report still in pool while claim in flight")
		case <-time.After(5 * time.Millisecond):
		}
	}

	close(release)
	if err := <-claimed; err != nil {
		t.Fatalf("claim: %v", err)
	}
	if poolHas(volunteer.Engine.ClaimablePool(), r.ID) {
		t.Fatalf("claimed report back in pool")
	}
}

func TestClaimConflictRollsBack(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	citizen := citizenActor(t, e, "c@example.com")
	volunteer := volunteerActor(t, e, "v@example.com", "road")

	r := submit(t, citizen, "Garbage pileup behind the market")
	if _, err := volunteer.Engine.Nearby(ctx); err != nil {
		t.Fatalf("nearby: %v", err)
	}

	// simulated conflict: backend says taken, but the report is in fact
	// still unassigned, so reconciliation must restore it to the pool
	e.Gate.failClaim = true
	_, err := volunteer.Engine.Claim(ctx, r.ID)
	var conflict *gateway.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("claim err = %v, want ConflictError", err)
	}
	if !poolHas(volunteer.Engine.ClaimablePool(), r.ID) {
		t.Fatalf("report not restored to pool after conflict")
	}

	// with the conflict gone the claim goes through
	e.Gate.failClaim = false
	if _, err := volunteer.Engine.Claim(ctx, r.ID); err != nil {
		t.Fatalf("retry claim: %v", err)
	}
}

func TestClaimLostToAnotherVolunteer(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	citizen := citizenActor(t, e, "c@example.com")
	v1 := volunteerActor(t, e, "v1@example.com", "road")
	v2 := volunteerActor(t, e, "v2@example.com", "road")

	r := submit(t, citizen, "Graffiti on the underpass wall")
	if _, err := v1.Engine.Nearby(ctx); err != nil {
		t.Fatalf("v1 nearby: %v", err)
	}
	if _, err := v2.Engine.Nearby(ctx); err != nil {
		t.Fatalf("v2 nearby: %v", err)
	}

	if _, err := v1.Engine.Claim(ctx, r.ID); err != nil {
		t.Fatalf("v1 claim: %v", err)
	}

	_, err := v2.Engine.Claim(ctx, r.ID)
	var conflict *gateway.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("v2 claim err = %v, want ConflictError", err)
	}
	// this time the report really is gone; the refetched pool agrees
	if poolHas(v2.Engine.ClaimablePool(), r.ID) {
		t.Fatalf("assigned report still in v2's pool")
	}
}

func TestMalformedReportIDIsNotFoundWithoutNetwork(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	citizen := citizenActor(t, e, "c@example.com")

	// point the gateway at a dead address: a network call would fail loudly
	citizen.Engine.Gateway.BaseURL = "http://127.0.0.1:1"
	_, err := citizen.Engine.Report(ctx, "not-a-number")
	var nf *gateway.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("err = %v, want NotFoundError", err)
	}
}

func TestRoleChecks(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	citizen := citizenActor(t, e, "c@example.com")
	volunteer := volunteerActor(t, e, "v@example.com", "road")

	if _, err := citizen.Engine.Nearby(ctx); err == nil {
		t.Fatalf("citizen browsed nearby")
	}
	if _, err := citizen.Engine.Claim(ctx, "1"); err == nil {
		t.Fatalf("citizen claimed")
	}
	if _, err := volunteer.Engine.SubmitReport(ctx, domain.Draft{Description: "Volunteer filing a report here"}, nil, ""); err == nil {
		t.Fatalf("volunteer submitted report")
	}
	if _, err := citizen.Engine.AdminReports(ctx); err == nil {
		t.Fatalf("citizen listed admin reports")
	}
}
