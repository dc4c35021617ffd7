package arena

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/agentclash/arena/engine"
	"github.com/agentclash/arena/matchmaking"
	"github.com/agentclash/arena/models"
)

type fakeSink struct {
	mu            sync.Mutex
	events        []engine.Event
	announcements []announcement
}

type announcement struct {
	kind string
	data any
}

func (s *fakeSink) MatchEvent(ev engine.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *fakeSink) Announcement(kind string, data any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.announcements = append(s.announcements, announcement{kind: kind, data: data})
}

func (s *fakeSink) announcementsOf(kind string) []announcement {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []announcement
	for _, a := range s.announcements {
		if a.kind == kind {
			out = append(out, a)
		}
	}
	return out
}

type fakeRecorder struct {
	mu      sync.Mutex
	results []models.MatchResult
}

func (r *fakeRecorder) RecordResult(_ context.Context, result models.MatchResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
	return nil
}

func (r *fakeRecorder) recorded() []models.MatchResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.MatchResult(nil), r.results...)
}

type fakeSource struct{}

func (fakeSource) GetSnapshots(_ context.Context, ids []string) ([]models.Participant, error) {
	out := make([]models.Participant, 0, len(ids))
	for _, id := range ids {
		out = append(out, models.Participant{ID: id, DisplayName: id})
	}
	return out, nil
}

type fakeConnectivity struct {
	mu        sync.Mutex
	connected map[string]bool
}

func (c *fakeConnectivity) IsConnected(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected[id]
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

type fixture struct {
	orch     *Orchestrator
	sink     *fakeSink
	recorder *fakeRecorder
}

// newFixture wires an orchestrator around a two-player throwdown queue with
// a near-zero pre-match delay. One round decides the match, so a single
// exchange of throws drives the full lifecycle.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	registry := engine.NewRegistry(nil)
	err := registry.Register(engine.NewThrowdownDescriptor(engine.ThrowdownSettings{
		RoundsToWin: 1,
		Throwing:    time.Hour,
		Reveal:      time.Hour,
		Between:     time.Hour,
		Rand:        rand.New(rand.NewSource(1)),
	}))
	if err != nil {
		t.Fatalf("Register returned %v", err)
	}

	queues := matchmaking.NewManager(nil)
	if err := queues.Configure(engine.GameTypeThrowdown, 2); err != nil {
		t.Fatalf("Configure returned %v", err)
	}

	sink := &fakeSink{}
	recorder := &fakeRecorder{}
	orch := NewOrchestrator(registry, queues, fakeSource{}, sink, recorder, nil, Config{
		PreMatchDelay: time.Millisecond,
		RecordTimeout: time.Second,
	}, nil)
	return &fixture{orch: orch, sink: sink, recorder: recorder}
}

func (f *fixture) startMatch(t *testing.T) string {
	t.Helper()
	if err := f.orch.JoinQueue(engine.GameTypeThrowdown, "p1"); err != nil {
		t.Fatalf("JoinQueue(p1) returned %v", err)
	}
	if err := f.orch.JoinQueue(engine.GameTypeThrowdown, "p2"); err != nil {
		t.Fatalf("JoinQueue(p2) returned %v", err)
	}

	created := f.sink.announcementsOf("match_created")
	if len(created) != 1 {
		t.Fatalf("got %d match_created announcements, want 1", len(created))
	}
	data, ok := created[0].data.(map[string]any)
	if !ok {
		t.Fatalf("announcement data type %T", created[0].data)
	}
	matchID, ok := data["match_id"].(string)
	if !ok || matchID == "" {
		t.Fatalf("announcement carries no match id: %v", data)
	}

	waitUntil(t, time.Second, func() bool {
		m, ok := f.orch.GetMatch(matchID)
		return ok && m.Phase() == models.MatchActive
	})
	return matchID
}

func TestOrchestratorFullMatchLifecycle(t *testing.T) {
	f := newFixture(t)
	matchID := f.startMatch(t)

	for _, id := range []string{"p1", "p2"} {
		state, _, gotMatch := f.orch.Location(id)
		if state != "in_match" || gotMatch != matchID {
			t.Errorf("Location(%s) = %s in %s, want in_match in %s", id, state, gotMatch, matchID)
		}
	}

	if err := f.orch.SubmitAction(matchID, "p1", engine.ThrowAction{Choice: engine.ThrowRock}); err != nil {
		t.Fatalf("SubmitAction(p1) returned %v", err)
	}
	if err := f.orch.SubmitAction(matchID, "p2", engine.ThrowAction{Choice: engine.ThrowScissors}); err != nil {
		t.Fatalf("SubmitAction(p2) returned %v", err)
	}

	// finish teardown runs on the match's dispatch goroutine
	waitUntil(t, time.Second, func() bool {
		return len(f.recorder.recorded()) == 1
	})

	result := f.recorder.recorded()[0]
	if result.MatchID != matchID {
		t.Errorf("recorded match id = %s, want %s", result.MatchID, matchID)
	}
	if result.WinnerID == nil || *result.WinnerID != "p1" {
		t.Errorf("recorded winner = %v, want p1", result.WinnerID)
	}
	if len(result.Placements) != 2 || result.Placements[0].ParticipantID != "p1" {
		t.Errorf("recorded placements = %+v, want p1 first", result.Placements)
	}

	waitUntil(t, time.Second, func() bool {
		_, ok := f.orch.GetMatch(matchID)
		return !ok
	})
	for _, id := range []string{"p1", "p2"} {
		waitUntil(t, time.Second, func() bool {
			state, _, _ := f.orch.Location(id)
			return state == "idle"
		})
	}
	if live := f.orch.LiveMatches(); len(live) != 0 {
		t.Errorf("live matches after finish = %d, want 0", len(live))
	}

	f.sink.mu.Lock()
	defer f.sink.mu.Unlock()
	if len(f.sink.events) == 0 {
		t.Fatal("no match events reached the sink")
	}
	if last := f.sink.events[len(f.sink.events)-1]; last.Type != engine.EventMatchFinished {
		t.Errorf("last sink event = %s, want %s", last.Type, engine.EventMatchFinished)
	}
}

func TestOrchestratorJoinInvariants(t *testing.T) {
	f := newFixture(t)

	if err := f.orch.JoinQueue(engine.GameTypeThrowdown, "p1"); err != nil {
		t.Fatalf("JoinQueue returned %v", err)
	}
	if err := f.orch.JoinQueue(engine.GameTypeThrowdown, "p1"); !errors.Is(err, ErrAlreadyQueued) {
		t.Errorf("second JoinQueue = %v, want ErrAlreadyQueued", err)
	}
	if state, gameType, _ := f.orch.Location("p1"); state != "queued" || gameType != engine.GameTypeThrowdown {
		t.Errorf("Location = %s in %s, want queued in %s", state, gameType, engine.GameTypeThrowdown)
	}

	// completing the batch moves both into a match; joining from there fails
	if err := f.orch.JoinQueue(engine.GameTypeThrowdown, "p2"); err != nil {
		t.Fatalf("JoinQueue(p2) returned %v", err)
	}
	if err := f.orch.JoinQueue(engine.GameTypeThrowdown, "p1"); !errors.Is(err, ErrAlreadyInMatch) {
		t.Errorf("JoinQueue while in match = %v, want ErrAlreadyInMatch", err)
	}
	if err := f.orch.LeaveQueue(engine.GameTypeThrowdown, "p1"); !errors.Is(err, ErrAlreadyInMatch) {
		t.Errorf("LeaveQueue while in match = %v, want ErrAlreadyInMatch", err)
	}
}

func TestOrchestratorLeaveQueue(t *testing.T) {
	f := newFixture(t)

	// leaving while idle is a no-op
	if err := f.orch.LeaveQueue(engine.GameTypeThrowdown, "p1"); err != nil {
		t.Errorf("LeaveQueue while idle = %v, want nil", err)
	}

	if err := f.orch.JoinQueue(engine.GameTypeThrowdown, "p1"); err != nil {
		t.Fatalf("JoinQueue returned %v", err)
	}
	if err := f.orch.LeaveQueue(engine.GameTypeThrowdown, "p1"); err != nil {
		t.Fatalf("LeaveQueue returned %v", err)
	}
	if state, _, _ := f.orch.Location("p1"); state != "idle" {
		t.Errorf("Location after leave = %s, want idle", state)
	}

	// the freed slot means p2 and p3 form the next batch without p1
	if err := f.orch.JoinQueue(engine.GameTypeThrowdown, "p2"); err != nil {
		t.Fatalf("JoinQueue(p2) returned %v", err)
	}
	if err := f.orch.JoinQueue(engine.GameTypeThrowdown, "p3"); err != nil {
		t.Fatalf("JoinQueue(p3) returned %v", err)
	}
	if state, _, _ := f.orch.Location("p1"); state != "idle" {
		t.Errorf("p1 pulled into a match after leaving: %s", state)
	}
	if state, _, _ := f.orch.Location("p2"); state != "in_match" {
		t.Errorf("Location(p2) = %s, want in_match", state)
	}
}

func TestOrchestratorSubmitActionRequiresMatch(t *testing.T) {
	f := newFixture(t)

	err := f.orch.SubmitAction("", "p1", engine.ThrowAction{Choice: engine.ThrowRock})
	if !errors.Is(err, ErrNotInMatch) {
		t.Errorf("SubmitAction while idle = %v, want ErrNotInMatch", err)
	}

	f.startMatch(t)
	err = f.orch.SubmitAction("some-other-match", "p1", engine.ThrowAction{Choice: engine.ThrowRock})
	if !errors.Is(err, ErrNotInMatch) {
		t.Errorf("SubmitAction with mismatched match id = %v, want ErrNotInMatch", err)
	}

	// empty match id routes by location
	if err := f.orch.SubmitAction("", "p1", engine.ThrowAction{Choice: engine.ThrowRock}); err != nil {
		t.Errorf("SubmitAction with empty match id = %v, want nil", err)
	}
}

func TestOrchestratorCancelMatch(t *testing.T) {
	f := newFixture(t)

	if err := f.orch.CancelMatch("nope"); !errors.Is(err, ErrMatchNotFound) {
		t.Errorf("CancelMatch(unknown) = %v, want ErrMatchNotFound", err)
	}

	matchID := f.startMatch(t)
	if err := f.orch.CancelMatch(matchID); err != nil {
		t.Fatalf("CancelMatch returned %v", err)
	}

	// cancellation tears down through the same finish path as a normal end
	waitUntil(t, time.Second, func() bool {
		return len(f.recorder.recorded()) == 1
	})
	result := f.recorder.recorded()[0]
	if result.WinnerID != nil {
		t.Errorf("cancelled match recorded winner %v, want none", *result.WinnerID)
	}
	if len(result.Placements) != 2 {
		t.Errorf("cancelled match recorded %d placements, want 2", len(result.Placements))
	}
	waitUntil(t, time.Second, func() bool {
		state, _, _ := f.orch.Location("p1")
		return state == "idle"
	})
}

func TestOrchestratorDisconnectDropsQueuedOnly(t *testing.T) {
	f := newFixture(t)

	if err := f.orch.JoinQueue(engine.GameTypeThrowdown, "p1"); err != nil {
		t.Fatalf("JoinQueue returned %v", err)
	}
	f.orch.HandleDisconnect("p1")
	if state, _, _ := f.orch.Location("p1"); state != "idle" {
		t.Errorf("Location after disconnect = %s, want idle", state)
	}

	matchID := f.startMatch(t)
	f.orch.HandleDisconnect("p1")
	if state, _, gotMatch := f.orch.Location("p1"); state != "in_match" || gotMatch != matchID {
		t.Errorf("in-match participant dropped on disconnect: %s in %s", state, gotMatch)
	}
	if _, ok := f.orch.GetMatch(matchID); !ok {
		t.Error("match torn down by a disconnect")
	}
}

func TestOrchestratorConnectivityPrecondition(t *testing.T) {
	registry := engine.NewRegistry(nil)
	if err := registry.Register(engine.NewThrowdownDescriptor(engine.ThrowdownSettings{
		Throwing: time.Hour,
		Rand:     rand.New(rand.NewSource(1)),
	})); err != nil {
		t.Fatalf("Register returned %v", err)
	}
	queues := matchmaking.NewManager(nil)
	if err := queues.Configure(engine.GameTypeThrowdown, 2); err != nil {
		t.Fatalf("Configure returned %v", err)
	}
	conn := &fakeConnectivity{connected: map[string]bool{"p1": true}}
	orch := NewOrchestrator(registry, queues, fakeSource{}, &fakeSink{}, &fakeRecorder{}, conn, Config{
		PreMatchDelay: time.Millisecond,
	}, nil)

	if err := orch.JoinQueue(engine.GameTypeThrowdown, "p1"); err != nil {
		t.Errorf("JoinQueue(connected) = %v, want nil", err)
	}
	if err := orch.JoinQueue(engine.GameTypeThrowdown, "p2"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("JoinQueue(disconnected) = %v, want ErrNotConnected", err)
	}
	if state, _, _ := orch.Location("p2"); state != "idle" {
		t.Errorf("rejected join left location %s, want idle", state)
	}
}
