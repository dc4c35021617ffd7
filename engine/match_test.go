package engine

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/agentclash/arena/models"
)

func testRoster(n int) []models.Participant {
	out := make([]models.Participant, n)
	for i := range out {
		out[i] = models.Participant{
			ID:          fmt.Sprintf("p%d", i+1),
			DisplayName: fmt.Sprintf("Player %d", i+1),
		}
	}
	return out
}

func testRNG() *rand.Rand {
	return rand.New(rand.NewSource(1))
}

// waitUntil polls cond until it returns true or the deadline passes.
func waitUntil(t *testing.T, d time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not reached before deadline")
}

// eventCollector gathers delivered events behind a mutex.
type eventCollector struct {
	mu     sync.Mutex
	events []Event
}

func (c *eventCollector) add(ev Event) {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
}

func (c *eventCollector) types() []EventType {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]EventType, len(c.events))
	for i, ev := range c.events {
		out[i] = ev.Type
	}
	return out
}

func (c *eventCollector) last() (Event, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.events) == 0 {
		return Event{}, false
	}
	return c.events[len(c.events)-1], true
}

func TestBaseMatchStartOnce(t *testing.T) {
	b := newBaseMatch("m1", "test", testRoster(2), 0, testRNG(), nil)

	if got := b.Phase(); got != models.MatchWaiting {
		t.Fatalf("Phase() before start = %q, want %q", got, models.MatchWaiting)
	}
	if err := b.Start(); err != nil {
		t.Fatalf("Start() returned %v", err)
	}
	if got := b.Phase(); got != models.MatchActive {
		t.Fatalf("Phase() after start = %q, want %q", got, models.MatchActive)
	}
	if err := b.Start(); err != ErrMatchAlreadyStarted {
		t.Fatalf("second Start() = %v, want ErrMatchAlreadyStarted", err)
	}

	b.Cancel()
	if got := b.Phase(); got != models.MatchFinished {
		t.Fatalf("Phase() after cancel = %q, want %q", got, models.MatchFinished)
	}
	if err := b.Start(); err != ErrMatchAlreadyStarted {
		t.Fatalf("Start() after finish = %v, want ErrMatchAlreadyStarted", err)
	}
}

func TestPlacementsPermutation(t *testing.T) {
	b := newBaseMatch("m1", "test", testRoster(4), 0, testRNG(), nil)
	if err := b.Start(); err != nil {
		t.Fatalf("Start() returned %v", err)
	}

	b.mu.Lock()
	b.eliminateLocked("p4", 1)
	b.eliminateLocked("p3", 2)
	b.mu.Unlock()

	b.Cancel()

	placements := b.Placements()
	if len(placements) != 4 {
		t.Fatalf("got %d placements, want 4", len(placements))
	}

	seenPlace := make(map[int]bool)
	seenID := make(map[string]bool)
	for i, pl := range placements {
		if pl.Place < 1 || pl.Place > 4 || seenPlace[pl.Place] {
			t.Errorf("place %d is not part of a permutation of 1..4", pl.Place)
		}
		if seenID[pl.ParticipantID] {
			t.Errorf("participant %s placed twice", pl.ParticipantID)
		}
		seenPlace[pl.Place] = true
		seenID[pl.ParticipantID] = true

		if want := 4 - pl.Place; pl.Points != want {
			t.Errorf("place %d points = %d, want %d", pl.Place, pl.Points, want)
		}
		if i > 0 && pl.Points > placements[i-1].Points {
			t.Errorf("points increase at index %d", i)
		}
	}

	// survivors (roster order) first, then reverse elimination order
	wantOrder := []string{"p1", "p2", "p3", "p4"}
	for i, pl := range placements {
		if pl.ParticipantID != wantOrder[i] {
			t.Errorf("place %d = %s, want %s", i+1, pl.ParticipantID, wantOrder[i])
		}
	}
}

func TestEliminateIdempotent(t *testing.T) {
	b := newBaseMatch("m1", "test", testRoster(3), 0, testRNG(), nil)
	if err := b.Start(); err != nil {
		t.Fatalf("Start() returned %v", err)
	}

	b.mu.Lock()
	first := b.eliminateLocked("p2", 1)
	second := b.eliminateLocked("p2", 2)
	elimCount := len(b.elimOrder)
	b.mu.Unlock()

	if !first {
		t.Error("first eliminateLocked returned false")
	}
	if second {
		t.Error("second eliminateLocked returned true, want no-op")
	}
	if elimCount != 1 {
		t.Errorf("elimination order has %d entries, want 1", elimCount)
	}
}

func TestChatTruncation(t *testing.T) {
	b := newBaseMatch("m1", "test", testRoster(2), 0, testRNG(), nil)
	if err := b.Start(); err != nil {
		t.Fatalf("Start() returned %v", err)
	}

	long := strings.Repeat("x", maxChatRunes+57)
	if err := b.submitChat("p1", long); err != nil {
		t.Fatalf("submitChat returned %v", err)
	}

	b.mu.Lock()
	got := b.chatLog[len(b.chatLog)-1].Text
	b.mu.Unlock()
	if len([]rune(got)) != maxChatRunes {
		t.Errorf("stored chat length = %d runes, want %d", len([]rune(got)), maxChatRunes)
	}
}

func TestChatRejections(t *testing.T) {
	b := newBaseMatch("m1", "test", testRoster(2), 0, testRNG(), nil)
	if err := b.Start(); err != nil {
		t.Fatalf("Start() returned %v", err)
	}
	b.mu.Lock()
	b.eliminateLocked("p2", 1)
	b.mu.Unlock()

	tests := []struct {
		name          string
		participantID string
		wantErr       error
	}{
		{"unknown participant", "ghost", ErrPlayerNotFound},
		{"eliminated participant", "p2", ErrPlayerInactive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := b.submitChat(tt.participantID, "hi"); err != tt.wantErr {
				t.Errorf("submitChat = %v, want %v", err, tt.wantErr)
			}
		})
	}

	b.Cancel()
	if err := b.submitChat("p1", "hi"); err != ErrWrongPhase {
		t.Errorf("submitChat after finish = %v, want ErrWrongPhase", err)
	}
}

func TestEventOrderAndFinalEvent(t *testing.T) {
	b := newBaseMatch("m1", "test", testRoster(3), 42, testRNG(), nil)
	col := &eventCollector{}
	b.Subscribe(col.add)

	if err := b.Start(); err != nil {
		t.Fatalf("Start() returned %v", err)
	}
	b.mu.Lock()
	b.eliminateLocked("p3", 1)
	b.mu.Unlock()
	b.Cancel()

	waitUntil(t, time.Second, func() bool {
		last, ok := col.last()
		return ok && last.Type == EventMatchFinished
	})

	types := col.types()
	if types[0] != EventMatchStarted {
		t.Errorf("first event = %q, want %q", types[0], EventMatchStarted)
	}
	if types[len(types)-1] != EventMatchFinished {
		t.Errorf("last event = %q, want %q", types[len(types)-1], EventMatchFinished)
	}

	elimIdx, finishIdx := -1, -1
	for i, typ := range types {
		switch typ {
		case EventPlayerEliminated:
			elimIdx = i
		case EventMatchFinished:
			finishIdx = i
		}
	}
	if elimIdx == -1 || elimIdx > finishIdx {
		t.Errorf("elimination at index %d not before finish at %d", elimIdx, finishIdx)
	}

	last, _ := col.last()
	payload, ok := last.Payload.(MatchFinishedPayload)
	if !ok {
		t.Fatalf("final payload type %T, want MatchFinishedPayload", last.Payload)
	}
	if payload.PrizePool != 42 {
		t.Errorf("final prize pool = %v, want 42", payload.PrizePool)
	}
	if payload.WinnerID != nil {
		t.Errorf("winner = %v, want nil with two survivors", *payload.WinnerID)
	}
	if len(payload.Placements) != 3 {
		t.Errorf("final placements = %d, want 3", len(payload.Placements))
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := newBaseMatch("m1", "test", testRoster(2), 0, testRNG(), nil)
	col := &eventCollector{}
	unsub := b.Subscribe(col.add)
	unsub()

	if err := b.Start(); err != nil {
		t.Fatalf("Start() returned %v", err)
	}
	b.Cancel()

	// give the dispatch goroutine a moment to (incorrectly) deliver
	time.Sleep(20 * time.Millisecond)
	if got := len(col.types()); got != 0 {
		t.Errorf("unsubscribed listener received %d events, want 0", got)
	}
}

func TestPanickingListenerIsolated(t *testing.T) {
	b := newBaseMatch("m1", "test", testRoster(2), 0, testRNG(), nil)
	b.Subscribe(func(Event) { panic("bad listener") })
	col := &eventCollector{}
	b.Subscribe(col.add)

	if err := b.Start(); err != nil {
		t.Fatalf("Start() returned %v", err)
	}
	b.Cancel()

	waitUntil(t, time.Second, func() bool {
		last, ok := col.last()
		return ok && last.Type == EventMatchFinished
	})
}

func TestStaleTimerDoesNotFire(t *testing.T) {
	b := newBaseMatch("m1", "test", testRoster(2), 0, testRNG(), nil)
	if err := b.Start(); err != nil {
		t.Fatalf("Start() returned %v", err)
	}

	fired := make(chan struct{}, 1)
	b.mu.Lock()
	b.scheduleLocked(10*time.Millisecond, func() { fired <- struct{}{} })
	b.mu.Unlock()

	b.Cancel()

	select {
	case <-fired:
		t.Error("superseded timer callback fired after finish")
	case <-time.After(50 * time.Millisecond):
	}
}
