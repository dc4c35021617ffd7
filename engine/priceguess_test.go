package engine

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/agentclash/arena/models"
)

func newTestPriceGuess(t *testing.T, items []PriceItem, players, eliminatePerRound int) *PriceGuessMatch {
	t.Helper()
	// hour-long phases keep the timers out of the way; tests advance the
	// match by calling the phase transitions directly
	settings := PriceGuessSettings{
		Items:             items,
		EliminatePerRound: eliminatePerRound,
		MaxPlayers:        8,
		Deliberation:      time.Hour,
		Reveal:            time.Hour,
		Elimination:       time.Hour,
		Rand:              testRNG(),
	}
	m, err := newPriceGuessMatch(MatchConfig{
		MatchID:      "pg-test",
		Participants: testRoster(players),
		PrizePool:    400,
	}, settings)
	if err != nil {
		t.Fatalf("newPriceGuessMatch returned %v", err)
	}
	return m
}

func (m *PriceGuessMatch) advanceReveal() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.supersedeTimerLocked()
	m.revealLocked()
}

func (m *PriceGuessMatch) advanceElimination() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.supersedeTimerLocked()
	m.eliminationLocked()
}

func (m *PriceGuessMatch) activeSet() map[string]bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]bool)
	for _, id := range m.activeIDsLocked() {
		out[id] = true
	}
	return out
}

func TestPriceGuessEliminatesWorstDistances(t *testing.T) {
	m := newTestPriceGuess(t, []PriceItem{
		{Name: "item one", TrueValue: 1000},
		{Name: "item two", TrueValue: 500},
	}, 4, 2)
	if err := m.Start(); err != nil {
		t.Fatalf("Start returned %v", err)
	}

	guesses := map[string]float64{
		"p1": 1000,
		"p2": 900,
		"p3": 1400,
		"p4": 5000,
	}
	for id, amount := range guesses {
		if err := m.HandleAction(id, BidAction{Amount: amount}); err != nil {
			t.Fatalf("bid from %s returned %v", id, err)
		}
	}

	m.advanceReveal()
	m.advanceElimination()

	active := m.activeSet()
	for _, id := range []string{"p1", "p2"} {
		if !active[id] {
			t.Errorf("%s was eliminated, want active", id)
		}
	}
	for _, id := range []string{"p3", "p4"} {
		if active[id] {
			t.Errorf("%s is still active, want eliminated", id)
		}
	}
}

func TestPriceGuessNoGuessIsWorstPossible(t *testing.T) {
	m := newTestPriceGuess(t, []PriceItem{
		{Name: "item", TrueValue: 100},
		{Name: "spare", TrueValue: 100},
	}, 3, 1)
	if err := m.Start(); err != nil {
		t.Fatalf("Start returned %v", err)
	}

	// p3 stays silent; even a wildly wrong guess beats no guess at all
	if err := m.HandleAction("p1", BidAction{Amount: 100}); err != nil {
		t.Fatalf("bid returned %v", err)
	}
	if err := m.HandleAction("p2", BidAction{Amount: 1_000_000}); err != nil {
		t.Fatalf("bid returned %v", err)
	}

	m.advanceReveal()

	m.mu.Lock()
	worst := m.entries[0]
	m.mu.Unlock()
	if worst.ParticipantID != "p3" {
		t.Errorf("worst entry is %s, want the silent p3", worst.ParticipantID)
	}
	if !math.IsInf(worst.Distance, 1) {
		t.Errorf("silent distance = %v, want +Inf", worst.Distance)
	}
	if worst.Guess != nil {
		t.Errorf("silent entry carries guess %v, want none", *worst.Guess)
	}

	m.advanceElimination()
	if active := m.activeSet(); active["p3"] {
		t.Error("p3 survived the round without guessing")
	}
}

func TestPriceGuessResubmitOverwrites(t *testing.T) {
	m := newTestPriceGuess(t, []PriceItem{{Name: "item", TrueValue: 1000}}, 2, 1)
	if err := m.Start(); err != nil {
		t.Fatalf("Start returned %v", err)
	}

	if err := m.HandleAction("p1", BidAction{Amount: 5}); err != nil {
		t.Fatalf("bid returned %v", err)
	}
	if err := m.HandleAction("p1", BidAction{Amount: 1000}); err != nil {
		t.Fatalf("resubmitted bid returned %v", err)
	}
	if err := m.HandleAction("p2", BidAction{Amount: 900}); err != nil {
		t.Fatalf("bid returned %v", err)
	}

	m.advanceReveal()
	m.advanceElimination()

	if active := m.activeSet(); !active["p1"] || active["p2"] {
		t.Errorf("active set = %v, want p1 only after overwrite to the exact value", active)
	}
}

func TestPriceGuessFinishesWithSingleSurvivor(t *testing.T) {
	m := newTestPriceGuess(t, []PriceItem{
		{Name: "item one", TrueValue: 1000},
		{Name: "item two", TrueValue: 500},
	}, 2, 1)
	if err := m.Start(); err != nil {
		t.Fatalf("Start returned %v", err)
	}

	if err := m.HandleAction("p1", BidAction{Amount: 1000}); err != nil {
		t.Fatalf("bid returned %v", err)
	}
	if err := m.HandleAction("p2", BidAction{Amount: 0}); err != nil {
		t.Fatalf("bid returned %v", err)
	}

	m.advanceReveal()
	m.advanceElimination()

	if got := m.Phase(); got != models.MatchFinished {
		t.Fatalf("Phase = %q, want finished with one survivor", got)
	}
	placements := m.Placements()
	if placements[0].ParticipantID != "p1" || placements[0].Place != 1 || placements[0].Points != 1 {
		t.Errorf("first placement = %+v, want p1 at place 1 with 1 point", placements[0])
	}
	if placements[1].ParticipantID != "p2" || placements[1].Points != 0 {
		t.Errorf("second placement = %+v, want p2 with 0 points", placements[1])
	}
}

func TestPriceGuessItemExhaustionRanksSurvivors(t *testing.T) {
	m := newTestPriceGuess(t, []PriceItem{{Name: "only item", TrueValue: 100}}, 3, 1)
	if err := m.Start(); err != nil {
		t.Fatalf("Start returned %v", err)
	}

	if err := m.HandleAction("p1", BidAction{Amount: 90}); err != nil {
		t.Fatalf("bid returned %v", err)
	}
	if err := m.HandleAction("p2", BidAction{Amount: 100}); err != nil {
		t.Fatalf("bid returned %v", err)
	}

	m.advanceReveal()
	m.advanceElimination()

	if got := m.Phase(); got != models.MatchFinished {
		t.Fatalf("Phase = %q, want finished once items run out", got)
	}

	placements := m.Placements()
	if len(placements) != 3 {
		t.Fatalf("got %d placements, want 3", len(placements))
	}
	// stable tie-break ranks the two survivors in roster order
	wantOrder := []string{"p1", "p2", "p3"}
	for i, pl := range placements {
		if pl.ParticipantID != wantOrder[i] {
			t.Errorf("place %d = %s, want %s", i+1, pl.ParticipantID, wantOrder[i])
		}
	}
}

func TestPriceGuessBidValidation(t *testing.T) {
	m := newTestPriceGuess(t, []PriceItem{{Name: "item", TrueValue: 100}}, 3, 1)
	if err := m.Start(); err != nil {
		t.Fatalf("Start returned %v", err)
	}
	m.mu.Lock()
	m.eliminateLocked("p3", 1)
	m.mu.Unlock()

	tests := []struct {
		name          string
		participantID string
		amount        float64
		wantErr       error
	}{
		{"unknown participant", "ghost", 10, ErrPlayerNotFound},
		{"eliminated participant", "p3", 10, ErrPlayerInactive},
		{"negative amount", "p1", -5, ErrInvalidAction},
		{"NaN amount", "p1", math.NaN(), ErrInvalidAction},
		{"infinite amount", "p1", math.Inf(1), ErrInvalidAction},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := m.HandleAction(tt.participantID, BidAction{Amount: tt.amount})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("HandleAction = %v, want %v", err, tt.wantErr)
			}
		})
	}

	t.Run("bid outside deliberation", func(t *testing.T) {
		m.advanceReveal()
		err := m.HandleAction("p1", BidAction{Amount: 10})
		if !errors.Is(err, ErrWrongPhase) {
			t.Errorf("HandleAction during reveal = %v, want ErrWrongPhase", err)
		}
	})

	t.Run("foreign action kind", func(t *testing.T) {
		err := m.HandleAction("p1", MoveAction{TargetX: 1, TargetY: 1})
		if !errors.Is(err, ErrInvalidAction) {
			t.Errorf("HandleAction = %v, want ErrInvalidAction", err)
		}
	})
}
