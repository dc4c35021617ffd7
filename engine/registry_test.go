package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/agentclash/arena/models"
)

func testDescriptor(id string, min, max int, prize bool) GameDescriptor {
	return GameDescriptor{
		ID:           id,
		Name:         id,
		MinPlayers:   min,
		MaxPlayers:   max,
		HasPrizePool: prize,
		Create: func(cfg MatchConfig) (Match, error) {
			settings := ThrowdownSettings{Throwing: time.Hour, Rand: testRNG()}
			return &ThrowdownMatch{
				baseMatch: newBaseMatch(cfg.MatchID, id, cfg.Participants, cfg.PrizePool, settings.Rand, cfg.Logger),
				settings:  settings,
				wins:      make(map[string]int),
			}, nil
		},
	}
}

func TestRegistryRegisterDuplicate(t *testing.T) {
	r := NewRegistry(nil)
	if err := r.Register(testDescriptor("duel", 2, 2, true)); err != nil {
		t.Fatalf("Register returned %v", err)
	}
	err := r.Register(testDescriptor("duel", 2, 2, true))
	if !errors.Is(err, ErrGameTypeRegistered) {
		t.Errorf("duplicate Register = %v, want ErrGameTypeRegistered", err)
	}
}

func TestRegistryRegisterValidation(t *testing.T) {
	r := NewRegistry(nil)
	tests := []struct {
		name string
		desc GameDescriptor
	}{
		{"missing id", GameDescriptor{Create: func(MatchConfig) (Match, error) { return nil, nil }}},
		{"missing factory", GameDescriptor{ID: "x", MinPlayers: 2, MaxPlayers: 4}},
		{"inverted bounds", testDescriptor("y", 4, 2, false)},
		{"zero min", testDescriptor("z", 0, 2, false)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := r.Register(tt.desc); err == nil {
				t.Error("Register accepted an invalid descriptor")
			}
		})
	}
}

func TestRegistryCreateMatch(t *testing.T) {
	r := NewRegistry(nil)
	if err := r.Register(testDescriptor("duel", 2, 4, true)); err != nil {
		t.Fatalf("Register returned %v", err)
	}

	t.Run("unknown game type", func(t *testing.T) {
		_, err := r.CreateMatch("nope", testRoster(2), 0)
		if !errors.Is(err, ErrUnknownGameType) {
			t.Errorf("CreateMatch = %v, want ErrUnknownGameType", err)
		}
	})

	t.Run("too few participants", func(t *testing.T) {
		_, err := r.CreateMatch("duel", testRoster(1), 0)
		if !errors.Is(err, ErrTooFewParticipants) {
			t.Errorf("CreateMatch = %v, want ErrTooFewParticipants", err)
		}
	})

	t.Run("too many participants", func(t *testing.T) {
		_, err := r.CreateMatch("duel", testRoster(5), 0)
		if !errors.Is(err, ErrTooManyParticipants) {
			t.Errorf("CreateMatch = %v, want ErrTooManyParticipants", err)
		}
	})

	t.Run("constructs in waiting phase with unique ids", func(t *testing.T) {
		m1, err := r.CreateMatch("duel", testRoster(2), 100)
		if err != nil {
			t.Fatalf("CreateMatch returned %v", err)
		}
		m2, err := r.CreateMatch("duel", testRoster(2), 100)
		if err != nil {
			t.Fatalf("CreateMatch returned %v", err)
		}
		if m1.ID() == m2.ID() {
			t.Error("two matches share an id")
		}
		if m1.Phase() != models.MatchWaiting {
			t.Errorf("new match phase = %q, want %q", m1.Phase(), models.MatchWaiting)
		}
		if m1.PrizePool() != 100 {
			t.Errorf("prize pool = %v, want 100", m1.PrizePool())
		}
	})
}

func TestRegistryZeroesPrizePool(t *testing.T) {
	r := NewRegistry(nil)
	if err := r.Register(testDescriptor("casual", 2, 4, false)); err != nil {
		t.Fatalf("Register returned %v", err)
	}
	m, err := r.CreateMatch("casual", testRoster(2), 500)
	if err != nil {
		t.Fatalf("CreateMatch returned %v", err)
	}
	if m.PrizePool() != 0 {
		t.Errorf("prize pool = %v, want 0 for a game type without one", m.PrizePool())
	}
}
