package engine

// Action is a tagged value from the closed per-game-type action vocabulary.
// ChatAction is accepted by every game type; the rest are game-specific and
// rejected with ErrWrongPhase or ErrInvalidAction where they do not apply.
type Action interface {
	Kind() ActionKind
}

type ActionKind string

const (
	ActionChat  ActionKind = "chat"
	ActionBid   ActionKind = "bid"
	ActionThrow ActionKind = "throw"
	ActionMove  ActionKind = "move"
)

type ChatAction struct {
	Text string `json:"text"`
}

func (ChatAction) Kind() ActionKind { return ActionChat }

type BidAction struct {
	Amount float64 `json:"amount"`
}

func (BidAction) Kind() ActionKind { return ActionBid }

type ThrowAction struct {
	Choice ThrowChoice `json:"choice"`
}

func (ThrowAction) Kind() ActionKind { return ActionThrow }

type MoveAction struct {
	TargetX int `json:"target_x"`
	TargetY int `json:"target_y"`
}

func (MoveAction) Kind() ActionKind { return ActionMove }
