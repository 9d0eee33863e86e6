package reinforcement

import (
	"strconv"
	"strings"

	. "qmaze/models"
)

// Key separators. Neither can appear in a base-10 integer, so a key splits unambiguously:
// "1,2|3" and "1,23|4" never collide.
const (
	coordSep  = ","
	actionSep = "|"
)

// EncodeState returns the key of a state, e.g. "3,-1".
func EncodeState(s State) string {
	return strconv.Itoa(s.X) + coordSep + strconv.Itoa(s.Y)
}

// EncodeStateAction returns the key of a state-action pair, e.g. "3,-1|2".
func EncodeStateAction(s State, a Action) string {
	return EncodeState(s) + actionSep + strconv.Itoa(int(a))
}

// DecodeState is the inverse of EncodeState.
func DecodeState(key string) (State, error) {
	return decodeState(key, key)
}

// decodeState decodes the state portion @field of @key; errors report the full key.
func decodeState(key, field string) (State, error) {
	parts := strings.Split(field, coordSep)
	if len(parts) != 2 {
		return State{}, &MalformedKeyError{Key: key, Reason: "expected two coordinates"}
	}
	x, err := parseInt(key, parts[0])
	if err != nil {
		return State{}, err
	}
	y, err := parseInt(key, parts[1])
	if err != nil {
		return State{}, err
	}
	return State{X: x, Y: y}, nil
}

// DecodeStateAction is the inverse of EncodeStateAction.
func DecodeStateAction(key string) (State, Action, error) {
	parts := strings.Split(key, actionSep)
	if len(parts) != 2 {
		return State{}, 0, &MalformedKeyError{Key: key, Reason: "expected state and action"}
	}
	s, err := decodeState(key, parts[0])
	if err != nil {
		return State{}, 0, err
	}
	a, err := parseInt(key, parts[1])
	if err != nil {
		return State{}, 0, err
	}
	return s, Action(a), nil
}

// parseInt only accepts canonical integers, so that every valid key is the encoding of exactly one value.
func parseInt(key, field string) (int, error) {
	n, err := strconv.Atoi(field)
	if err != nil {
		return 0, &MalformedKeyError{Key: key, Reason: "non-integer field " + strconv.Quote(field)}
	}
	if strconv.Itoa(n) != field {
		return 0, &MalformedKeyError{Key: key, Reason: "non-canonical integer " + strconv.Quote(field)}
	}
	return n, nil
}

// Indexer is a bijection between state_space x action_space and [0, Len()), computed once
// from the environment's enumerated spaces. Pairs are laid out state-major, with actions in
// declared order, so the actions of one state occupy a contiguous run of indices.
type Indexer struct {
	states    []State
	actions   []Action
	stateIdx  map[State]int
	actionIdx map[Action]int
}

// NewIndexer builds the indexer over the passed spaces. The spaces are copied; their
// order is retained and defines tie-breaking among equally valued actions.
func NewIndexer(states []State, actions []Action) (*Indexer, error) {
	if len(actions) == 0 {
		return nil, newConfigurationError("empty action space")
	}
	if len(states) == 0 {
		return nil, newConfigurationError("empty state space")
	}

	ix := &Indexer{
		states:    append([]State(nil), states...),
		actions:   append([]Action(nil), actions...),
		stateIdx:  make(map[State]int, len(states)),
		actionIdx: make(map[Action]int, len(actions)),
	}
	for i, s := range ix.states {
		if _, dup := ix.stateIdx[s]; dup {
			return nil, newConfigurationError("duplicate state %v in state space", s)
		}
		ix.stateIdx[s] = i
	}
	for i, a := range ix.actions {
		if _, dup := ix.actionIdx[a]; dup {
			return nil, newConfigurationError("duplicate action %d in action space", a)
		}
		ix.actionIdx[a] = i
	}
	return ix, nil
}

// Len is the number of state-action pairs.
func (ix *Indexer) Len() int {
	return len(ix.states) * len(ix.actions)
}

// States returns the state space, in declared order.
func (ix *Indexer) States() []State {
	return append([]State(nil), ix.states...)
}

// Actions returns the action space, in declared order.
func (ix *Indexer) Actions() []Action {
	return append([]Action(nil), ix.actions...)
}

// StateIndex returns the position of a state in the state space.
func (ix *Indexer) StateIndex(s State) (int, bool) {
	i, ok := ix.stateIdx[s]
	return i, ok
}

// Index returns the flat index of a state-action pair, or false if either is outside its space.
func (ix *Indexer) Index(s State, a Action) (int, bool) {
	si, ok := ix.stateIdx[s]
	if !ok {
		return 0, false
	}
	ai, ok := ix.actionIdx[a]
	if !ok {
		return 0, false
	}
	return si*len(ix.actions) + ai, true
}

// Pair is the inverse of Index. It panics if i is out of range.
func (ix *Indexer) Pair(i int) (State, Action) {
	return ix.states[i/len(ix.actions)], ix.actions[i%len(ix.actions)]
}

// Key returns the string key of the pair at index i.
func (ix *Indexer) Key(i int) string {
	s, a := ix.Pair(i)
	return EncodeStateAction(s, a)
}

// Lookup decodes a state-action key and returns its index.
func (ix *Indexer) Lookup(key string) (int, error) {
	s, a, err := DecodeStateAction(key)
	if err != nil {
		return 0, err
	}
	i, ok := ix.Index(s, a)
	if !ok {
		return 0, &MalformedKeyError{Key: key, Reason: "pair outside state-action space"}
	}
	return i, nil
}
