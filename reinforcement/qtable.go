package reinforcement

import (
	"math"

	. "qmaze/models"
)

// QTable holds one action-value per state-action pair, addressed through an Indexer.
// Every entry starts at zero; entries are never added or removed.
type QTable struct {
	ix     *Indexer
	values []float64
}

// QValue is a state-action pair and its learned value.
type QValue struct {
	State  State
	Action Action
	Value  float64
}

// Decision is the greedy action of a state and the value of taking it.
type Decision struct {
	State  State
	Action Action
	Value  float64
}

// StateValue is an entry of the value function.
type StateValue struct {
	State State
	Value float64
}

func NewQTable(ix *Indexer) *QTable {
	return &QTable{
		ix:     ix,
		values: make([]float64, ix.Len()),
	}
}

// Indexer returns the indexer addressing the table.
func (q *QTable) Indexer() *Indexer {
	return q.ix
}

// Get returns Q(s,a), and false if the pair is outside the table.
func (q *QTable) Get(s State, a Action) (float64, bool) {
	i, ok := q.ix.Index(s, a)
	if !ok {
		return 0, false
	}
	return q.values[i], true
}

// Set assigns Q(s,a), returning false if the pair is outside the table.
func (q *QTable) Set(s State, a Action, val float64) bool {
	i, ok := q.ix.Index(s, a)
	if !ok {
		return false
	}
	q.values[i] = val
	return true
}

// Greedy returns the max-valued action of a state and its value. Ties go to the action
// appearing first in the action space. Returns false for states outside the table.
func (q *QTable) Greedy(s State) (action Action, value float64, ok bool) {
	si, ok := q.ix.StateIndex(s)
	if !ok {
		return 0, 0, false
	}
	ai, value := q.greedyAt(si)
	return q.ix.actions[ai], value, true
}

// Max returns max_a Q(s,a), and false for states outside the table.
func (q *QTable) Max(s State) (float64, bool) {
	_, value, ok := q.Greedy(s)
	return value, ok
}

// row returns the action values of the state at index si.
func (q *QTable) row(si int) []float64 {
	n := len(q.ix.actions)
	return q.values[si*n : (si+1)*n]
}

// greedyAt returns the action index and value of the max-valued action of the state at index si.
func (q *QTable) greedyAt(si int) (ai int, value float64) {
	value = math.Inf(-1)
	for i, v := range q.row(si) {
		// Strict comparison keeps the first maximum.
		if v > value {
			ai, value = i, v
		}
	}
	return
}

// Each visits every state-action pair in index order: state-major, actions in declared order.
func (q *QTable) Each(fn func(s State, a Action, val float64)) {
	for i, val := range q.values {
		s, a := q.ix.Pair(i)
		fn(s, a, val)
	}
}

// QValues returns every state-action pair with its value, in index order.
func (q *QTable) QValues() []QValue {
	qvalues := make([]QValue, 0, len(q.values))
	q.Each(func(s State, a Action, val float64) {
		qvalues = append(qvalues, QValue{State: s, Action: a, Value: val})
	})
	return qvalues
}

// Policy returns the greedy decision of every state, in state-space order.
func (q *QTable) Policy() []Decision {
	policy := make([]Decision, len(q.ix.states))
	for si, s := range q.ix.states {
		ai, value := q.greedyAt(si)
		policy[si] = Decision{State: s, Action: q.ix.actions[ai], Value: value}
	}
	return policy
}

// ValueFunction returns, for every state, the value of its greedy action.
func (q *QTable) ValueFunction() []StateValue {
	policy := q.Policy()
	values := make([]StateValue, len(policy))
	for i, d := range policy {
		values[i] = StateValue{State: d.State, Value: d.Value}
	}
	return values
}
