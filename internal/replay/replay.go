// Package replay applies a decoded event stream to an in-memory JSON value,
// reconstructing the state at any chosen observation. It is grounded on the
// teacher pack's replay.Loader callback-driven iteration shape
// (abrahamVado-DriftPursuit/go-broker/internal/replay/loader.go), adapted to
// drive typed mutation events against a jsonvalue.Value instead of a
// game-simulation callback.
package replay

import (
	"fmt"

	"github.com/PeoplesGrocers/json-archive/internal/event"
	"github.com/PeoplesGrocers/json-archive/internal/jsonvalue"
)

// Machine holds the live state being reconstructed and the bookkeeping
// needed to validate observe/delta grouping as events are fed in.
type Machine struct {
	state           jsonvalue.Value
	pendingObsID    string
	pendingRemain   uint32
	observationSeen map[string]bool
}

// New starts a Machine from an initial state. The caller owns initial; New
// clones it so subsequent mutation never aliases the caller's tree.
func New(initial jsonvalue.Value) *Machine {
	return &Machine{
		state:           initial.Clone(),
		observationSeen: make(map[string]bool),
	}
}

// State returns the current reconstructed value. The caller must not mutate
// the result in place; Clone it first if needed.
func (m *Machine) State() jsonvalue.Value { return m.state }

// Apply feeds one event into the machine in file order. Observe opens a
// delta group; Snapshot replaces the whole state and is rejected while a
// group is still open; Add/Change/Remove/Move must carry the
// currently-open group's id and decrement its remaining count.
func (m *Machine) Apply(e event.Event) error {
	switch t := e.(type) {
	case event.Observe:
		if m.pendingRemain != 0 {
			return fmt.Errorf("replay: observe %q opened while %q still expects %d more deltas", t.ID, m.pendingObsID, m.pendingRemain)
		}
		if m.observationSeen[t.ID] {
			return fmt.Errorf("replay: duplicate observation id %q", t.ID)
		}
		m.observationSeen[t.ID] = true
		m.pendingObsID = t.ID
		m.pendingRemain = t.ChangeCount
		return nil
	case event.Snapshot:
		if m.pendingRemain != 0 {
			return fmt.Errorf("replay: snapshot %q appeared while %q still expects %d more deltas", t.ID, m.pendingObsID, m.pendingRemain)
		}
		if m.observationSeen[t.ID] {
			return fmt.Errorf("replay: duplicate observation id %q", t.ID)
		}
		m.observationSeen[t.ID] = true
		m.state = t.State.Clone()
		return nil
	default:
		return m.applyDelta(e)
	}
}

func (m *Machine) applyDelta(e event.Event) error {
	obsID := event.ObsID(e)
	if m.pendingRemain == 0 {
		return fmt.Errorf("replay: delta event for %q with no open observation", obsID)
	}
	if obsID != m.pendingObsID {
		return fmt.Errorf("replay: delta event carries obs_id %q, expected %q", obsID, m.pendingObsID)
	}
	if err := m.applyMutation(e); err != nil {
		return fmt.Errorf("replay: %w", err)
	}
	m.pendingRemain--
	return nil
}

func (m *Machine) applyMutation(e event.Event) error {
	switch t := e.(type) {
	case event.Add:
		return jsonvalue.Insert(&m.state, t.Path, t.Value)
	case event.Change:
		return jsonvalue.Set(&m.state, t.Path, t.NewValue)
	case event.Remove:
		return jsonvalue.Remove(&m.state, t.Path)
	case event.Move:
		for _, step := range t.Moves {
			if err := jsonvalue.Move(&m.state, t.Path, step.From, step.To); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("event kind %T is not a mutation", e)
	}
}

// Run applies events in file order against initial and returns the
// resulting state. The caller (internal/archivefmt) is responsible for
// slicing events to the target observation's boundary; Run itself has no
// notion of "stop early" — it is the pure replay step of the §4.5 engine.
func Run(initial jsonvalue.Value, events []event.Event) (jsonvalue.Value, error) {
	m := New(initial)
	for _, e := range events {
		if err := m.Apply(e); err != nil {
			return jsonvalue.Value{}, err
		}
	}
	return m.State(), nil
}
