package event

import (
	"fmt"

	"github.com/PeoplesGrocers/json-archive/internal/jsonvalue"
)

// HeaderToValue renders a Header as the JSON object that occupies line 1 of
// an archive.
func HeaderToValue(h Header) jsonvalue.Value {
	obj := jsonvalue.NewObject()
	obj.Set("version", jsonvalue.NewNumber(float64(h.Version)))
	obj.Set("created", jsonvalue.NewString(h.Created))
	obj.Set("initial", h.Initial)
	if h.Source != "" {
		obj.Set("source", jsonvalue.NewString(h.Source))
	}
	if h.Metadata.Kind() == jsonvalue.Object {
		obj.Set("metadata", h.Metadata)
	}
	return obj
}

// HeaderFromValue parses a Header from its decoded JSON object form.
func HeaderFromValue(v jsonvalue.Value) (Header, error) {
	if v.Kind() != jsonvalue.Object {
		return Header{}, fmt.Errorf("event: header line is not a JSON object")
	}
	var h Header
	version, ok := v.Get("version")
	if !ok || version.Kind() != jsonvalue.Number {
		return Header{}, fmt.Errorf("event: header missing integer 'version'")
	}
	h.Version = int(version.Number())

	created, ok := v.Get("created")
	if !ok || created.Kind() != jsonvalue.String {
		return Header{}, fmt.Errorf("event: header missing string 'created'")
	}
	h.Created = created.Str()

	initial, ok := v.Get("initial")
	if !ok {
		return Header{}, fmt.Errorf("event: header missing 'initial'")
	}
	h.Initial = initial

	if source, ok := v.Get("source"); ok && source.Kind() == jsonvalue.String {
		h.Source = source.Str()
	}
	if metadata, ok := v.Get("metadata"); ok {
		h.Metadata = metadata
	}
	return h, nil
}

func pathValue(p jsonvalue.Pointer) jsonvalue.Value {
	return jsonvalue.NewString(p.String())
}

func pathFromValue(v jsonvalue.Value) (jsonvalue.Pointer, error) {
	if v.Kind() != jsonvalue.String {
		return nil, fmt.Errorf("event: path field is not a string")
	}
	return jsonvalue.ParsePointer(v.Str())
}

// ToValue renders e as its line-array wire form: [tag, ...fields].
func ToValue(e Event) jsonvalue.Value {
	arr := jsonvalue.NewArray()
	switch t := e.(type) {
	case Observe:
		arr.Append(jsonvalue.NewString(string(KindObserve)))
		arr.Append(jsonvalue.NewString(t.ID))
		arr.Append(jsonvalue.NewString(t.Timestamp))
		arr.Append(jsonvalue.NewNumber(float64(t.ChangeCount)))
	case Add:
		arr.Append(jsonvalue.NewString(string(KindAdd)))
		arr.Append(pathValue(t.Path))
		arr.Append(t.Value)
		arr.Append(jsonvalue.NewString(t.ObsID))
	case Change:
		arr.Append(jsonvalue.NewString(string(KindChange)))
		arr.Append(pathValue(t.Path))
		arr.Append(t.NewValue)
		arr.Append(jsonvalue.NewString(t.ObsID))
	case Remove:
		arr.Append(jsonvalue.NewString(string(KindRemove)))
		arr.Append(pathValue(t.Path))
		arr.Append(jsonvalue.NewString(t.ObsID))
	case Move:
		arr.Append(jsonvalue.NewString(string(KindMove)))
		arr.Append(pathValue(t.Path))
		moves := jsonvalue.NewArray()
		for _, m := range t.Moves {
			pair := jsonvalue.NewArray(jsonvalue.NewNumber(float64(m.From)), jsonvalue.NewNumber(float64(m.To)))
			moves.Append(pair)
		}
		arr.Append(moves)
		arr.Append(jsonvalue.NewString(t.ObsID))
	case Snapshot:
		arr.Append(jsonvalue.NewString(string(KindSnapshot)))
		arr.Append(jsonvalue.NewString(t.ID))
		arr.Append(jsonvalue.NewString(t.Timestamp))
		arr.Append(t.State)
	}
	return arr
}

// FromValue parses a decoded line-array value back into a typed Event.
func FromValue(v jsonvalue.Value) (Event, error) {
	if v.Kind() != jsonvalue.Array || v.Len() == 0 {
		return nil, fmt.Errorf("event: line is not a non-empty array")
	}
	tagVal := v.Index(0)
	if tagVal.Kind() != jsonvalue.String {
		return nil, fmt.Errorf("event: event tag is not a string")
	}
	kind := Kind(tagVal.Str())
	switch kind {
	case KindObserve:
		if v.Len() != 4 {
			return nil, wrongArity(kind, 4, v.Len())
		}
		return Observe{
			ID:          v.Index(1).Str(),
			Timestamp:   v.Index(2).Str(),
			ChangeCount: uint32(v.Index(3).Number()),
		}, nil
	case KindAdd:
		if v.Len() != 4 {
			return nil, wrongArity(kind, 4, v.Len())
		}
		path, err := pathFromValue(v.Index(1))
		if err != nil {
			return nil, err
		}
		return Add{Path: path, Value: v.Index(2), ObsID: v.Index(3).Str()}, nil
	case KindChange:
		if v.Len() != 4 {
			return nil, wrongArity(kind, 4, v.Len())
		}
		path, err := pathFromValue(v.Index(1))
		if err != nil {
			return nil, err
		}
		return Change{Path: path, NewValue: v.Index(2), ObsID: v.Index(3).Str()}, nil
	case KindRemove:
		if v.Len() != 3 {
			return nil, wrongArity(kind, 3, v.Len())
		}
		path, err := pathFromValue(v.Index(1))
		if err != nil {
			return nil, err
		}
		return Remove{Path: path, ObsID: v.Index(2).Str()}, nil
	case KindMove:
		if v.Len() != 4 {
			return nil, wrongArity(kind, 4, v.Len())
		}
		path, err := pathFromValue(v.Index(1))
		if err != nil {
			return nil, err
		}
		movesVal := v.Index(2)
		if movesVal.Kind() != jsonvalue.Array {
			return nil, fmt.Errorf("event: move field is not an array")
		}
		moves := make([]MoveStep, movesVal.Len())
		for i := 0; i < movesVal.Len(); i++ {
			pair := movesVal.Index(i)
			if pair.Kind() != jsonvalue.Array || pair.Len() != 2 {
				return nil, fmt.Errorf("event: move step %d is not a 2-element array", i)
			}
			moves[i] = MoveStep{From: int(pair.Index(0).Number()), To: int(pair.Index(1).Number())}
		}
		return Move{Path: path, Moves: moves, ObsID: v.Index(3).Str()}, nil
	case KindSnapshot:
		if v.Len() != 4 {
			return nil, wrongArity(kind, 4, v.Len())
		}
		return Snapshot{
			ID:        v.Index(1).Str(),
			Timestamp: v.Index(2).Str(),
			State:     v.Index(3),
		}, nil
	default:
		return nil, errUnknownKind(kind)
	}
}

func wrongArity(kind Kind, want, got int) error {
	return fmt.Errorf("event: %s event expects %d fields, got %d", kind, want, got)
}
