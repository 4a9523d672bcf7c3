package journal

import (
	"encoding/json"
	"fmt"
	"reflect"
	"time"
)

// prototypes maps each event kind to its concrete type, allowing records to
// be unmarshaled without knowing their event type in advance.
var prototypes = map[string]reflect.Type{}

func register(ev Event) {
	k := ev.Kind()

	if _, ok := prototypes[k]; ok {
		panic(fmt.Sprintf("an event with kind %#v is already registered", k))
	}

	prototypes[k] = reflect.TypeOf(ev)
}

func init() {
	register(ProcessStarted{})
	register(SignalReceived{})
	register(SignalDiscarded{})
	register(TaskScheduled{})
	register(TaskCompleted{})
	register(TaskFailed{})
	register(TimerScheduled{})
	register(TimerFired{})
	register(TimerCanceled{})
	register(ChildStarted{})
	register(ChildCompleted{})
	register(ChildFailed{})
	register(StateModified{})
	register(ProcessCompleted{})
	register(ProcessCanceled{})
	register(ProcessTimedOut{})
	register(ProcessFailed{})
	register(ProcessContinued{})
}

type recordShell struct {
	RecordID      string          `json:"record_id"`
	CausationID   string          `json:"causation_id"`
	CorrelationID string          `json:"correlation_id"`
	CreatedAt     time.Time       `json:"created_at"`
	Kind          string          `json:"kind"`
	Event         json.RawMessage `json:"event"`
}

// MarshalRecord returns the binary representation of rec.
//
// The record's offset is not part of the representation; it is implied by
// the record's position within its journal.
func MarshalRecord(rec *Record) ([]byte, error) {
	if rec.Event == nil {
		return nil, fmt.Errorf("record %s does not contain an event", rec.RecordID)
	}

	ev, err := json.Marshal(rec.Event)
	if err != nil {
		return nil, err
	}

	return json.Marshal(recordShell{
		RecordID:      rec.RecordID,
		CausationID:   rec.CausationID,
		CorrelationID: rec.CorrelationID,
		CreatedAt:     rec.CreatedAt,
		Kind:          rec.Event.Kind(),
		Event:         ev,
	})
}

// UnmarshalRecord reconstructs a record from its binary representation.
func UnmarshalRecord(data []byte) (*Record, error) {
	var shell recordShell
	if err := json.Unmarshal(data, &shell); err != nil {
		return nil, err
	}

	t, ok := prototypes[shell.Kind]
	if !ok {
		return nil, fmt.Errorf("unrecognized event kind %#v", shell.Kind)
	}

	ev := reflect.New(t)
	if err := json.Unmarshal(shell.Event, ev.Interface()); err != nil {
		return nil, err
	}

	return &Record{
		RecordID:      shell.RecordID,
		CausationID:   shell.CausationID,
		CorrelationID: shell.CorrelationID,
		CreatedAt:     shell.CreatedAt,
		Event:         ev.Interface().(Event),
	}, nil
}
