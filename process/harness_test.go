package process_test

import (
	"reflect"

	"github.com/dogmatiq/marshalkit"
	"github.com/dogmatiq/marshalkit/codec"
	"github.com/dogmatiq/marshalkit/codec/json"
)

// Input is an application-defined process input used by the tests in this
// package.
type Input struct {
	Value string
}

// Note is an application-defined event used by the tests in this package.
type Note struct {
	Value string
}

// Output is an application-defined task or process result used by the tests
// in this package.
type Output struct {
	Value string
}

// Tally is an application-defined event that carries a running count across
// continuations.
type Tally struct {
	Count int
}

// noteRoot collects the notes recorded against an instance.
type noteRoot struct {
	Notes []string
}

func (r *noteRoot) ApplyEvent(ev interface{}) {
	switch ev := ev.(type) {
	case Note:
		r.Notes = append(r.Notes, ev.Value)
	}
}

// counterRoot tracks a running count.
type counterRoot struct {
	Count int
}

func (r *counterRoot) ApplyEvent(ev interface{}) {
	switch ev := ev.(type) {
	case Tally:
		r.Count = ev.Count
	}
}

// newMarshaler returns a marshaler that recognizes the application-defined
// types used by the tests in this package.
func newMarshaler() marshalkit.Marshaler {
	m, err := codec.NewMarshaler(
		[]reflect.Type{
			reflect.TypeOf(Input{}),
			reflect.TypeOf(Note{}),
			reflect.TypeOf(Output{}),
			reflect.TypeOf(Tally{}),
		},
		[]codec.Codec{
			&json.Codec{},
		},
	)
	if err != nil {
		panic(err)
	}

	return m
}
