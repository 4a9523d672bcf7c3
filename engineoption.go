package vouchsafe

import (
	"fmt"
	"reflect"
	"runtime"
	"time"

	"github.com/dogmatiq/dodeca/logging"
	"github.com/dogmatiq/marshalkit"
	"github.com/dogmatiq/marshalkit/codec"
	"github.com/dogmatiq/marshalkit/codec/json"
	"github.com/vouchsafe/vouchsafe/persistence"
	"github.com/vouchsafe/vouchsafe/persistence/boltpersistence"
	"github.com/vouchsafe/vouchsafe/process"
	"github.com/vouchsafe/vouchsafe/task"
)

var (
	// DefaultPersistenceProvider is the default persistence provider.
	//
	// It is overridden by the WithPersistence() option.
	DefaultPersistenceProvider persistence.Provider = &boltpersistence.FileProvider{
		Path: "/var/run/vouchsafe.boltdb",
	}

	// DefaultMessageTimeout is the default duration the engine allows for
	// the handling of a single message by a process definition.
	//
	// It is overridden by the WithMessageTimeout() option.
	DefaultMessageTimeout = 5 * time.Second

	// DefaultConcurrencyLimit is the default number of task attempts to
	// execute concurrently.
	//
	// It is overridden by the WithConcurrencyLimit() option.
	DefaultConcurrencyLimit = uint(runtime.GOMAXPROCS(0) * 2)

	// DefaultHistoryCeiling is the default maximum journal length a process
	// instance may reach before it is continued or failed.
	//
	// It is overridden by the WithHistoryCeiling() option.
	DefaultHistoryCeiling = 1000

	// DefaultLogger is the default target for log messages produced by the
	// engine.
	//
	// It is overridden by the WithLogger() option.
	DefaultLogger = logging.DefaultLogger
)

// EngineOption configures the behavior of an engine.
type EngineOption func(*engineOptions)

// WithProcess returns an engine option that registers a process definition
// with the engine.
//
// There must always be at least one process definition registered.
func WithProcess(def process.Definition) EngineOption {
	return func(opts *engineOptions) {
		for _, d := range opts.Definitions {
			if d.Name() == def.Name() {
				panic(fmt.Sprintf(
					"can not host two process definitions named %#v",
					def.Name(),
				))
			}
		}

		opts.Definitions = append(opts.Definitions, def)
	}
}

// WithTasks returns an engine option that sets the registry of task handlers
// available to process definitions.
//
// The registry is used by reference and must not be modified after the
// engine starts.
func WithTasks(r *task.Registry) EngineOption {
	return func(opts *engineOptions) {
		opts.Tasks = r
	}
}

// WithTaskDefaults returns an engine option that sets the task policy
// applied where a scheduled task's policy leaves a field unset.
func WithTaskDefaults(p task.Policy) EngineOption {
	return func(opts *engineOptions) {
		opts.TaskDefaults = p
	}
}

// WithPersistence returns an engine option that sets the persistence
// provider used to store and retrieve process journals.
//
// If this option is omitted or p is nil, DefaultPersistenceProvider is used.
func WithPersistence(p persistence.Provider) EngineOption {
	return func(opts *engineOptions) {
		opts.PersistenceProvider = p
	}
}

// WithMessageTimeout returns an engine option that sets the duration the
// engine allows for the handling of a single message by a process
// definition.
//
// If this option is omitted or d is zero DefaultMessageTimeout is used.
func WithMessageTimeout(d time.Duration) EngineOption {
	if d < 0 {
		panic("duration must not be negative")
	}

	return func(opts *engineOptions) {
		opts.MessageTimeout = d
	}
}

// WithConcurrencyLimit returns an engine option that limits the number of
// task attempts that will be executed at the same time.
//
// If this option is omitted or n is zero DefaultConcurrencyLimit is used.
func WithConcurrencyLimit(n uint) EngineOption {
	return func(opts *engineOptions) {
		opts.ConcurrencyLimit = n
	}
}

// WithHistoryCeiling returns an engine option that sets the maximum journal
// length a process instance may reach.
//
// When the ceiling is reached, a continuable process is restarted with a
// fresh history; any other process is failed. If this option is omitted or n
// is zero DefaultHistoryCeiling is used. A negative value disables the
// ceiling.
func WithHistoryCeiling(n int) EngineOption {
	return func(opts *engineOptions) {
		opts.HistoryCeiling = n
	}
}

// WithMessageTypes returns an engine option that registers the
// application-defined types that appear as process inputs, events, task
// inputs and results.
//
// The types are used to construct the default marshaler. They are ignored if
// the WithMarshaler() option is used.
func WithMessageTypes(types ...reflect.Type) EngineOption {
	return func(opts *engineOptions) {
		opts.Types = append(opts.Types, types...)
	}
}

// NewDefaultMarshaler returns the default marshaler to use for the given
// types.
//
// It is used if the WithMarshaler() option is omitted.
func NewDefaultMarshaler(types []reflect.Type) marshalkit.Marshaler {
	m, err := codec.NewMarshaler(
		types,
		[]codec.Codec{
			&json.Codec{},
		},
	)
	if err != nil {
		panic(err)
	}

	return m
}

// WithMarshaler returns an engine option that sets the marshaler used to
// marshal and unmarshal application-defined types.
//
// If this option is omitted or m is nil, NewDefaultMarshaler() is called to
// obtain the default marshaler.
func WithMarshaler(m marshalkit.Marshaler) EngineOption {
	return func(opts *engineOptions) {
		opts.Marshaler = m
	}
}

// WithLogger returns an engine option that sets the target for log messages
// produced by the engine.
//
// If this option is omitted or l is nil DefaultLogger is used.
func WithLogger(l logging.Logger) EngineOption {
	return func(opts *engineOptions) {
		opts.Logger = l
	}
}

// engineOptions is a container for a fully-resolved set of engine options.
type engineOptions struct {
	Definitions         []process.Definition
	Tasks               *task.Registry
	TaskDefaults        task.Policy
	PersistenceProvider persistence.Provider
	MessageTimeout      time.Duration
	ConcurrencyLimit    uint
	HistoryCeiling      int
	Types               []reflect.Type
	Marshaler           marshalkit.Marshaler
	Logger              logging.Logger
}

// resolveEngineOptions returns a fully-populated set of engine options built
// from the given set of option functions.
func resolveEngineOptions(options ...EngineOption) *engineOptions {
	opts := &engineOptions{}

	for _, o := range options {
		o(opts)
	}

	if len(opts.Definitions) == 0 {
		panic("no process definitions configured, see vouchsafe.WithProcess()")
	}

	if opts.Tasks == nil {
		opts.Tasks = &task.Registry{}
	}

	if opts.PersistenceProvider == nil {
		opts.PersistenceProvider = DefaultPersistenceProvider
	}

	if opts.MessageTimeout == 0 {
		opts.MessageTimeout = DefaultMessageTimeout
	}

	if opts.ConcurrencyLimit == 0 {
		opts.ConcurrencyLimit = DefaultConcurrencyLimit
	}

	if opts.HistoryCeiling == 0 {
		opts.HistoryCeiling = DefaultHistoryCeiling
	} else if opts.HistoryCeiling < 0 {
		opts.HistoryCeiling = 0
	}

	if opts.Marshaler == nil {
		opts.Marshaler = NewDefaultMarshaler(opts.Types)
	}

	if opts.Logger == nil {
		opts.Logger = DefaultLogger
	}

	return opts
}
