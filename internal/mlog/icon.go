package mlog

import (
	"fmt"
	"strings"
)

const (
	// RecordIDIcon is the icon shown directly before a journal record ID.
	// It is an "equals sign", indicating that this record "has exactly" the
	// displayed ID.
	RecordIDIcon Icon = "="

	// CausationIDIcon is the icon shown directly before a record causation
	// ID. It is the mathematical "because" symbol, indicating that this
	// record happened "because of" the displayed ID.
	CausationIDIcon Icon = "∵"

	// CorrelationIDIcon is the icon shown directly before a record
	// correlation ID. It is the mathematical "member of set" symbol,
	// indicating that this record belongs to the set of records that came
	// about because of the displayed ID.
	CorrelationIDIcon Icon = "⋲"

	// ConsumeIcon is the icon shown to indicate that an event is being
	// consumed by a process instance. It is a downward pointing arrow.
	ConsumeIcon Icon = "▼"

	// ConsumeErrorIcon is a variant of ConsumeIcon used when there is an
	// error condition. It is a hollow version of the regular consume icon,
	// indicating that the requirement remains "unfulfilled".
	ConsumeErrorIcon Icon = "▽"

	// ProduceIcon is the icon shown to indicate that a record is being
	// appended to a journal. It is an upward pointing arrow.
	ProduceIcon Icon = "▲"

	// RetryIcon is an icon used instead of ConsumeIcon when a task is being
	// re-attempted. It is an open-circle with an arrow, indicating that the
	// task has "come around again".
	RetryIcon Icon = "↻"

	// ErrorIcon is the icon shown when logging information about an error.
	// It is a heavy cross, indicating a failure.
	ErrorIcon Icon = "✖"

	// ProcessIcon is the icon shown when a log message relates to a process
	// instance. It is three horizontal lines, representing the steps in a
	// process.
	ProcessIcon Icon = "≡"

	// TimerIcon is the icon shown when a log message relates to a durable
	// timer. It is an hourglass.
	TimerIcon Icon = "⧖"

	// SystemIcon is an icon shown when a log message relates to the
	// internals of the engine. It is a sprocket, representing the inner
	// workings of the machine.
	SystemIcon Icon = "⚙"

	// SeparatorIcon is an icon used to separate strings of unrelated text
	// inside a log message. It is a large bullet, intended to have a large
	// visual impact.
	SeparatorIcon Icon = "●"
)

// Icon is a unicode symbol used as an icon in log messages.
type Icon string

func (i Icon) String() string {
	if i == "" {
		return " "
	}

	return string(i)
}

// WithLabel returns an IconWithLabel containing this icon and the given
// label.
func (i Icon) WithLabel(f string, v ...interface{}) IconWithLabel {
	return IconWithLabel{
		i,
		strings.ReplaceAll(fmt.Sprintf(f, v...), " ", "-"),
	}
}

// WithID returns an IconWithLabel containing this icon and an ID as its
// label.
//
// The id is formatted using FormatID().
func (i Icon) WithID(id string) IconWithLabel {
	return i.WithLabel(FormatID(id))
}

// IconWithLabel is a container for an icon and its associated text label.
type IconWithLabel struct {
	Icon  Icon
	Label string
}

func (i IconWithLabel) String() string {
	return i.Icon.String() + " " + i.Label
}
