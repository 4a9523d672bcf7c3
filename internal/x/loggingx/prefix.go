package loggingx

import (
	"fmt"
	"strings"

	"github.com/dogmatiq/dodeca/logging"
)

// WithPrefix returns a logger that prepends a fixed prefix to every message
// it writes to target.
//
// The engine uses it to tag each subsystem's output, such as "[timer] " or
// "[process] ". The prefix itself is rendered from f and v once, up front.
func WithPrefix(target logging.Logger, f string, v ...interface{}) logging.Logger {
	p := fmt.Sprintf(f, v...)

	return &prefixed{
		next:    target,
		literal: p,
		// The prefix is escaped before it is spliced into format strings,
		// so a "%" in the prefix cannot consume the caller's arguments.
		escaped: strings.ReplaceAll(p, "%", "%%"),
	}
}

// prefixed decorates a logging.Logger, writing through to next.
type prefixed struct {
	next    logging.Logger
	literal string
	escaped string
}

func (p *prefixed) Log(f string, v ...interface{}) {
	p.next.Log(p.escaped+f, v...)
}

func (p *prefixed) LogString(s string) {
	p.next.LogString(p.literal + s)
}

func (p *prefixed) Debug(f string, v ...interface{}) {
	p.next.Debug(p.escaped+f, v...)
}

func (p *prefixed) DebugString(s string) {
	p.next.DebugString(p.literal + s)
}

func (p *prefixed) IsDebug() bool {
	return p.next.IsDebug()
}
