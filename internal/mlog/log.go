package mlog

import "strings"

// String formats a log message in the engine's standard style.
//
// Each of the ids is rendered first, followed by the icons, followed by the
// text segments. Empty text segments are skipped; the remainder are joined
// with a separator icon.
func String(
	ids []IconWithLabel,
	icons []Icon,
	text ...string,
) string {
	var w strings.Builder

	for _, id := range ids {
		w.WriteString(id.String())
		w.WriteString("  ")
	}

	for _, icon := range icons {
		w.WriteString(icon.String())
		w.WriteByte(' ')
	}

	n := 0
	for _, t := range text {
		if t == "" {
			continue
		}

		if n > 0 {
			w.WriteByte(' ')
			w.WriteString(SeparatorIcon.String())
			w.WriteByte(' ')
		}
		n++

		w.WriteString(t)
	}

	return w.String()
}
