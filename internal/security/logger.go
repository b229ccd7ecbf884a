package security

import (
	"io"
	"log/slog"
)

// NewLogger builds a text logger whose message and string attributes are
// passed through redactor before being written.
func NewLogger(w io.Writer, level slog.Leveler, redactor *Redactor) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if redactor != nil {
		opts.ReplaceAttr = func(_ []string, a slog.Attr) slog.Attr {
			return redactAttr(redactor, a)
		}
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func redactAttr(r *Redactor, a slog.Attr) slog.Attr {
	v := a.Value.Resolve()
	switch v.Kind() {
	case slog.KindString:
		a.Value = slog.StringValue(r.Redact(v.String()))
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			a.Value = slog.StringValue(r.Redact(err.Error()))
		}
	}
	return a
}
