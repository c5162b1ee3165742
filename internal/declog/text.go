package declog

import (
	"fmt"
	"io"
)

// TextSink renders events as indented human-readable lines, one per
// event, in the style of a build log.
type TextSink struct {
	w io.Writer
}

// NewTextSink creates a sink writing to w.
func NewTextSink(w io.Writer) *TextSink {
	return &TextSink{w: w}
}

func (t *TextSink) Write(ev Event) error {
	var err error
	switch ev.Kind {
	case KindInput:
		_, err = fmt.Fprintf(t.w, "input %s=%s\n", ev.Name, ev.Value)
	case KindPrimaryOrDependency:
		_, err = fmt.Fprintf(t.w, "%s %q\n", ev.RefKind, ev.Reference)
	case KindConsidered:
		if ev.Reason == "" {
			_, err = fmt.Fprintf(t.w, "    considered %q\n", ev.Location)
		} else {
			_, err = fmt.Fprintf(t.w, "    considered %q: %s\n", ev.Location, ev.Reason)
		}
	case KindResolved:
		_, err = fmt.Fprintf(t.w, "    resolved to %q\n", ev.Location)
	case KindUnification:
		_, err = fmt.Fprintf(t.w, "    unified %s -> %s (%s)\n", ev.OldVersion, ev.Version, ev.Reason)
	case KindConflict:
		_, err = fmt.Fprintf(t.w, "conflict: %q beat %q (%s)\n", ev.Winner, ev.Loser, ev.Reason)
	case KindSuggestedRedirect:
		_, err = fmt.Fprintf(t.w, "suggested redirect: %s -> %s\n", ev.Partial, ev.Version)
	case KindCopyLocalDecision:
		_, err = fmt.Fprintf(t.w, "    copy-local: %s\n", ev.Reason)
	case KindExclusionApplied:
		_, err = fmt.Fprintf(t.w, "excluded %q by subset %q\n", ev.Reference, ev.Subset)
	case KindAdvisory:
		_, err = fmt.Fprintf(t.w, "advisory: %s\n", ev.Message)
	case KindWarning:
		_, err = fmt.Fprintf(t.w, "warning %s: %s\n", ev.Code, ev.Message)
	case KindError:
		_, err = fmt.Fprintf(t.w, "error %s: %s\n", ev.Code, ev.Message)
	default:
		_, err = fmt.Fprintf(t.w, "%s\n", ev.Kind)
	}
	return err
}

func (t *TextSink) Close() error { return nil }
