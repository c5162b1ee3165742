package declog

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
)

func TestEventOrderAndSeq(t *testing.T) {
	l := New(false)
	l.Input("AutoUnify", "true")
	l.Primary("Foo, Version=1.0.0.0")
	l.Considered("Foo, Version=1.0.0.0", "/dir/Foo.winmd", "FileNotFound")
	l.Resolved("Foo, Version=1.0.0.0", "/dir/Foo.dll")
	l.Warning("ARR1001", "conflict between Lib versions")
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	events := l.Events()
	if len(events) != 5 {
		t.Fatalf("events = %d, want 5", len(events))
	}
	wantKinds := []Kind{KindInput, KindPrimaryOrDependency, KindConsidered, KindResolved, KindWarning}
	for i, ev := range events {
		if ev.Kind != wantKinds[i] {
			t.Errorf("event %d kind = %v, want %v", i, ev.Kind, wantKinds[i])
		}
		if ev.Seq != i {
			t.Errorf("event %d seq = %d", i, ev.Seq)
		}
	}
	if l.HasErrors() {
		t.Error("HasErrors should be false with only a warning")
	}
	if l.WarningCount() != 1 {
		t.Errorf("WarningCount = %d, want 1", l.WarningCount())
	}
}

func TestErrorFlipsSuccess(t *testing.T) {
	l := New(false)
	l.Error("ARR2001", "architecture mismatch")
	l.Close()
	if !l.HasErrors() {
		t.Error("HasErrors should be true")
	}
}

func TestSilentSuppressesReferenceBlock(t *testing.T) {
	l := New(true)
	l.Input("Silent", "true")
	l.Primary("Foo")
	l.Considered("Foo", "/dir/Foo.dll", "")
	l.Resolved("Foo", "/dir/Foo.dll")
	l.CopyLocal("Foo", "YesHeuristic")
	l.Conflict("Foo v2", "Foo v1", "HadLowerVersion")
	l.Advisory("note")
	l.Close()

	events := l.Events()
	if len(events) != 3 {
		t.Fatalf("events = %d, want Input+Conflict+Advisory only, got %+v", len(events), events)
	}
	for _, ev := range events {
		if perReference(ev.Kind) {
			t.Errorf("silent log leaked per-reference event %v", ev.Kind)
		}
	}
}

func TestUnificationReasonPrefix(t *testing.T) {
	l := New(false)
	l.Unification("Lib", "1.0.0.0", "2.0.0.0", "AutoUnify")
	l.Close()
	events := l.Events()
	if len(events) != 1 || events[0].Reason != "UnificationByAutoUnify" {
		t.Errorf("events = %+v", events)
	}
}

func TestTextSink(t *testing.T) {
	var buf bytes.Buffer
	l := New(false, NewTextSink(&buf))
	l.Primary("Foo, Version=1.0.0.0")
	l.Resolved("Foo, Version=1.0.0.0", "/dir/Foo.dll")
	l.SuggestedRedirect("Lib, Culture=neutral", "2.0.0.0")
	l.Close()

	out := buf.String()
	for _, want := range []string{
		`primary "Foo, Version=1.0.0.0"`,
		`resolved to "/dir/Foo.dll"`,
		"suggested redirect: Lib, Culture=neutral -> 2.0.0.0",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("text output missing %q:\n%s", want, out)
		}
	}
}

func TestSqliteSinkRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "declog.db")

	sink, err := NewSqliteSink(path, "test-invocation")
	if err != nil {
		t.Fatalf("NewSqliteSink: %v", err)
	}
	l2 := New(false, sink)
	l2.Input("TargetProcessorArchitecture", "MSIL")
	l2.Primary("Foo, Version=1.0.0.0")
	l2.Resolved("Foo, Version=1.0.0.0", "/dir/Foo.dll")
	l2.Conflict("Lib v2", "Lib v1", "HadLowerVersion")
	if err := l2.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	events, err := Query(path, QueryOptions{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(events) != 4 {
		t.Fatalf("events = %d, want 4", len(events))
	}
	if events[3].Kind != KindConflict || events[3].Winner != "Lib v2" {
		t.Errorf("conflict event = %+v", events[3])
	}

	conflicts, err := Query(path, QueryOptions{Kind: string(KindConflict)})
	if err != nil {
		t.Fatalf("Query filtered: %v", err)
	}
	if len(conflicts) != 1 {
		t.Errorf("filtered events = %d, want 1", len(conflicts))
	}
}
