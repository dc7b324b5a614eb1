package weave

import "testing"

func TestSetStatusLegalTransition(t *testing.T) {
	rec := allocRecord(func(ctx *Ctx) {}, Default)
	defer freeRecord(rec)

	rec.status.Store(NotStarted)
	prev := rec.setStatus(Running)
	if prev != NotStarted {
		t.Errorf("got prev=%v, want NotStarted", statusNames[prev])
	}
	if rec.status.Load() != Running {
		t.Errorf("status not updated to Running")
	}
}

func TestSetStatusIllegalTransitionPanics(t *testing.T) {
	rec := allocRecord(func(ctx *Ctx) {}, Default)
	defer freeRecord(rec)

	rec.status.Store(Completed)
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic on illegal transition Completed -> Running")
		}
	}()
	rec.setStatus(Running)
}

func TestTryCASFailsGracefully(t *testing.T) {
	rec := allocRecord(func(ctx *Ctx) {}, Default)
	defer freeRecord(rec)

	rec.status.Store(NotStarted)
	if rec.tryCAS(Suspended, Running) {
		t.Error("tryCAS should fail when current status doesn't match from")
	}
	if rec.status.Load() != NotStarted {
		t.Error("failed tryCAS must not mutate status")
	}
}
