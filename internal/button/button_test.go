package button

import (
	"testing"
	"time"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func ms(n int) time.Time {
	return t0.Add(time.Duration(n) * time.Millisecond)
}

// setupBaselined returns a debouncer with a released baseline at t0+50ms.
func setupBaselined(t *testing.T) *Debouncer {
	t.Helper()
	d := NewDebouncer(50 * time.Millisecond)
	d.Process(false, ms(0))
	d.Process(false, ms(50))
	if !d.IsBaselined() {
		t.Fatal("setup: expected baseline")
	}
	return d
}

func TestNewDebouncerDefault(t *testing.T) {
	d := NewDebouncer(0)
	if d.debounce != DefaultDebounce {
		t.Errorf("expected default debounce, got %v", d.debounce)
	}
	if d.IsBaselined() {
		t.Error("new debouncer should not be baselined")
	}
}

func TestBaselineEstablishment(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond)

	if e := d.Process(false, ms(0)); e != EventNone {
		t.Errorf("expected no event during baseline, got %s", e)
	}
	d.Process(false, ms(40))
	if d.IsBaselined() {
		t.Error("should not be baselined before debounce period")
	}
	if e := d.Process(false, ms(50)); e != EventNone {
		t.Errorf("expected no event at baseline establishment, got %s", e)
	}
	if !d.IsBaselined() {
		t.Error("should be baselined after debounce period")
	}
}

func TestHeldAtStartupIsNotAPress(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond)
	for i := 0; i <= 200; i += 10 {
		if e := d.Process(true, ms(i)); e != EventNone {
			t.Fatalf("at %dms: got %s", i, e)
		}
	}
	if !d.Pressed() {
		t.Error("expected pressed baseline")
	}
	if e := d.Process(false, ms(300)); e != EventNone {
		t.Errorf("release starts debounce, got %s", e)
	}
	if e := d.Process(false, ms(350)); e != EventRelease {
		t.Errorf("expected RELEASE, got %s", e)
	}
	if d.Presses() != 0 {
		t.Errorf("Presses = %d, want 0", d.Presses())
	}
}

func TestBaselineResetOnChange(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond)
	d.Process(true, ms(0))
	d.Process(false, ms(30))
	d.Process(false, ms(50))
	if d.IsBaselined() {
		t.Error("should not baseline: level changed during observation")
	}
	d.Process(false, ms(80))
	if !d.IsBaselined() || d.Pressed() {
		t.Error("expected released baseline 50ms after the change")
	}
}

func TestPressAndRelease(t *testing.T) {
	d := setupBaselined(t)

	if e := d.Process(true, ms(100)); e != EventNone {
		t.Errorf("first pressed sample: got %s", e)
	}
	if e := d.Process(true, ms(149)); e != EventNone {
		t.Errorf("before debounce: got %s", e)
	}
	if e := d.Process(true, ms(150)); e != EventPress {
		t.Errorf("expected PRESS at exactly the debounce time, got %s", e)
	}
	if e := d.Process(true, ms(400)); e != EventNone {
		t.Errorf("holding must not repeat, got %s", e)
	}
	d.Process(false, ms(500))
	if e := d.Process(false, ms(550)); e != EventRelease {
		t.Errorf("expected RELEASE, got %s", e)
	}
	if d.Presses() != 1 {
		t.Errorf("Presses = %d, want 1", d.Presses())
	}
}

func TestBounceShorterThanDebounce(t *testing.T) {
	d := setupBaselined(t)

	d.Process(true, ms(100))
	d.Process(false, ms(120))
	d.Process(true, ms(130))
	d.Process(false, ms(140))
	if e := d.Process(false, ms(200)); e != EventNone {
		t.Errorf("bounces shorter than debounce must be ignored, got %s", e)
	}
	if d.Presses() != 0 {
		t.Errorf("Presses = %d, want 0", d.Presses())
	}
}

func TestPendingRestartsAfterBounce(t *testing.T) {
	d := setupBaselined(t)

	d.Process(true, ms(100))
	d.Process(false, ms(120))
	d.Process(true, ms(130))
	if e := d.Process(true, ms(170)); e != EventNone {
		t.Errorf("debounce should restart at 130ms, got %s", e)
	}
	if e := d.Process(true, ms(180)); e != EventPress {
		t.Errorf("expected PRESS at 180ms, got %s", e)
	}
}

func TestRepeatedPressesCounted(t *testing.T) {
	d := setupBaselined(t)
	now := 100
	for i := 0; i < 3; i++ {
		d.Process(true, ms(now))
		d.Process(true, ms(now+60))
		d.Process(false, ms(now+200))
		d.Process(false, ms(now+260))
		now += 500
	}
	if d.Presses() != 3 {
		t.Errorf("Presses = %d, want 3", d.Presses())
	}
}

func TestEventString(t *testing.T) {
	for e, want := range map[Event]string{EventNone: "NONE", EventPress: "PRESS", EventRelease: "RELEASE"} {
		if e.String() != want {
			t.Errorf("%d.String() = %q, want %q", int(e), e.String(), want)
		}
	}
}
