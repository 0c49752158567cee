package timegrid

import (
	"testing"
	"time"
)

var tz = time.FixedZone("UTC+4", 4*3600)

func at(hour, min int) time.Time {
	return time.Date(2025, 9, 2, hour, min, 0, 0, tz)
}

// --- RoundUp ---

func TestRoundUp(t *testing.T) {
	tests := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{"aligned unchanged", at(10, 15), at(10, 15)},
		{"rounds forward", at(10, 12), at(10, 15)},
		{"one past grid", at(10, 16), at(10, 20)},
		{"hour rollover", at(10, 58), at(11, 0)},
		{"top of hour unchanged", at(10, 0), at(10, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RoundUp(tt.in, DefaultGridStep)
			if !got.Equal(tt.want) {
				t.Errorf("RoundUp(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestRoundUp_DropsSeconds(t *testing.T) {
	in := time.Date(2025, 9, 2, 10, 15, 42, 999, tz)
	if got := RoundUp(in, DefaultGridStep); !got.Equal(at(10, 15)) {
		t.Errorf("RoundUp with seconds = %v, want %v", got, at(10, 15))
	}
}

func TestRoundUp_Idempotent(t *testing.T) {
	for _, in := range []time.Time{at(10, 0), at(10, 3), at(10, 57), at(23, 59)} {
		once := RoundUp(in, DefaultGridStep)
		twice := RoundUp(once, DefaultGridStep)
		if !once.Equal(twice) {
			t.Errorf("RoundUp not idempotent for %v: %v != %v", in, once, twice)
		}
	}
}

func TestRoundUp_BadStepFallsBack(t *testing.T) {
	if got := RoundUp(at(10, 12), 0); !got.Equal(at(10, 15)) {
		t.Errorf("RoundUp with zero step = %v, want %v", got, at(10, 15))
	}
}

// --- Overlaps ---

func TestOverlaps(t *testing.T) {
	base := Interval{Start: at(14, 0), End: at(15, 0)}
	tests := []struct {
		name string
		o    Interval
		want bool
	}{
		{"inside", Interval{at(14, 15), at(14, 45)}, true},
		{"spanning", Interval{at(13, 0), at(16, 0)}, true},
		{"partial left", Interval{at(13, 30), at(14, 30)}, true},
		{"partial right", Interval{at(14, 30), at(15, 30)}, true},
		{"touching before", Interval{at(13, 0), at(14, 0)}, false},
		{"touching after", Interval{at(15, 0), at(16, 0)}, false},
		{"disjoint", Interval{at(16, 0), at(17, 0)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := base.Overlaps(tt.o); got != tt.want {
				t.Errorf("Overlaps(%v, %v) = %v, want %v", base, tt.o, got, tt.want)
			}
			// Overlap is symmetric.
			if got := tt.o.Overlaps(base); got != tt.want {
				t.Errorf("Overlaps(%v, %v) = %v, want %v", tt.o, base, got, tt.want)
			}
		})
	}
}

// --- Window ---

func TestWindow_BeforeOpen(t *testing.T) {
	now := at(8, 0)
	w := Window(at(0, 0), now, 10*time.Hour, 22*time.Hour)
	if !w.Start.Equal(at(10, 0)) || !w.End.Equal(at(22, 0)) {
		t.Errorf("window = %v..%v, want 10:00..22:00", w.Start, w.End)
	}
}

func TestWindow_MidDay(t *testing.T) {
	now := at(13, 37)
	w := Window(at(0, 0), now, 10*time.Hour, 22*time.Hour)
	if !w.Start.Equal(now) {
		t.Errorf("window start = %v, want now %v", w.Start, now)
	}
}

func TestWindow_PastClose(t *testing.T) {
	now := at(22, 30)
	w := Window(at(0, 0), now, 10*time.Hour, 22*time.Hour)
	if !w.Empty() {
		t.Errorf("expected empty window after close, got %v..%v", w.Start, w.End)
	}
}

func TestWindow_FutureDateIgnoresNow(t *testing.T) {
	now := at(13, 0)
	tomorrow := now.AddDate(0, 0, 1)
	w := Window(tomorrow, now, 10*time.Hour, 22*time.Hour)
	wantOpen := time.Date(2025, 9, 3, 10, 0, 0, 0, tz)
	if !w.Start.Equal(wantOpen) {
		t.Errorf("window start = %v, want %v", w.Start, wantOpen)
	}
}

// --- Candidates ---

func TestCandidates(t *testing.T) {
	w := Interval{Start: at(10, 2), End: at(11, 40)}
	var got []time.Time
	for c := range Candidates(w, DefaultGridStep, DefaultSlotStep) {
		got = append(got, c)
	}
	want := []time.Time{at(10, 5), at(10, 35), at(11, 5), at(11, 35)}
	if len(got) != len(want) {
		t.Fatalf("got %d candidates, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Errorf("candidate[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestCandidates_EmptyWindow(t *testing.T) {
	w := Interval{Start: at(22, 0), End: at(22, 0)}
	for c := range Candidates(w, DefaultGridStep, DefaultSlotStep) {
		t.Fatalf("unexpected candidate %v from empty window", c)
	}
}

func TestCandidates_Restartable(t *testing.T) {
	w := Interval{Start: at(10, 0), End: at(12, 0)}
	seq := Candidates(w, DefaultGridStep, DefaultSlotStep)
	first := countSeq(t, seq)
	second := countSeq(t, seq)
	if first != second || first == 0 {
		t.Errorf("sequence not restartable: first=%d second=%d", first, second)
	}
}

func TestCandidates_EarlyBreak(t *testing.T) {
	w := Interval{Start: at(10, 0), End: at(22, 0)}
	n := 0
	for range Candidates(w, DefaultGridStep, DefaultSlotStep) {
		n++
		if n == 3 {
			break
		}
	}
	if n != 3 {
		t.Errorf("expected early break after 3, got %d", n)
	}
}

func countSeq(t *testing.T, seq func(func(time.Time) bool)) int {
	t.Helper()
	n := 0
	for range seq {
		n++
	}
	return n
}
