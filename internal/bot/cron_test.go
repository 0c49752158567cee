package bot

import (
	"testing"
	"time"
)

// --- nextCronDuration ---

func TestNextCronDurationUsesGivenLocation(t *testing.T) {
	loc := time.FixedZone("UTC+4", 4*3600)
	now := time.Date(2025, 9, 1, 20, 0, 0, 0, loc)

	if got := nextCronDuration("0 21 * * *", now); got != time.Hour {
		t.Errorf("nextCronDuration() = %v, want 1h to the 21:00 fire", got)
	}

	// The same instant seen from UTC is 16:00, so the daily job would fire
	// at a different wall-clock hour if the host zone leaked in.
	if got := nextCronDuration("0 21 * * *", now.UTC()); got != 5*time.Hour {
		t.Errorf("nextCronDuration() = %v, want 5h from the UTC view", got)
	}
}

func TestNextCronDurationBadExpression(t *testing.T) {
	if got := nextCronDuration("bogus", time.Now()); got != 0 {
		t.Errorf("nextCronDuration() = %v, want 0 on parse error", got)
	}
}

func TestTimerChanNil(t *testing.T) {
	if timerChan(nil) != nil {
		t.Error("timerChan(nil) != nil, want nil channel")
	}
}
