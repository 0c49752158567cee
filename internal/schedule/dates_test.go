package schedule

import (
	"testing"
	"time"
)

func TestFormatDate(t *testing.T) {
	// 2025-09-02 is a Tuesday.
	if got := FormatDate(testDay); got != "Вт 02.09.25" {
		t.Errorf("FormatDate = %q, want %q", got, "Вт 02.09.25")
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    time.Time
		wantErr bool
	}{
		{"bare date", "02.09.25", testDay, false},
		{"with weekday", "Вт 02.09.25", testDay, false},
		{"extra spaces", "  Вт  02.09.25", testDay, false},
		{"garbage", "завтра", time.Time{}, true},
		{"wrong layout", "2025-09-02", time.Time{}, true},
		{"empty", "", time.Time{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDate(tt.in, tz)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseDate(%q) succeeded, want error", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDate(%q): %v", tt.in, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("ParseDate(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseDate_RoundTrip(t *testing.T) {
	for i := 0; i < 7; i++ {
		d := testDay.AddDate(0, 0, i)
		parsed, err := ParseDate(FormatDate(d), tz)
		if err != nil {
			t.Fatalf("round trip %v: %v", d, err)
		}
		if !SameDate(parsed, d) {
			t.Errorf("round trip %v = %v", d, parsed)
		}
	}
}
