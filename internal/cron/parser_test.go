package cron

import (
	"testing"
	"time"
)

func TestParser_ValidSchedules(t *testing.T) {
	tests := []struct {
		name string
		expr string
	}{
		{"period", "30s"},
		{"sub-second period", "250ms"},
		{"padded period", " 1m30s "},
		{"every 5 minutes", "*/5 * * * *"},
		{"weekday business hours", "0 9-17 * * 1-5"},
		{"with seconds", "*/15 * * * * *"},
		{"descriptor", "@hourly"},
		{"every descriptor", "@every 45s"},
	}

	p := NewParser()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sched, err := p.Parse(tt.expr, "UTC")
			if err != nil {
				t.Errorf("Parse(%q) returned error: %v", tt.expr, err)
			}
			if sched == nil {
				t.Errorf("Parse(%q) returned nil schedule", tt.expr)
			}
		})
	}
}

func TestParser_InvalidSchedules(t *testing.T) {
	tests := []struct {
		name string
		expr string
	}{
		{"empty", ""},
		{"blank", "   "},
		{"zero period", "0s"},
		{"negative period", "-30s"},
		{"four fields", "* * * *"},
		{"seven fields", "0 * * * * * *"},
		{"invalid minute 60", "60 * * * *"},
		{"non-numeric", "abc * * * *"},
	}

	p := NewParser()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := p.Parse(tt.expr, "UTC"); err == nil {
				t.Errorf("Parse(%q) should return error", tt.expr)
			}
		})
	}
}

func TestParser_InvalidTimezone(t *testing.T) {
	p := NewParser()
	if _, err := p.Parse("0 * * * *", "Invalid/Zone"); err == nil {
		t.Error("Parse with unknown timezone should return error")
	}
	// Periods ignore the timezone.
	if _, err := p.Parse("30s", "Invalid/Zone"); err != nil {
		t.Errorf("Parse(30s) with unknown timezone returned error: %v", err)
	}
}

func TestParser_PeriodNext(t *testing.T) {
	sched, err := NewParser().Parse("30s", "")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	after := time.Date(2024, 1, 15, 9, 0, 10, 0, time.UTC)
	want := after.Add(30 * time.Second)
	if next := sched.Next(after); !next.Equal(want) {
		t.Errorf("Next(%v) = %v, want %v", after, next, want)
	}
}

func TestEvery_KeepsSubSecondPeriods(t *testing.T) {
	after := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	if next := Every(20 * time.Millisecond).Next(after); next.Sub(after) != 20*time.Millisecond {
		t.Errorf("Every(20ms).Next() advanced %v", next.Sub(after))
	}
}

func TestParser_CronNext(t *testing.T) {
	sched, err := NewParser().Parse("0 10 * * *", "UTC")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	after := time.Date(2024, 1, 15, 11, 0, 0, 0, time.UTC)
	want := time.Date(2024, 1, 16, 10, 0, 0, 0, time.UTC)
	if next := sched.Next(after); !next.Equal(want) {
		t.Errorf("Next(%v) = %v, want %v", after, next, want)
	}
}

func TestParser_CronNext_Timezone(t *testing.T) {
	p := NewParser()
	schedNY, err := p.Parse("0 10 * * *", "America/New_York")
	if err != nil {
		t.Fatalf("Parse NY failed: %v", err)
	}
	schedTokyo, err := p.Parse("0 10 * * *", "Asia/Tokyo")
	if err != nil {
		t.Fatalf("Parse Tokyo failed: %v", err)
	}

	ref := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)

	// 10:00 JST is 01:00 UTC, 10:00 EDT is 14:00 UTC.
	if !schedTokyo.Next(ref).Before(schedNY.Next(ref)) {
		t.Errorf("Tokyo (%v) should fire before New York (%v)", schedTokyo.Next(ref).UTC(), schedNY.Next(ref).UTC())
	}
}
