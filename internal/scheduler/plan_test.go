package scheduler

import (
	"errors"
	"testing"
	"time"

	"github.com/narworks/muhasebe-asistani-sub000/internal/models"
)

var istanbul = time.FixedZone("TRT", 3*60*60)

func at(year int, month time.Month, day, hour, minute int) time.Time {
	return time.Date(year, month, day, hour, minute, 0, 0, istanbul)
}

func testPacing() Pacing {
	return Pacing{
		DelayMin:      5 * time.Second,
		DelayMax:      15 * time.Second,
		BatchSize:     10,
		BatchPauseMin: 60 * time.Second,
		BatchPauseMax: 120 * time.Second,
	}
}

func TestEstimateDuration(t *testing.T) {
	p := testPacing()

	tests := []struct {
		name  string
		count int
		batch int
		want  int
	}{
		{"zero entities", 0, 10, 0},
		{"negative count", -3, 10, 0},
		// 45s -> 1 min -> 1.2 -> 2
		{"single entity", 1, 10, 2},
		// 450s + 9*10s = 540s -> 9 min -> 10.8 -> 11
		{"ten entities one batch", 10, 10, 11},
		// 540s + 4*90s = 900s -> 15 min -> 18
		{"ten entities batches of two", 10, 2, 18},
		// 4500s + 99*10s + 9*90s = 6300s -> 105 min -> 126
		{"hundred entities", 100, 10, 126},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p.BatchSize = tt.batch
			if got := EstimateDuration(tt.count, p); got != tt.want {
				t.Errorf("EstimateDuration(%d) = %d, want %d", tt.count, got, tt.want)
			}
		})
	}
}

func TestEstimateDuration_Monotonic(t *testing.T) {
	p := testPacing()
	prev := EstimateDuration(0, p)
	for n := 1; n <= 500; n++ {
		got := EstimateDuration(n, p)
		if got < prev {
			t.Fatalf("EstimateDuration(%d) = %d, below %d for n-1", n, got, prev)
		}
		prev = got
	}
}

func TestEstimateDuration_ZeroBatchSize(t *testing.T) {
	p := testPacing()
	p.BatchSize = 0
	if got := EstimateDuration(5, p); got <= 0 {
		t.Errorf("EstimateDuration(5) = %d, want positive", got)
	}
}

func TestParseClock(t *testing.T) {
	c, err := ParseClock("08:00")
	if err != nil {
		t.Fatalf("ParseClock() error = %v", err)
	}
	if c != (Clock{Hour: 8}) {
		t.Errorf("ParseClock(08:00) = %+v", c)
	}
	if c.String() != "08:00" {
		t.Errorf("String() = %q, want 08:00", c.String())
	}

	c, err = ParseClock(" 7:05 ")
	if err != nil {
		t.Fatalf("ParseClock() error = %v", err)
	}
	if c.String() != "07:05" {
		t.Errorf("String() = %q, want 07:05", c.String())
	}

	for _, bad := range []string{"", "8", "24:00", "08:60", "08:5", "aa:bb", "-1:00"} {
		if _, err := ParseClock(bad); !errors.Is(err, ErrInvalidClock) {
			t.Errorf("ParseClock(%q) error = %v, want %v", bad, err, ErrInvalidClock)
		}
	}
}

func TestComputeStartTime_WeekendToMonday(t *testing.T) {
	now := at(2026, time.October, 17, 10, 0) // Saturday
	if now.Weekday() != time.Saturday {
		t.Fatalf("now is %v, want Saturday", now.Weekday())
	}

	start, finish, err := ComputeStartTime(now, Clock{Hour: 8}, 90, models.FrequencyWeekdays, nil)
	if err != nil {
		t.Fatalf("ComputeStartTime() error = %v", err)
	}
	if want := at(2026, time.October, 19, 8, 0); !finish.Equal(want) {
		t.Errorf("finish = %v, want %v", finish, want)
	}
	if want := at(2026, time.October, 19, 6, 30); !start.Equal(want) {
		t.Errorf("start = %v, want %v", start, want)
	}
	if finish.Weekday() != time.Monday {
		t.Errorf("finish weekday = %v, want Monday", finish.Weekday())
	}
}

func TestComputeStartTime(t *testing.T) {
	monday := func(h, m int) time.Time { return at(2026, time.October, 19, h, m) }

	tests := []struct {
		name       string
		now        time.Time
		finishBy   Clock
		minutes    int
		freq       models.Frequency
		days       []int
		wantStart  time.Time
		wantFinish time.Time
	}{
		{
			name: "later today", now: monday(5, 0), finishBy: Clock{Hour: 8}, minutes: 90, freq: models.FrequencyDaily,
			wantStart: monday(6, 30), wantFinish: monday(8, 0),
		},
		{
			name: "start already passed today", now: monday(7, 0), finishBy: Clock{Hour: 8}, minutes: 90, freq: models.FrequencyDaily,
			wantStart: at(2026, time.October, 20, 6, 30), wantFinish: at(2026, time.October, 20, 8, 0),
		},
		{
			name: "start exactly now is not strictly future", now: monday(6, 30), finishBy: Clock{Hour: 8}, minutes: 90, freq: models.FrequencyDaily,
			wantStart: at(2026, time.October, 20, 6, 30), wantFinish: at(2026, time.October, 20, 8, 0),
		},
		{
			name: "single custom day next week", now: monday(9, 0), finishBy: Clock{Hour: 8}, minutes: 30, freq: models.FrequencyCustom, days: []int{1},
			wantStart: at(2026, time.October, 26, 7, 30), wantFinish: at(2026, time.October, 26, 8, 0),
		},
		{
			name: "weekends", now: monday(9, 0), finishBy: Clock{Hour: 8}, minutes: 60, freq: models.FrequencyWeekends,
			wantStart: at(2026, time.October, 24, 7, 0), wantFinish: at(2026, time.October, 24, 8, 0),
		},
		{
			name: "start on previous day", now: monday(9, 0), finishBy: Clock{Hour: 2}, minutes: 180, freq: models.FrequencyDaily,
			wantStart: monday(23, 0), wantFinish: at(2026, time.October, 20, 2, 0),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, finish, err := ComputeStartTime(tt.now, tt.finishBy, tt.minutes, tt.freq, tt.days)
			if err != nil {
				t.Fatalf("ComputeStartTime() error = %v", err)
			}
			if !start.Equal(tt.wantStart) {
				t.Errorf("start = %v, want %v", start, tt.wantStart)
			}
			if !finish.Equal(tt.wantFinish) {
				t.Errorf("finish = %v, want %v", finish, tt.wantFinish)
			}
			if !start.After(tt.now) {
				t.Errorf("start %v is not after now %v", start, tt.now)
			}
		})
	}
}

func TestComputeStartTime_Refusals(t *testing.T) {
	now := at(2026, time.October, 19, 9, 0)

	_, _, err := ComputeStartTime(now, Clock{Hour: 8}, 0, models.FrequencyDaily, nil)
	if !errors.Is(err, ErrNothingToSchedule) {
		t.Errorf("error = %v, want %v", err, ErrNothingToSchedule)
	}

	_, _, err = ComputeStartTime(now, Clock{Hour: 8}, 30, models.FrequencyCustom, nil)
	if !errors.Is(err, ErrNoDays) {
		t.Errorf("error = %v, want %v", err, ErrNoDays)
	}

	_, _, err = ComputeStartTime(now, Clock{Hour: 8}, 30, "hourly", nil)
	if !errors.Is(err, ErrInvalidFrequency) {
		t.Errorf("error = %v, want %v", err, ErrInvalidFrequency)
	}

	// longer than the whole lookahead window
	_, _, err = ComputeStartTime(now, Clock{Hour: 8}, 9*24*60, models.FrequencyDaily, nil)
	if !errors.Is(err, ErrNoSlot) {
		t.Errorf("error = %v, want %v", err, ErrNoSlot)
	}
}

func TestBuildCronExpression(t *testing.T) {
	sameDay := func() (time.Time, time.Time) {
		return at(2026, time.October, 19, 6, 30), at(2026, time.October, 19, 8, 0)
	}
	prevDay := func() (time.Time, time.Time) {
		return at(2026, time.October, 18, 23, 15), at(2026, time.October, 19, 1, 0)
	}

	tests := []struct {
		name  string
		times func() (time.Time, time.Time)
		freq  models.Frequency
		days  []int
		want  string
	}{
		{"daily", sameDay, models.FrequencyDaily, nil, "30 6 * * *"},
		{"weekdays", sameDay, models.FrequencyWeekdays, nil, "30 6 * * 1-5"},
		{"weekends", sameDay, models.FrequencyWeekends, nil, "30 6 * * 0,6"},
		{"custom unsorted with duplicates", sameDay, models.FrequencyCustom, []int{5, 1, 3, 1}, "30 6 * * 1,3,5"},
		{"weekdays shifted back", prevDay, models.FrequencyWeekdays, nil, "15 23 * * 0-4"},
		{"weekends shifted back", prevDay, models.FrequencyWeekends, nil, "15 23 * * 5,6"},
		{"daily shifted back", prevDay, models.FrequencyDaily, nil, "15 23 * * *"},
		{"custom sunday shifted to saturday", prevDay, models.FrequencyCustom, []int{0}, "15 23 * * 6"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, finish := tt.times()
			got, err := BuildCronExpression(start, finish, tt.freq, tt.days)
			if err != nil {
				t.Fatalf("BuildCronExpression() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("BuildCronExpression() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuildCronExpression_RejectsEmptyCustom(t *testing.T) {
	start := at(2026, time.October, 19, 6, 30)
	_, err := BuildCronExpression(start, start, models.FrequencyCustom, []int{})
	if !errors.Is(err, ErrNoDays) {
		t.Errorf("error = %v, want %v", err, ErrNoDays)
	}

	_, err = BuildCronExpression(start, start, models.FrequencyCustom, []int{7})
	if !errors.Is(err, ErrNoDays) {
		t.Errorf("error = %v, want %v", err, ErrNoDays)
	}
}
