package models

import "time"

// Frequency is the recurrence rule of the scan schedule.
type Frequency string

const (
	FrequencyDaily    Frequency = "daily"
	FrequencyWeekdays Frequency = "weekdays"
	FrequencyWeekends Frequency = "weekends"
	FrequencyCustom   Frequency = "custom"
)

// Valid reports whether f is a known frequency.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekdays, FrequencyWeekends, FrequencyCustom:
		return true
	}
	return false
}

// ScheduleConfig is the persisted scan schedule. FinishBy is the stable user
// intent; the Next* fields are derived and recomputed on every re-arm.
type ScheduleConfig struct {
	Enabled          bool       `json:"enabled"`
	FinishBy         string     `json:"finish_by"`
	Frequency        Frequency  `json:"frequency"`
	CustomDays       []int      `json:"custom_days"`
	LastTriggeredAt  *time.Time `json:"last_triggered_at,omitempty"`
	NextStartAt      *time.Time `json:"next_start_at,omitempty"`
	NextFinishAt     *time.Time `json:"next_finish_at,omitempty"`
	EstimatedMinutes int        `json:"estimated_minutes"`
	CronExpression   string     `json:"cron_expression,omitempty"`
}

// DefaultScheduleConfig is used when nothing has been persisted yet.
func DefaultScheduleConfig() ScheduleConfig {
	return ScheduleConfig{
		Enabled:    false,
		FinishBy:   "08:00",
		Frequency:  FrequencyDaily,
		CustomDays: []int{},
	}
}

// ScheduleStatus is ScheduleConfig plus the live trigger state.
type ScheduleStatus struct {
	ScheduleConfig
	Armed          bool   `json:"armed"`
	Reason         string `json:"reason,omitempty"`
	ActiveEntities int    `json:"active_entities"`
}
