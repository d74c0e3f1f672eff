package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/narworks/muhasebe-asistani-sub000/internal/models"
	"github.com/narworks/muhasebe-asistani-sub000/internal/scheduler"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Show or change the scan schedule",
}

var (
	scheduleEnable    bool
	scheduleDisable   bool
	scheduleFinishBy  string
	scheduleFrequency string
	scheduleDays      []int
)

var scheduleShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the schedule and its next trigger",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		sched := a.newScheduler()
		if err := sched.Load(cmd.Context()); err != nil {
			return err
		}
		printSchedule(cmd.OutOrStdout(), sched.Status())
		return nil
	},
}

var scheduleSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Change the schedule",
	Long: `Validates and stores the schedule. A running server applies it on restart;
use PUT /api/v1/schedule to change the schedule of a live server.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if scheduleEnable && scheduleDisable {
			return fmt.Errorf("--enable and --disable are mutually exclusive")
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		sched := a.newScheduler()
		if err := sched.Load(ctx); err != nil {
			return err
		}

		cur := sched.Status()
		req := scheduler.ConfigureRequest{
			Enabled:    cur.Enabled,
			FinishBy:   cur.FinishBy,
			Frequency:  cur.Frequency,
			CustomDays: cur.CustomDays,
		}
		flags := cmd.Flags()
		switch {
		case scheduleEnable:
			req.Enabled = true
		case scheduleDisable:
			req.Enabled = false
		}
		if flags.Changed("finish-by") {
			req.FinishBy = scheduleFinishBy
		}
		if flags.Changed("frequency") {
			req.Frequency = models.Frequency(scheduleFrequency)
		}
		if flags.Changed("days") {
			req.CustomDays = scheduleDays
		}

		status, err := sched.Configure(ctx, req)
		if err != nil {
			return err
		}
		printSchedule(cmd.OutOrStdout(), status)
		return nil
	},
}

func init() {
	f := scheduleSetCmd.Flags()
	f.BoolVar(&scheduleEnable, "enable", false, "Enable the schedule")
	f.BoolVar(&scheduleDisable, "disable", false, "Disable the schedule")
	f.StringVar(&scheduleFinishBy, "finish-by", "", "Time of day the scan must finish by (HH:MM)")
	f.StringVar(&scheduleFrequency, "frequency", "", "daily, weekdays, weekends or custom")
	f.IntSliceVar(&scheduleDays, "days", nil, "Weekdays for the custom frequency (0=Sunday)")

	scheduleCmd.AddCommand(scheduleShowCmd, scheduleSetCmd)
	rootCmd.AddCommand(scheduleCmd)
}

func printSchedule(w io.Writer, s models.ScheduleStatus) {
	fmt.Fprintf(w, "enabled:          %t\n", s.Enabled)
	fmt.Fprintf(w, "finish by:        %s\n", s.FinishBy)
	fmt.Fprintf(w, "frequency:        %s\n", s.Frequency)
	if s.Frequency == models.FrequencyCustom {
		days := make([]string, len(s.CustomDays))
		for i, d := range s.CustomDays {
			days[i] = time.Weekday(d).String()[:3]
		}
		fmt.Fprintf(w, "days:             %s\n", strings.Join(days, ","))
	}
	fmt.Fprintf(w, "active entities:  %d\n", s.ActiveEntities)
	fmt.Fprintf(w, "estimated:        %d min\n", s.EstimatedMinutes)
	if s.NextStartAt != nil {
		fmt.Fprintf(w, "next start:       %s\n", s.NextStartAt.Format(time.RFC1123))
	}
	if s.NextFinishAt != nil {
		fmt.Fprintf(w, "next finish:      %s\n", s.NextFinishAt.Format(time.RFC1123))
	}
	if s.CronExpression != "" {
		fmt.Fprintf(w, "cron:             %s\n", s.CronExpression)
	}
	if s.LastTriggeredAt != nil {
		fmt.Fprintf(w, "last triggered:   %s\n", s.LastTriggeredAt.Format(time.RFC1123))
	}
	if !s.Armed && s.Reason != "" {
		fmt.Fprintf(w, "not armed:        %s\n", s.Reason)
	}
}
