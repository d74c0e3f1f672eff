package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/narworks/muhasebe-asistani-sub000/internal/models"
	"github.com/narworks/muhasebe-asistani-sub000/internal/orchestrator"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run one scan of every active entity in the foreground",
	Long: `Runs a full scan and prints the status stream until it finishes.
Interrupt with Ctrl-C to cancel; the entity in progress is abandoned and the
summary reports how many entities were processed.`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	orch, err := a.newOrchestrator(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	done := make(chan struct{})
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		printEvents(out, orch.Events(), done)
	}()

	snap, err := orch.Run(ctx, orchestrator.Request{Trigger: orchestrator.TriggerCLI})
	close(done)
	<-printed
	if err != nil {
		return err
	}

	fmt.Fprintln(out, snap.Summary)
	if snap.State != models.ScanStateCompleted {
		return fmt.Errorf("scan %s", snap.State)
	}
	return nil
}

// printEvents writes events until done is closed, then flushes what is
// still buffered.
func printEvents(w io.Writer, events <-chan models.Event, done <-chan struct{}) {
	for {
		select {
		case ev := <-events:
			printEvent(w, ev)
		case <-done:
			for {
				select {
				case ev := <-events:
					printEvent(w, ev)
				default:
					return
				}
			}
		}
	}
}

func printEvent(w io.Writer, ev models.Event) {
	ts := ev.Time.Local().Format("15:04:05")
	switch ev.Type {
	case models.EventProgress:
		if p := ev.Progress; p != nil {
			fmt.Fprintf(w, "%s [progress] %d/%d %s\n", ts, p.Current, p.Total, p.CurrentEntityName)
		}
	case models.EventScanState:
		if s := ev.ScanState; s != nil {
			fmt.Fprintf(w, "%s [state] %s\n", ts, s.State)
		}
	default:
		fmt.Fprintf(w, "%s [%s] %s\n", ts, ev.Type, ev.Message)
	}
}
