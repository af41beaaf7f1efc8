package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"session-scheduler-backend/internal/engine"
	"session-scheduler-backend/internal/parse"
)

var (
	assignSession string
	assignMachine string
	assignDate    string
	assignHour    string
	assignCheck   bool
)

var assignCmd = &cobra.Command{
	Use:   "assign",
	Short: "Pin a session to a machine at a date and hour",
	Long: `Pin a session to a machine at a date and hour.

Examples:
  # See what a manual assignment would conflict with
  schedulerd assign --session s1 --machine m2 --date 2026-10-20 --hour 09:00 --check

  # Commit it
  schedulerd assign --session s1 --machine m2 --date 2026-10-20 --hour 9
`,
	RunE: runAssign,
}

func init() {
	assignCmd.Flags().StringVar(&assignSession, "session", "", "Session ID")
	assignCmd.Flags().StringVar(&assignMachine, "machine", "", "Machine ID")
	assignCmd.Flags().StringVar(&assignDate, "date", "", "Date (YYYY-MM-DD)")
	assignCmd.Flags().StringVar(&assignHour, "hour", "", "Start hour (9 or 09:00)")
	assignCmd.Flags().BoolVar(&assignCheck, "check", false, "Only report conflicts, do not commit")
	for _, f := range []string{"session", "machine", "date", "hour"} {
		_ = assignCmd.MarkFlagRequired(f)
	}
	rootCmd.AddCommand(assignCmd)
}

func runAssign(cmd *cobra.Command, args []string) error {
	date, err := parse.ParseDate(assignDate)
	if err != nil {
		return err
	}
	hour, err := parse.ParseStartHour(assignHour)
	if err != nil {
		return err
	}
	req := engine.ManualRequest{SessionID: assignSession, MachineID: assignMachine, Date: date, StartHour: hour}

	if err := loadConfig(); err != nil {
		return err
	}
	a, err := newApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.Close()

	if assignCheck {
		res, err := a.service.CheckManual(cmd.Context(), req)
		if err != nil {
			return err
		}
		return printJSON(res.Conflicts)
	}

	res, err := a.service.ManualAssign(cmd.Context(), req)
	var occupied *engine.OccupiedError
	if errors.As(err, &occupied) {
		_ = printJSON(occupied.Conflicts)
		return err
	}
	if err != nil {
		return err
	}
	fmt.Printf("Assigned %s to %s from %s to %s.\n", req.SessionID, res.Assignment.MachineID,
		res.Assignment.StartsAt.Format("2006-01-02 15:04"), res.Assignment.EndsAt.Format("15:04"))
	return nil
}
