package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var conflictsCmd = &cobra.Command{
	Use:   "conflicts",
	Short: "List overallocated machines and hardware in the persisted schedule",
	RunE:  runConflicts,
}

func init() {
	rootCmd.AddCommand(conflictsCmd)
}

func runConflicts(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	a, err := newApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.Close()

	insp, err := a.service.Inspect(cmd.Context())
	if err != nil {
		return err
	}
	if len(insp.Overallocations) == 0 {
		fmt.Println("No conflicts.")
		return nil
	}
	for _, o := range insp.Overallocations {
		fmt.Printf("%-24s %-12s %-16s required=%d available=%d excess=%d\n",
			o.Type, o.SlotRef, o.ResourceID, o.Required, o.Available, o.Excess)
	}
	return fmt.Errorf("%d overallocation(s) found", len(insp.Overallocations))
}
