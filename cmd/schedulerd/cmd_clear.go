package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var clearForce bool

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop every assignment and reset sessions to pending",
	Long: `Drop every assignment and reset sessions to pending.

Scheduled, queued and conflicted sessions go back to pending; busy machines
become available. Completed sessions are kept.

Examples:
  # Interactive clear (will prompt for confirmation)
  schedulerd clear

  # Clear without confirmation
  schedulerd clear --force
`,
	RunE: runClear,
}

func init() {
	clearCmd.Flags().BoolVarP(&clearForce, "force", "f", false, "Skip confirmation prompt")
	rootCmd.AddCommand(clearCmd)
}

func runClear(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	if !clearForce {
		fmt.Print("This drops the whole schedule. Type 'yes' to continue: ")
		answer, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		if strings.TrimSpace(strings.ToLower(answer)) != "yes" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	a, err := newApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.Close()

	out, err := a.service.Clear(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Printf("Schedule cleared: %d sessions, %d machines reset.\n", len(out.Sessions), len(out.Machines))
	return nil
}
