package main

import (
	"github.com/spf13/cobra"
)

var runSummaryOnly bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one scheduling pass and print the result",
	RunE:  runPass,
}

func init() {
	runCmd.Flags().BoolVar(&runSummaryOnly, "summary", false, "Print only the summary")
	rootCmd.AddCommand(runCmd)
}

func runPass(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	a, err := newApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.service.RunPass(cmd.Context())
	if err != nil {
		return err
	}
	if runSummaryOnly {
		return printJSON(res.Summary)
	}
	return printJSON(res)
}
