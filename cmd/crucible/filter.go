package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/crucible-ai/crucible/internal/filter"
)

var filterCmd = &cobra.Command{
	Use:   "filter",
	Short: "Work with filter expressions",
}

var filterCheckCmd = &cobra.Command{
	Use:   "check <expression>",
	Short: "Validate a filter expression",
	Long: `Validate a filter expression without a running daemon.

Examples:

  $ crucible filter check "event.priority == 'Critical'"
  $ crucible filter check "event.type starts_with 'scan.' && event.metadata.env in ['prod', 'staging']"`,
	Args: cobra.ExactArgs(1),
	RunE: runFilterCheck,
}

func init() {
	filterCmd.AddCommand(filterCheckCmd)
}

var (
	okStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

func runFilterCheck(cmd *cobra.Command, args []string) error {
	if err := filter.Check(args[0]); err != nil {
		cmd.Println(errStyle.Render("invalid: ") + err.Error())
		return fmt.Errorf("expression is invalid")
	}
	cmd.Println(okStyle.Render("valid"))
	return nil
}
