package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newResetCommand(opts *rootOptions) *cobra.Command {
	var userID int64
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete a user's answers and region for the current month",
		Long: `Delete a user's answers and region selections for the current month.

Unlike /restart this also works after the user completed the survey.
Earlier months are kept.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, _, db, err := opts.open()
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.ResetCurrentMonth(cmd.Context(), userID); err != nil {
				return fmt.Errorf("reset user %d: %w", userID, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reset user %d for %s\n", userID, db.Period())
			return nil
		},
	}
	cmd.Flags().Int64Var(&userID, "user", 0, "Telegram user id")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
