package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ibroh-tech/Omonat-bot/flow"
)

func newProgressCommand(opts *rootOptions) *cobra.Command {
	var userID int64
	cmd := &cobra.Command{
		Use:   "progress",
		Short: "Show a user's survey progress for the current month",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, def, db, err := opts.open()
			if err != nil {
				return err
			}
			defer db.Close()

			ctx := cmd.Context()
			st, err := flow.NewResolver(db, def.Len(), cfg.StoreTimeout).Resolve(ctx, userID)
			if err != nil {
				return fmt.Errorf("resolve progress: %w", err)
			}
			answers, err := db.Answers(ctx, userID)
			if err != nil {
				return fmt.Errorf("list answers: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "user %d, period %s\n", userID, db.Period())
			if st.HasRegion {
				fmt.Fprintf(out, "region: %s\n", st.Region.Label())
			} else {
				fmt.Fprintln(out, "region: none")
			}
			fmt.Fprintf(out, "answered: %d/%d", st.Answered, def.Len())
			if st.Complete {
				fmt.Fprint(out, " (complete)")
			}
			fmt.Fprintln(out)
			for _, a := range answers {
				fmt.Fprintf(out, "  %d. %s: %s\n", a.QuestionIndex+1, a.QuestionText, a.AnswerText)
			}
			return nil
		},
	}
	cmd.Flags().Int64Var(&userID, "user", 0, "Telegram user id")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
