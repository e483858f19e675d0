package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ibroh-tech/Omonat-bot/survey"
)

func newValidateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the survey definition",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.config()
			if err != nil {
				return err
			}
			def, err := survey.Load(cfg.SurveyPath)
			if err != nil {
				return err
			}

			open := 0
			for _, q := range def.Questions {
				if q.IsOpenText() {
					open++
				}
			}
			source := cfg.SurveyPath
			if source == "" {
				source = "built-in"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d regions, %d questions (%d open text)\n",
				source, len(def.Regions), def.Len(), open)
			return nil
		},
	}
}
