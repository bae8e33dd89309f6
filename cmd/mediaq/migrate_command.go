package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newMigrateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and print the schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			appCtx, err := ctx.ensureApp(cmd.Context())
			if err != nil {
				return err
			}
			reporter, ok := appCtx.Store.(migrationReporter)
			if !ok {
				return fmt.Errorf("store driver %s does not report migrations", appCtx.Config.Store.Driver)
			}
			version, dirty, err := reporter.MigrationVersion()
			if err != nil {
				return err
			}
			state := "clean"
			if dirty {
				state = "dirty"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s schema at version %d (%s)\n", appCtx.Config.Store.Driver, version, state)
			return nil
		},
	}
}
