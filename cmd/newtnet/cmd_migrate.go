package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/newtron-network/newtnet/pkg/store/sqlstore"
)

func newMigrateCmd() *cobra.Command {
	var dir string
	var status bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := app.settings
			if s.Store.Driver != "postgres" {
				return fmt.Errorf("migrations apply to the postgres store, not %q", s.Store.Driver)
			}
			if dir == "" {
				dir = s.Store.MigrationsDir
			}

			ctx := context.Background()
			st, err := sqlstore.Open(ctx, s.Store.DSN)
			if err != nil {
				return err
			}
			defer st.Close()

			if !status {
				if err := sqlstore.Migrate(ctx, st.DB(), dir); err != nil {
					return err
				}
			}
			version, dirty, err := sqlstore.Version(ctx, st.DB(), dir)
			if err != nil {
				return err
			}
			if dirty {
				fmt.Printf("Schema version %d (dirty)\n", version)
			} else {
				fmt.Printf("Schema version %d\n", version)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "Migrations directory (default from config)")
	cmd.Flags().BoolVar(&status, "status", false, "Print the schema version without migrating")
	return cmd
}
