package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/mcoot/userdata/internal/config"
	"github.com/mcoot/userdata/internal/storage"
)

func newContainerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "container",
		Short: "Container commands",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list <user>",
		Short: "List a user's containers with their reference counts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, st storage.Engine, _ *config.Config) error {
				containers, err := st.ListContainers(ctx, args[0])
				if err != nil {
					return err
				}
				output(cmd).Print(containers)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "reconcile <user>",
		Short: "Drop containers whose reference count is not positive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, st storage.Engine, _ *config.Config) error {
				dropped, err := st.ReconcileContainers(ctx, args[0])
				if err != nil {
					return err
				}
				output(cmd).Print(ReconcileResult{User: args[0], Dropped: dropped})
				return nil
			})
		},
	})

	return cmd
}
