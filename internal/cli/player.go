package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mcoot/userdata/internal/config"
	"github.com/mcoot/userdata/internal/model"
	"github.com/mcoot/userdata/internal/storage"
)

func newPlayerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "player",
		Short: "Remote player commands",
	}

	cmd.AddCommand(newPlayerAddCmd())
	cmd.AddCommand(newPlayerUpdateCmd())
	cmd.AddCommand(newPlayerRemoveCmd())
	cmd.AddCommand(newPlayerListCmd())
	cmd.AddCommand(newPlayerDefaultCmd())

	return cmd
}

func newPlayerAddCmd() *cobra.Command {
	var (
		fullname, language string
		containers         []string
		isDefault          bool
	)

	cmd := &cobra.Command{
		Use:   "add <user> <url> <name>",
		Short: "Add a remote player of a user at a game url",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, st storage.Engine, _ *config.Config) error {
				player := model.RemotePlayer{
					User:       args[0],
					URL:        args[1],
					Name:       args[2],
					Fullname:   fullname,
					Language:   language,
					Containers: containers,
					IsDefault:  isDefault,
				}
				if err := st.AddRemotePlayer(ctx, player); err != nil {
					return err
				}
				output(cmd).PrintMessage(fmt.Sprintf("Player %s added at %s", args[2], args[1]))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&fullname, "fullname", "", "Display name")
	cmd.Flags().StringVar(&language, "language", "", "Preferred language")
	cmd.Flags().StringSliceVar(&containers, "containers", nil, "Containers, the player's own first")
	cmd.Flags().BoolVar(&isDefault, "default", false, "Make this the default player at the url")

	return cmd
}

func newPlayerUpdateCmd() *cobra.Command {
	var (
		fullname, language string
		containers         []string
		isDefault          bool
		keepOrphans        bool
	)

	cmd := &cobra.Command{
		Use:   "update <user> <url> <name>",
		Short: "Update a remote player",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, st storage.Engine, _ *config.Config) error {
				upd := storage.PlayerUpdate{
					Fullname: optionalString(cmd, "fullname", fullname),
					Language: optionalString(cmd, "language", language),
				}
				if flagChanged(cmd, "default") {
					upd.IsDefault = &isDefault
				}
				if flagChanged(cmd, "containers") {
					upd.Containers = containers
				}
				if err := st.UpdateRemotePlayer(ctx, args[0], args[1], args[2], upd, !keepOrphans); err != nil {
					return err
				}
				output(cmd).PrintMessage(fmt.Sprintf("Player %s updated", args[2]))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&fullname, "fullname", "", "Display name")
	cmd.Flags().StringVar(&language, "language", "", "Preferred language")
	cmd.Flags().StringSliceVar(&containers, "containers", nil, "Replace the container list")
	cmd.Flags().BoolVar(&isDefault, "default", false, "Set or clear the default flag")
	cmd.Flags().BoolVar(&keepOrphans, "keep-orphans", false, "Keep containers no longer referenced")

	return cmd
}

func newPlayerRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <user> <url> <name>",
		Short: "Remove a remote player",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, st storage.Engine, _ *config.Config) error {
				if err := st.RemoveRemotePlayer(ctx, args[0], args[1], args[2]); err != nil {
					return err
				}
				output(cmd).PrintMessage(fmt.Sprintf("Player %s removed", args[2]))
				return nil
			})
		},
	}
}

func newPlayerListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <user> [url]",
		Short: "List a user's remote players, at one url or everywhere",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			url := ""
			if len(args) == 2 {
				url = args[1]
			}
			return withStore(cmd, func(ctx context.Context, st storage.Engine, _ *config.Config) error {
				players, err := st.ListRemotePlayers(ctx, args[0], url)
				if err != nil {
					return err
				}
				output(cmd).Print(players)
				return nil
			})
		},
	}
}

func newPlayerDefaultCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "default <user> <url>",
		Short: "Show the player used at url when none is named",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, st storage.Engine, _ *config.Config) error {
				player, err := st.DefaultRemotePlayer(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				output(cmd).Print(player)
				return nil
			})
		},
	}
}
