package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mcoot/userdata/internal/config"
	"github.com/mcoot/userdata/internal/model"
	"github.com/mcoot/userdata/internal/storage"
)

func newGameCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "game",
		Short: "Game registration commands",
	}

	cmd.AddCommand(newGameAddCmd())
	cmd.AddCommand(newGameUpdateCmd())
	cmd.AddCommand(newGameRemoveCmd())
	cmd.AddCommand(newGameGetCmd())
	cmd.AddCommand(newGameListCmd())

	return cmd
}

func newGameAddCmd() *cobra.Command {
	var (
		fullname, password string
		containers         []string
	)

	cmd := &cobra.Command{
		Use:   "add <user> <name>",
		Short: "Register a game; its first container defaults to the game name",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, st storage.Engine, _ *config.Config) error {
				game := model.Game{User: args[0], Name: args[1], Fullname: fullname, Containers: containers}
				if err := st.AddGame(ctx, game, passwordFlag(cmd, password)); err != nil {
					return err
				}
				output(cmd).PrintMessage(fmt.Sprintf("Game %s/%s added", args[0], args[1]))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&fullname, "fullname", "", "Display name")
	cmd.Flags().StringVar(&password, "password", "", "Game password (prompted when omitted)")
	cmd.Flags().StringSliceVar(&containers, "containers", nil, "Containers, the game's own first")

	return cmd
}

func newGameUpdateCmd() *cobra.Command {
	var (
		fullname, password string
		containers         []string
		changePassword     bool
		keepOrphans        bool
	)

	cmd := &cobra.Command{
		Use:   "update <user> <name>",
		Short: "Update a game",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, st storage.Engine, _ *config.Config) error {
				upd := storage.GameUpdate{Fullname: optionalString(cmd, "fullname", fullname)}
				if flagChanged(cmd, "containers") {
					upd.Containers = containers
				}
				if flagChanged(cmd, "password") {
					upd.Password = &password
				} else if changePassword {
					pw, err := promptPassword(fmt.Sprintf("New password for game %s/%s: ", args[0], args[1]))
					if err != nil {
						return err
					}
					upd.Password = &pw
				}
				if err := st.UpdateGame(ctx, args[0], args[1], upd, !keepOrphans); err != nil {
					return err
				}
				output(cmd).PrintMessage(fmt.Sprintf("Game %s/%s updated", args[0], args[1]))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&fullname, "fullname", "", "Display name")
	cmd.Flags().StringVar(&password, "password", "", "New password")
	cmd.Flags().BoolVar(&changePassword, "change-password", false, "Prompt for a new password")
	cmd.Flags().StringSliceVar(&containers, "containers", nil, "Replace the container list")
	cmd.Flags().BoolVar(&keepOrphans, "keep-orphans", false, "Keep containers no longer referenced")

	return cmd
}

func newGameRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <user> <name>",
		Short: "Remove a game and its managed players",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, st storage.Engine, _ *config.Config) error {
				if err := st.RemoveGame(ctx, args[0], args[1]); err != nil {
					return err
				}
				output(cmd).PrintMessage(fmt.Sprintf("Game %s/%s removed", args[0], args[1]))
				return nil
			})
		},
	}
}

func newGameGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <user> <name>",
		Short: "Show a game",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, st storage.Engine, _ *config.Config) error {
				game, err := st.GetGame(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				output(cmd).Print(game)
				return nil
			})
		},
	}
}

func newGameListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <user>",
		Short: "List a user's games",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, st storage.Engine, _ *config.Config) error {
				games, err := st.ListGames(ctx, args[0])
				if err != nil {
					return err
				}
				output(cmd).Print(games)
				return nil
			})
		},
	}
}
