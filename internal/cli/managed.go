package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mcoot/userdata/internal/config"
	"github.com/mcoot/userdata/internal/model"
	"github.com/mcoot/userdata/internal/storage"
)

func newManagedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "managed",
		Short: "Managed player commands",
	}

	cmd.AddCommand(newManagedAddCmd())
	cmd.AddCommand(newManagedUpdateCmd())
	cmd.AddCommand(newManagedRemoveCmd())
	cmd.AddCommand(newManagedListCmd())

	return cmd
}

func newManagedAddCmd() *cobra.Command {
	var fullname, email, language, password string

	cmd := &cobra.Command{
		Use:   "add <user> <game> <name>",
		Short: "Add a player account owned by a game",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, st storage.Engine, _ *config.Config) error {
				player := model.ManagedPlayer{
					User:     args[0],
					Game:     args[1],
					Name:     args[2],
					Fullname: fullname,
					Email:    email,
					Language: language,
				}
				if err := st.AddManagedPlayer(ctx, player, passwordFlag(cmd, password)); err != nil {
					return err
				}
				output(cmd).PrintMessage(fmt.Sprintf("Managed player %s added to %s/%s", args[2], args[0], args[1]))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&fullname, "fullname", "", "Display name")
	cmd.Flags().StringVar(&email, "email", "", "Email address")
	cmd.Flags().StringVar(&language, "language", "", "Preferred language")
	cmd.Flags().StringVar(&password, "password", "", "Password (prompted when omitted)")

	return cmd
}

func newManagedUpdateCmd() *cobra.Command {
	var (
		fullname, email, language, password string
		changePassword                      bool
	)

	cmd := &cobra.Command{
		Use:   "update <user> <game> <name>",
		Short: "Update a managed player",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, st storage.Engine, _ *config.Config) error {
				upd := storage.ManagedUpdate{
					Fullname: optionalString(cmd, "fullname", fullname),
					Email:    optionalString(cmd, "email", email),
					Language: optionalString(cmd, "language", language),
				}
				if flagChanged(cmd, "password") {
					upd.Password = &password
				} else if changePassword {
					pw, err := promptPassword(fmt.Sprintf("New password for %s: ", args[2]))
					if err != nil {
						return err
					}
					upd.Password = &pw
				}
				if err := st.UpdateManagedPlayer(ctx, args[0], args[1], args[2], upd); err != nil {
					return err
				}
				output(cmd).PrintMessage(fmt.Sprintf("Managed player %s updated", args[2]))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&fullname, "fullname", "", "Display name")
	cmd.Flags().StringVar(&email, "email", "", "Email address")
	cmd.Flags().StringVar(&language, "language", "", "Preferred language")
	cmd.Flags().StringVar(&password, "password", "", "New password")
	cmd.Flags().BoolVar(&changePassword, "change-password", false, "Prompt for a new password")

	return cmd
}

func newManagedRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <user> <game> <name>",
		Short: "Remove a managed player and its tables",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, st storage.Engine, _ *config.Config) error {
				if err := st.RemoveManagedPlayer(ctx, args[0], args[1], args[2]); err != nil {
					return err
				}
				output(cmd).PrintMessage(fmt.Sprintf("Managed player %s removed", args[2]))
				return nil
			})
		},
	}
}

func newManagedListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <user> <game>",
		Short: "List the managed players of a game",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, st storage.Engine, _ *config.Config) error {
				players, err := st.ListManagedPlayers(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				output(cmd).Print(players)
				return nil
			})
		},
	}
}
