package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mcoot/userdata/internal/config"
	"github.com/mcoot/userdata/internal/model"
	"github.com/mcoot/userdata/internal/storage"
)

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "User management commands",
	}

	cmd.AddCommand(newUserAddCmd())
	cmd.AddCommand(newUserUpdateCmd())
	cmd.AddCommand(newUserRemoveCmd())
	cmd.AddCommand(newUserGetCmd())
	cmd.AddCommand(newUserListCmd())

	return cmd
}

func newUserAddCmd() *cobra.Command {
	var fullname, email, password string

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a user; the password is prompted for unless given",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, st storage.Engine, _ *config.Config) error {
				user := model.User{Name: args[0], Fullname: fullname, Email: email}
				if err := st.AddUser(ctx, user, passwordFlag(cmd, password)); err != nil {
					return err
				}
				output(cmd).PrintMessage(fmt.Sprintf("User %s added", args[0]))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&fullname, "fullname", "", "Full name")
	cmd.Flags().StringVar(&email, "email", "", "Email address")
	cmd.Flags().StringVar(&password, "password", "", "Password (prompted when omitted)")

	return cmd
}

func newUserUpdateCmd() *cobra.Command {
	var (
		fullname, email, password string
		changePassword            bool
	)

	cmd := &cobra.Command{
		Use:   "update <name>",
		Short: "Update a user's details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, st storage.Engine, _ *config.Config) error {
				upd := storage.UserUpdate{
					Fullname: optionalString(cmd, "fullname", fullname),
					Email:    optionalString(cmd, "email", email),
				}
				if flagChanged(cmd, "password") {
					upd.Password = &password
				} else if changePassword {
					pw, err := promptPassword(fmt.Sprintf("New password for %s: ", args[0]))
					if err != nil {
						return err
					}
					upd.Password = &pw
				}
				if err := st.UpdateUser(ctx, args[0], upd); err != nil {
					return err
				}
				output(cmd).PrintMessage(fmt.Sprintf("User %s updated", args[0]))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&fullname, "fullname", "", "Full name")
	cmd.Flags().StringVar(&email, "email", "", "Email address")
	cmd.Flags().StringVar(&password, "password", "", "New password")
	cmd.Flags().BoolVar(&changePassword, "change-password", false, "Prompt for a new password")

	return cmd
}

func newUserRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a user with all their games, players and data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, st storage.Engine, _ *config.Config) error {
				if err := st.RemoveUser(ctx, args[0]); err != nil {
					return err
				}
				output(cmd).PrintMessage(fmt.Sprintf("User %s removed", args[0]))
				return nil
			})
		},
	}
}

func newUserGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <name>",
		Short: "Show a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, st storage.Engine, _ *config.Config) error {
				user, err := st.GetUser(ctx, args[0])
				if err != nil {
					return err
				}
				output(cmd).Print(user)
				return nil
			})
		},
	}
}

func newUserListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, st storage.Engine, _ *config.Config) error {
				users, err := st.ListUsers(ctx)
				if err != nil {
					return err
				}
				output(cmd).Print(users)
				return nil
			})
		},
	}
}
