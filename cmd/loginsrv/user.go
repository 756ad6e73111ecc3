package main

import (
	"fmt"

	login "github.com/goliatone/go-login"
	"github.com/goliatone/go-print"
	"github.com/spf13/cobra"
)

func newUserCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "User management commands",
	}

	cmd.AddCommand(newUserAddCmd(root))

	return cmd
}

func newUserAddCmd(root *rootOptions) *cobra.Command {
	var (
		msg       login.RegisterUserMessage
		useHashid bool
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a user with a password",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), root.configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			handler := login.NewRegisterUserHandler(a.repo, a.creds)
			handler.UseHashid = useHashid

			user, err := handler.Execute(cmd.Context(), msg)
			if err != nil {
				return err
			}

			fmt.Println(print.MaybePrettyJSON(user))
			return nil
		},
	}

	cmd.Flags().StringVar(&msg.Username, "username", "", "Username (required)")
	cmd.Flags().StringVar(&msg.Email, "email", "", "Mail address (required)")
	cmd.Flags().StringVar(&msg.Password, "password", "", "Password (required)")
	cmd.Flags().StringVar(&msg.Language, "language", "", "Preferred language id")
	cmd.Flags().BoolVar(&useHashid, "hashid", false, "Derive the user id from the username")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")

	return cmd
}
