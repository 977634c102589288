package main

import (
	"errors"
	"fmt"
	"strings"

	"messenger/internal/client"

	"github.com/spf13/cobra"
)

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account",
	RunE:  runRegister,
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and print a session token",
	RunE:  runLogin,
}

func credentials() (string, string, error) {
	u, p := strings.TrimSpace(username), strings.TrimSpace(password)
	if u == "" || p == "" {
		return "", "", errors.New("username and password required")
	}
	return u, p, nil
}

func runRegister(cmd *cobra.Command, args []string) error {
	u, p, err := credentials()
	if err != nil {
		return err
	}
	if err := client.NewAPI(serverURL).Register(cmd.Context(), u, p); err != nil {
		if errors.Is(err, client.ErrUsernameTaken) {
			return fmt.Errorf("username %q already exists", u)
		}
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Registration successful! Please login.")
	return nil
}

func runLogin(cmd *cobra.Command, args []string) error {
	u, p, err := credentials()
	if err != nil {
		return err
	}
	resp, err := client.NewAPI(serverURL).Login(cmd.Context(), u, p)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), resp.Token)
	return nil
}
