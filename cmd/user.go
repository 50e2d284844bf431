/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tasklist/apiserver/config"
	"github.com/tasklist/apiserver/internal/logging"
	"github.com/tasklist/apiserver/internal/server"
	"github.com/tasklist/apiserver/internal/services"
	"golang.org/x/term"
)

// readPassword is swapped out in tests.
var (
	readPassword = term.ReadPassword
	isTerminal   = term.IsTerminal
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage user accounts",
}

var userCreateFlags struct {
	username string
	name     string
	email    string
}

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Register a new account",
	Long: `Registers a new account with the same rules as POST /auth/register.
The password is read from the terminal without echo, or from the first line
of stdin when stdin is not a terminal.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		log := logging.New(cfg.LogLevel, cfg.LogFormat)

		password, err := promptPassword(cmd.InOrStdin(), cmd.ErrOrStderr())
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}

		app, err := server.NewApp(cmd.Context(), cfg, log)
		if err != nil {
			return err
		}
		defer func() {
			_ = app.Close()
		}()

		user, err := app.Auth.Register(cmd.Context(), services.RegisterInput{
			Username: userCreateFlags.username,
			Name:     userCreateFlags.name,
			Password: password,
			Email:    userCreateFlags.email,
		})
		if err != nil {
			return errors.New(services.MessageOf(err))
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created new user with ID: %d\n", user.ID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userCreateCmd)

	flags := userCreateCmd.Flags()
	flags.StringVar(&userCreateFlags.username, "username", "", "login name (required)")
	flags.StringVar(&userCreateFlags.name, "name", "", "display name (required)")
	flags.StringVar(&userCreateFlags.email, "email", "", "contact email (required)")
	_ = userCreateCmd.MarkFlagRequired("username")
	_ = userCreateCmd.MarkFlagRequired("name")
	_ = userCreateCmd.MarkFlagRequired("email")
}

func promptPassword(in io.Reader, out io.Writer) (string, error) {
	if f, ok := in.(*os.File); ok && isTerminal(int(f.Fd())) {
		fmt.Fprint(out, "Enter password: ")
		pw, err := readPassword(int(f.Fd()))
		fmt.Fprintln(out)
		if err != nil {
			return "", err
		}
		return string(pw), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
