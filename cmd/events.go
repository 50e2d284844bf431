/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/tasklist/apiserver/config"
	"github.com/tasklist/apiserver/internal/mq"
	"github.com/tasklist/apiserver/types"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect account lifecycle events",
}

var eventsTailCmd = &cobra.Command{
	Use:       "tail <type>",
	Short:     "Print account events as they are published",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{types.AccountRegistered, types.AccountDeleted},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadSection[config.MQConfig]()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		queue, err := mq.Open(ctx, cfg)
		if err != nil {
			return err
		}
		if queue == nil {
			return errors.New("MQ_BACKEND is not configured")
		}
		defer func() {
			_ = queue.Close()
		}()

		out := cmd.OutOrStdout()
		err = queue.Tail(ctx, args[0], func(_ context.Context, msg mq.Message) error {
			_, err := fmt.Fprintln(out, string(msg.Data))
			return err
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsTailCmd)
}
