/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/tasklist/apiserver/config"
	"github.com/tasklist/apiserver/internal/services"
	"github.com/tasklist/apiserver/internal/storage"
)

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Read archived snapshots of deleted accounts",
}

var archiveShowCmd = &cobra.Command{
	Use:   "show <user-id>",
	Short: "Print the archived profile of a deleted account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || id < 1 {
			return fmt.Errorf("invalid user id %q", args[0])
		}

		cfg, err := config.LoadSection[config.ArchiveConfig]()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		archive, err := storage.Open(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		if archive == nil {
			return errors.New("ARCHIVE_BACKEND is not configured")
		}
		defer func() {
			_ = archive.Close()
		}()

		rc, err := archive.Get(cmd.Context(), services.ArchiveKey(id))
		if errors.Is(err, storage.ErrObjectNotFound) {
			return fmt.Errorf("no archived account with id %d", id)
		}
		if err != nil {
			return err
		}
		defer rc.Close()

		if _, err := io.Copy(cmd.OutOrStdout(), rc); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(archiveCmd)
	archiveCmd.AddCommand(archiveShowCmd)
}
