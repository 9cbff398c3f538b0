package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"interview-stt-go/internal/export"
)

var exportOpts struct {
	user      string
	interview string
	out       string
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the transcript of an interview to an xlsx workbook",
	RunE:  runExport,
}

func init() {
	f := exportCmd.Flags()
	f.StringVar(&exportOpts.user, "user", "", "owner user id")
	f.StringVar(&exportOpts.interview, "interview", "", "interview id")
	f.StringVarP(&exportOpts.out, "out", "o", "", "output path (default <interview>.xlsx)")
	_ = exportCmd.MarkFlagRequired("user")
	_ = exportCmd.MarkFlagRequired("interview")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	user, err := uuid.Parse(exportOpts.user)
	if err != nil {
		return fmt.Errorf("--user: %w", err)
	}
	id, err := uuid.Parse(exportOpts.interview)
	if err != nil {
		return fmt.Errorf("--interview: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.close()

	iv, err := a.store.GetInterview(ctx, user, id)
	if err != nil {
		return err
	}
	if iv == nil {
		return fmt.Errorf("interview %s not found", id)
	}

	path := exportOpts.out
	if path == "" {
		path = id.String() + ".xlsx"
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := export.Write(f, iv); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
	return nil
}
