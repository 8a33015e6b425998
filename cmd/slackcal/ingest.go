package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"slack-calendar/internal/adapters/source"
	"slack-calendar/internal/domain"
	"slack-calendar/internal/server/usecase"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// runAndPrint выполняет конвейер и печатает отчет даже при ошибке.
func runAndPrint(cmd *cobra.Command, a *app, req usecase.Request) error {
	report, err := a.ingest.Run(cmd.Context(), req)
	if perr := printJSON(cmd.OutOrStdout(), report); perr != nil {
		return perr
	}
	if err != nil {
		return fmt.Errorf("ingestion failed at %s: %w", report.FailedAt, err)
	}
	return nil
}

func newIngestCmd(getApp func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <archive.zip>",
		Short: "Ingest a local Slack export archive (events are appended)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAndPrint(cmd, getApp(), usecase.Request{Flow: domain.FlowFile, ArchivePath: args[0]})
		},
	}
}

func newScanCmd(getApp func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "scan [dir]",
		Short: "Ingest the newest archive in the scan directory, replacing all events",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := usecase.Request{Flow: domain.FlowScan}
			if len(args) == 1 {
				req.ScanDir = args[0]
			}
			return runAndPrint(cmd, getApp(), req)
		},
	}
}

func newAnalyzeCmd(getApp func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <archive.zip>",
		Short: "Summarize an archive in memory without storing anything",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := getApp()
			src := source.NewFileSource(args[0], a.cfg.MaxUploadBytes())
			summary, err := a.ingest.Analyze(cmd.Context(), src)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), summary)
		},
	}
}
