package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"slack-calendar/internal/adapters/exporter"
	"slack-calendar/internal/calendar"
	"slack-calendar/internal/domain"
	"slack-calendar/internal/ports"
)

type eventsOptions struct {
	channel string
	from    string
	limit   int
	format  string
	output  string
}

func newEventsCmd(getApp func() *app) *cobra.Command {
	opts := &eventsOptions{}
	cmd := &cobra.Command{
		Use:   "events",
		Short: "List upcoming events as a table, iCalendar feed or spreadsheet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := getApp()

			filter := domain.EventFilter{Channel: opts.channel, From: a.clock.Now(), Limit: opts.limit}
			if opts.from != "" {
				from, err := time.Parse(domain.DateLayout, opts.from)
				if err != nil {
					return fmt.Errorf("--from must be YYYY-MM-DD: %w", err)
				}
				filter.From = from
			}

			var exp ports.Exporter
			switch opts.format {
			case "table":
				exp = exporter.NewConsoleExporter()
			case "ics":
				exp = calendar.NewICSExporter(calendar.WithClock(a.clock), calendar.WithLogger(a.log))
			case "xlsx":
				if opts.output == "" {
					return fmt.Errorf("--output is required for xlsx")
				}
				exp = exporter.NewXLSXExporter()
			default:
				return fmt.Errorf("unknown format %q", opts.format)
			}

			events, err := a.store.UpcomingEvents(cmd.Context(), filter)
			if err != nil {
				return err
			}

			var w io.Writer = cmd.OutOrStdout()
			if opts.output != "" {
				f, err := os.Create(opts.output)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			if err := exp.Export(w, events); err != nil {
				return fmt.Errorf("export events: %w", err)
			}
			if opts.output != "" {
				a.log.Info("Events exported", "path", opts.output, "count", len(events))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.channel, "channel", "", "only events from this channel")
	cmd.Flags().StringVar(&opts.from, "from", "", "first date, YYYY-MM-DD (default today)")
	cmd.Flags().IntVar(&opts.limit, "limit", 50, "maximum number of events")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "table", "output format: table, ics, xlsx")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "write to file instead of stdout")
	return cmd
}
