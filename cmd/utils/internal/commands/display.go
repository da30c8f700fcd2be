package commands

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/appetiteclub/kds/internal/display"
	"github.com/appetiteclub/kds/internal/kitchen"
	"github.com/appetiteclub/kds/internal/livesync"
	"github.com/appetiteclub/kds/pkg/logging"
	"github.com/google/uuid"
	"github.com/spf13/pflag"
)

const defaultBaseURL = "http://localhost:8087"

// Watch follows the live feed like a display would and prints the view
// after every change.
func Watch(ctx context.Context, args []string, out io.Writer, logger logging.Logger) error {
	fs := pflag.NewFlagSet("watch", pflag.ContinueOnError)
	baseURL := fs.String("url", defaultBaseURL, "kitchen service URL")
	role := fs.String("role", string(livesync.RoleExpo), "display role (expo, admin, station, server)")
	station := fs.String("station", "", "station ID for station displays")
	table := fs.String("table", "", "single table ID")
	tableList := fs.String("tables", "", "comma separated table IDs for server displays")
	if err := fs.Parse(args); err != nil {
		return err
	}

	filter := livesync.Filter{Role: livesync.Role(*role)}
	if *station != "" {
		id, err := uuid.Parse(*station)
		if err != nil {
			return fmt.Errorf("invalid station ID: %w", err)
		}
		filter.StationID = &id
	}
	if *table != "" {
		id, err := uuid.Parse(*table)
		if err != nil {
			return fmt.Errorf("invalid table ID: %w", err)
		}
		filter.TableID = &id
	}
	tables, err := display.ParseTables(*tableList)
	if err != nil {
		return err
	}
	filter.Tables = tables

	client, err := display.NewHTTPClient(*baseURL, nil)
	if err != nil {
		return err
	}
	view := display.NewView()
	changes := make(chan struct{}, 1)
	view.OnChange(func() {
		select {
		case changes <- struct{}{}:
		default:
		}
	})

	session := display.NewSession(display.SessionDeps{
		Dialer: display.NewSSEDialer(*baseURL, nil),
		Loader: client,
		View:   view,
		Filter: filter,
		Logger: logger,
	})

	done := make(chan error, 1)
	go func() { done <- session.Run(ctx) }()

	for {
		select {
		case err := <-done:
			if ctx.Err() != nil {
				return nil
			}
			return err
		case <-changes:
			printView(out, view)
		}
	}
}

func printView(out io.Writer, view *display.View) {
	fmt.Fprintf(out, "--- %s\n", time.Now().Format("15:04:05"))
	for _, g := range view.Groups() {
		fmt.Fprintf(out, "table %s [%s] priority=%d overdue=%t\n", tableName(g.Label, g.TableID), g.OverallStatus, g.MaxPriority, g.HasOverdueEntry)
		for _, s := range g.Seats {
			fmt.Fprintf(out, "  seat %s: %d entries\n", s.Label, len(s.Entries))
		}
	}
	for _, e := range view.Entries() {
		fmt.Fprintf(out, "%s %-8s %-10s %s %s\n", e.ID, e.State(), e.StationName, tableName(e.TableLabel, e.TableID), itemNames(e.Items))
	}
}

func tableName(label string, id uuid.UUID) string {
	if label != "" {
		return label
	}
	return id.String()[:8]
}

func itemNames(items []kitchen.LineItem) string {
	names := make([]string, len(items))
	for i, it := range items {
		names[i] = fmt.Sprintf("%dx %s", it.Quantity, it.Name)
	}
	return strings.Join(names, ", ")
}

// Act sends one display command: start, complete, recall or bump an
// entry, or bump-table a table.
func Act(ctx context.Context, args []string, out io.Writer, logger logging.Logger) error {
	fs := pflag.NewFlagSet("act", pflag.ContinueOnError)
	baseURL := fs.String("url", defaultBaseURL, "kitchen service URL")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return fmt.Errorf("usage: act <start|complete|recall|bump|bump-table> <id>")
	}
	id, err := uuid.Parse(fs.Arg(1))
	if err != nil {
		return fmt.Errorf("invalid ID: %w", err)
	}

	client, err := display.NewHTTPClient(*baseURL, nil)
	if err != nil {
		return err
	}
	view := display.NewView()

	var cmd display.Command
	switch display.Intent(fs.Arg(0)) {
	case display.IntentBumpTable:
		entries, err := client.TableEntries(ctx, id)
		if err != nil {
			return err
		}
		view.Confirm(entries...)
		cmd = display.BumpTable(id)
	case display.IntentStart, display.IntentComplete, display.IntentRecall, display.IntentBump:
		e, err := client.Entry(ctx, id)
		if err != nil {
			return err
		}
		view.Confirm(*e)
		cmd = display.Command{Intent: display.Intent(fs.Arg(0)), EntryID: id}
	default:
		return fmt.Errorf("unknown action %q", fs.Arg(0))
	}

	result, err := display.NewOptimistic(view, client, display.OptimisticOptions{Logger: logger}).Execute(ctx, cmd)
	if err != nil {
		return err
	}
	for _, e := range result {
		fmt.Fprintf(out, "%s %s v%d\n", e.ID, e.State(), e.Version)
	}
	return nil
}
