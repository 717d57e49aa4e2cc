package cli

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/rshade/towercollector/internal/config"
	"github.com/rshade/towercollector/internal/measurement"
	"github.com/rshade/towercollector/internal/store"
)

// backlogStats is what the stats command prints.
type backlogStats struct {
	Pending    int
	Statistics measurement.Statistics
	Discovered int
	Oldest     time.Time
	Newest     time.Time
	Schema     string
}

// NewStatsCmd creates the stats command.
func NewStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show statistics of the local measurement database",
		Example: `  # Show how much is waiting to be uploaded
  towercollector stats`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			st, err := openStore(ctx, config.GetGlobalConfig().Store)
			if err != nil {
				return err
			}
			defer func() {
				if closeErr := st.Close(); closeErr != nil {
					logger.Warn().Err(closeErr).Msg("closing measurement store")
				}
			}()

			stats, err := collectStats(cmd, st)
			if err != nil {
				return err
			}
			renderStats(cmd.OutOrStdout(), stats)
			return nil
		},
	}
}

func collectStats(cmd *cobra.Command, st *store.Store) (backlogStats, error) {
	ctx := cmd.Context()
	var (
		out backlogStats
		err error
	)
	if out.Pending, err = st.Count(ctx); err != nil {
		return out, err
	}
	if out.Statistics, err = st.Stats(ctx); err != nil {
		return out, err
	}
	if out.Discovered, err = st.DiscoveredCells(ctx); err != nil {
		return out, err
	}
	if v, verErr := st.SchemaVersion(ctx); verErr == nil {
		out.Schema = v.String()
	}

	first, err := st.First(ctx)
	if errors.Is(err, store.ErrEmpty) {
		return out, nil
	}
	if err != nil {
		return out, err
	}
	last, err := st.Last(ctx)
	if err != nil {
		return out, err
	}
	out.Oldest, out.Newest = first.MeasuredAt, last.MeasuredAt
	return out, nil
}

func renderStats(w io.Writer, s backlogStats) {
	p := message.NewPrinter(language.English)
	_, _ = p.Fprintf(w, "Pending measurements: %d\n", s.Pending)
	_, _ = p.Fprintf(w, "Locations:            %d\n", s.Statistics.Locations)
	_, _ = p.Fprintf(w, "Cells:                %d\n", s.Statistics.Cells)
	_, _ = p.Fprintf(w, "Days:                 %d\n", s.Statistics.Days)
	_, _ = p.Fprintf(w, "Discovered cells:     %d\n", s.Discovered)
	if !s.Oldest.IsZero() {
		_, _ = fmt.Fprintf(w, "Oldest measurement:   %s\n", s.Oldest.Format(time.RFC3339))
		_, _ = fmt.Fprintf(w, "Newest measurement:   %s\n", s.Newest.Format(time.RFC3339))
	}
	if s.Schema != "" {
		_, _ = fmt.Fprintf(w, "Schema version:       %s\n", s.Schema)
	}
}
