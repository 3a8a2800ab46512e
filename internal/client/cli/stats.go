package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iudanet/pidash/pkg/api"
)

func (c *Cli) newStatsCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show the current system sample",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := c.requireSession(ctx); err != nil {
				return err
			}

			stats, err := c.app.Stats(ctx)
			if err != nil {
				return fmt.Errorf("failed to fetch stats: %w", err)
			}

			if asJSON {
				return c.writeJSON(stats)
			}
			c.io.Printf("%s", formatStats(*stats))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print raw JSON")

	return cmd
}

func (c *Cli) newHistoryCmd() *cobra.Command {
	var (
		rng    string
		limit  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show stored samples",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			switch rng {
			case api.RangeRaw, api.RangeDay, api.RangeWeek:
			default:
				return fmt.Errorf("invalid range %q (want raw, day or week)", rng)
			}

			ctx := cmd.Context()
			if err := c.requireSession(ctx); err != nil {
				return err
			}

			history, err := c.app.History(ctx, rng)
			if err != nil {
				return fmt.Errorf("failed to fetch history: %w", err)
			}

			if asJSON {
				return c.writeJSON(history)
			}

			points := history.Points
			c.io.Printf("Range %s: %d points\n", history.Range, len(points))
			if limit > 0 && len(points) > limit {
				points = points[len(points)-limit:]
			}
			for _, p := range points {
				c.io.Println(formatHistoryPoint(p))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&rng, "range", "r", api.RangeDay, "raw, day or week")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "print at most n most recent points (0 = all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print raw JSON")

	return cmd
}

func (c *Cli) writeJSON(v any) error {
	enc := json.NewEncoder(c.io)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
