package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"tilecache/internal/tilecache/models"
)

func newCleanupCmd(opts *globalOptions) *cobra.Command {
	var cleanup models.CleanupOptions
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Evict stale and over-capacity sections from a session",
		Long:  "Runs the same bounded cleanup a tile click triggers: sections older than --max-age-minutes go first, then the oldest beyond --keep.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.session == "" {
				return fmt.Errorf("cleanup needs --session")
			}
			c, closeFn, err := opts.cleaner(cmd, nil)
			if err != nil {
				return err
			}
			defer closeFn()

			res, err := c.Run(cmd.Context(), cleanup)
			if err != nil {
				return err
			}
			cmd.Printf("removed %d, remaining %d\n", res.Removed, res.Remaining)
			return nil
		},
	}
	cmd.Flags().IntVar(&cleanup.MaxAgeMinutes, "max-age-minutes", 30, "evict sections older than this; 0 evicts all")
	cmd.Flags().IntVar(&cleanup.MaxItemsToKeep, "keep", 10, "sections to keep after the age pass")
	return cmd
}
