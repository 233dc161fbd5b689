package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"tilecache/internal/tilecache/models"
)

func newPurgeCmd(opts *globalOptions) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Remove every tilecache key except consent records",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return fmt.Errorf("refusing to purge without --yes")
			}
			c, closeFn, err := opts.cleaner(cmd, models.IsConsentKey)
			if err != nil {
				return err
			}
			defer closeFn()

			res, err := c.Run(cmd.Context(), models.CleanupOptions{ClearAll: true})
			if err != nil {
				return err
			}
			cmd.Printf("removed %d durable keys and %d cached sections\n", res.DurableRemoved, res.Removed)
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the purge")
	return cmd
}
