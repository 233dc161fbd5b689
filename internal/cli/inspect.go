package cli

import (
	"sort"
	"time"

	"github.com/spf13/cobra"

	"tilecache/internal/tilecache/models"
	"tilecache/internal/tilecache/service"
)

func newInspectCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "Summarise stored preferences and cached sections",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, closeFn, err := opts.cleaner(cmd, nil)
			if err != nil {
				return err
			}
			defer closeFn()
			return runInspect(cmd, c, time.Now())
		},
	}
}

func runInspect(cmd *cobra.Command, c *service.Cleaner, now time.Time) error {
	ctx := cmd.Context()
	keys, err := c.Tiers.Durable.Keys(ctx)
	if err != nil {
		return err
	}
	var namespaced, consent int
	for _, k := range keys {
		if !models.IsNamespaced(k) {
			continue
		}
		namespaced++
		if models.IsConsentKey(k) {
			consent++
		}
	}
	cmd.Printf("durable keys: %d (consent records: %d)\n", namespaced, consent)

	if c.Tiers.Ephemeral == nil {
		cmd.Println("ephemeral: no session selected")
		return nil
	}
	entries := c.Entries(ctx)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Stamp > entries[j].Stamp })
	cmd.Printf("ephemeral entries: %d\n", len(entries))
	for _, e := range entries {
		if !e.Valid {
			cmd.Printf("  %s  age=unknown\n", e.Key)
			continue
		}
		cmd.Printf("  %s  age=%ds\n", e.Key, now.Unix()-e.Stamp)
	}
	return nil
}
