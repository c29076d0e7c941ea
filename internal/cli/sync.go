package cli

import (
	"github.com/spf13/cobra"

	"order-feed-sync/internal/app"
)

var syncOpts app.SyncOptions

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run a one-shot feed sync pass",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().SyncOnce(cmd.Context(), syncOpts)
	},
}

func init() {
	syncCmd.Flags().StringVar(&syncOpts.Side, "side", "listings", "Feed side to sync (listings|offers)")
	syncCmd.Flags().StringVar(&syncOpts.Contract, "contract", "", "Restrict the sync to one contract address")
	syncCmd.Flags().StringVar(&syncOpts.Slug, "slug", "", "Sync a single collection by slug instead of walking the feed")
	syncCmd.Flags().IntVar(&syncOpts.MaxItems, "max", 0, "Stop after this many records (0 = no cap)")
}
