package cli

import (
	"github.com/spf13/cobra"
)

var collectionsCmd = &cobra.Command{
	Use:   "collections",
	Short: "Manage the collection probe set",
}

var collectionsRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Rebuild the probe set from the collection ranking source",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().RefreshCollections(cmd.Context())
	},
}

func init() {
	collectionsCmd.AddCommand(collectionsRefreshCmd)
}
