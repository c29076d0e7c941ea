package cli

import (
	"github.com/spf13/cobra"
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Run one offer-probing cycle over the stored probe set",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Probe(cmd.Context())
	},
}
