package repos

import "github.com/spf13/cobra"

const (
	defaultPlanFile       = "repos.list"
	legacyPlanFile        = "repos-to-clone.list"
	defaultPipelineScript = "run.sh"
	formatUsage           = "output format: text or table"
	noHeadersUsage        = "when using table format, do not print headers"
)

func addPlanFileFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("file", "f", "", "plan file path (default: "+defaultPlanFile+", falling back to "+legacyPlanFile+")")
}

func addFormatFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("format", "o", "text", formatUsage)
}

func addNoHeadersFlag(cmd *cobra.Command) {
	cmd.Flags().Bool("no-headers", false, noHeadersUsage)
}
