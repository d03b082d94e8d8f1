package cli

import (
	"github.com/dl-alexandre/drivesync/internal/config"
	syncengine "github.com/dl-alexandre/drivesync/internal/sync"
	"github.com/dl-alexandre/drivesync/internal/utils"
	"github.com/spf13/cobra"
)

var shareCmd = &cobra.Command{
	Use:   "share <destination> <email>",
	Short: "Grant writer access on a destination folder",
	Long: `Resolve (creating when needed) the Drive folder at <destination> and grant
<email> writer access to it. Nothing is uploaded. An existing writer or owner
grant is left untouched.`,
	Args: cobra.ExactArgs(2),
	RunE: runShare,
}

func init() {
	rootCmd.AddCommand(shareCmd)
}

func runShare(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(flags.OutputFormat, flags.Quiet)

	if appConfig.AuthMode == config.AuthModePersonalAccount {
		return out.Fail("share", utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument,
			"share is only available in service_account mode").Build()))
	}

	req := syncengine.Request{
		DestinationPath: args[0],
		DryRun:          flags.DryRun,
		ShareEmail:      args[1],
	}
	return runEngine(cmd.Context(), "share", out, flags, req)
}
