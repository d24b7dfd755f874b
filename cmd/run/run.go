package run

import (
	"github.com/ILikePlayingGames/Hindenburg/config"
	"github.com/ILikePlayingGames/Hindenburg/tools"
	"github.com/spf13/cobra"
)

var (
	configFile = tools.GetenvDefault(config.EnvPrefix+"CONFIG", "config.yaml")
	noConsole  bool

	Cmd = &cobra.Command{
		Use:   "run",
		Short: "Run the hindenburg server",
		Args:  cobra.NoArgs,
	}
)

func init() {
	Cmd.PersistentFlags().StringVarP(&configFile, "config", "c", configFile, "path of config file")
	Cmd.PersistentFlags().BoolVar(&noConsole, "no-console", false, "disable the operator console on stdin")
	Cmd.AddCommand(serverCmd)
}
