package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/mahirjain10/convertkit/config"
	"github.com/mahirjain10/convertkit/internal/logging"
)

// state is shared by the commands of one root command.
type state struct {
	cfgFile string
	cfg     *config.Config
	logger  *slog.Logger
}

func Execute() error {
	return NewRootCmd().Execute()
}

func NewRootCmd() *cobra.Command {
	st := &state{}

	rootCmd := &cobra.Command{
		Use:          "convertkit",
		Short:        "Image conversion and JWT inspection tools",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return st.initConfig()
		},
	}
	rootCmd.PersistentFlags().StringVar(&st.cfgFile, "config", "", "YAML config file (optional)")

	rootCmd.AddCommand(newConvertCmd(st))
	rootCmd.AddCommand(newTokenCmd(st))
	rootCmd.AddCommand(newWorkerCmd(st))
	return rootCmd
}

func (st *state) initConfig() error {
	bootLogger := logging.New(config.Default().Log)
	config.InitializeEnvs(bootLogger)

	cfg, err := config.Load(st.cfgFile)
	if err != nil {
		return err
	}
	st.cfg = cfg
	st.logger = logging.New(cfg.Log)
	return nil
}
