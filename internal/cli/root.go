// Package cli implements the aiqueue command line.
package cli

import (
	"io"

	"github.com/UniQw/aiqueue"
	"github.com/UniQw/aiqueue/config"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// app holds state shared by every subcommand of one invocation.
type app struct {
	cfgPath string
	cfg     *config.Config
	log     *logrus.Logger
	closeFn func() error
}

// NewRootCommand builds the aiqueue command tree.
func NewRootCommand() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "aiqueue",
		Short:         "Generate bug-bounty reports for scanner findings with a local model.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd.ErrOrStderr())
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.closeFn != nil {
				return a.closeFn()
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&a.cfgPath, "config", "", "Path to config file (default ./config.yaml or $HOME/.aiqueue/config.yaml)")

	root.AddCommand(
		newProbeCommand(a),
		newAskCommand(a),
		newAnalyzeCommand(a),
		newReportsCommand(a),
	)
	return root
}

func (a *app) init(stderr io.Writer) error {
	if a.cfg != nil {
		return nil
	}
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return err
	}
	l, closeFn, err := newLogger(cfg.Logger, stderr)
	if err != nil {
		return err
	}
	a.cfg, a.log, a.closeFn = cfg, l, closeFn
	return nil
}

func (a *app) logger() aiqueue.Logger { return aiqueue.NewLogrusLogger(a.log) }

func (a *app) redisClient() (*redis.Client, error) {
	if !a.cfg.Redis.Enabled() {
		return nil, errRedisDisabled
	}
	return redis.NewClient(a.cfg.Redis.Options()), nil
}
