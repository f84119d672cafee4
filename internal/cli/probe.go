package cli

import (
	"fmt"

	"github.com/UniQw/aiqueue/inference"
	"github.com/spf13/cobra"
)

func newProbeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Check that the inference server answers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := inference.NewClient(a.cfg.InferenceConfig())
			if err != nil {
				return err
			}
			cfg := client.Config()
			if !client.IsAvailable(cmd.Context()) {
				return fmt.Errorf("inference server at %s is not available; %s", cfg.Endpoint, startHint)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok endpoint=%s model=%s\n", cfg.Endpoint, cfg.Model)
			return nil
		},
	}
}
