package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/UniQw/aiqueue/inference"
	"github.com/spf13/cobra"
)

func newAskCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ask [prompt...]",
		Short: "Send a free-form prompt and print the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := inference.NewClient(a.cfg.InferenceConfig())
			if err != nil {
				return err
			}
			prompt := strings.Join(args, " ")
			a.log.WithField("prompt_tokens", inference.EstimateTokens(prompt)).Debug("sending prompt")

			text, err := client.Generate(cmd.Context(), prompt)
			switch {
			case errors.Is(err, inference.ErrTimeout):
				return fmt.Errorf("%w; the model may still be loading, try again", err)
			case errors.Is(err, inference.ErrConnection):
				return fmt.Errorf("%w; %s", err, startHint)
			case err != nil:
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}
}
