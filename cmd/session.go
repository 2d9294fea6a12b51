package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/intakeflow/server/internal/agent/model"
)

func newSessionCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage persisted pipeline sessions",
	}
	cmd.AddCommand(newSessionClearCmd(a))
	return cmd
}

func newSessionClearCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear <session-id>...",
		Short: "Discard sessions with their state snapshot and recorded dialogue",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p, err := buildPipeline(ctx, a.cfg.pipelineConfig())
			if err != nil {
				return err
			}
			defer p.Close()

			for _, id := range args {
				if err := p.Sessions.Clear(ctx, id); err != nil {
					if errors.Is(err, model.ErrSessionNotFound) {
						return fmt.Errorf("session %s not found", id)
					}
					return err
				}
				if _, err := fmt.Fprintf(cmd.OutOrStdout(), "cleared %s\n", id); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
