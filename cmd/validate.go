package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/intakeflow/server/internal/agent/model"
	"github.com/intakeflow/server/internal/clarify"
	errx "github.com/intakeflow/server/internal/core/error"
	"github.com/intakeflow/server/internal/intake"
)

func newValidateCmd(_ *app) *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "validate <intake.json|intake.yaml|->",
		Short: "Validate an intake document and list the clarification questions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readIntake(cmd, args[0])
			if err != nil {
				return err
			}
			res, err := intake.Validate(raw)
			if err != nil {
				return err
			}

			out := model.SupervisorOutput{
				ValidatedIntake:        res.Record,
				ClarificationQuestions: clarify.NewEngine(clarify.DefaultCatalog()).Questions(res.Gaps),
			}
			if err := writeJSON(cmd.OutOrStdout(), out); err != nil {
				return err
			}
			if strict && !res.Complete() {
				return &errx.ValidationGapError{Gaps: intake.Strings(res.Gaps)}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "exit with an error when the intake has gaps")
	return cmd
}

// readIntake decodes the document at path, or stdin for "-".
func readIntake(cmd *cobra.Command, path string) (any, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read intake: %w", err)
	}
	return intake.Decode(data, intake.FormatFromPath(path))
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
