package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/intakeflow/server/internal/agent/model"
	"github.com/intakeflow/server/internal/agent/pipeline"
	"github.com/intakeflow/server/internal/clarify"
	"github.com/intakeflow/server/internal/intake"
	logx "github.com/intakeflow/server/pkg/logger"
)

// buildPipeline is replaced in tests to inject a scripted agent capability.
var buildPipeline = pipeline.Build

type runResult struct {
	SessionID string                  `json:"session_id"`
	Stage     model.Stage             `json:"stage"`
	Research  *model.ResearchSummary  `json:"research,omitempty"`
	Reports   *model.GenerationOutput `json:"reports,omitempty"`
	Failure   *model.StageFailure     `json:"failure,omitempty"`
}

func newRunCmd(a *app) *cobra.Command {
	var (
		answers []string
		yes     bool
		keep    bool
	)

	cmd := &cobra.Command{
		Use:   "run <intake.json|intake.yaml>",
		Short: "Run the full pipeline on an intake, asking for missing fields on stdin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			raw, err := readIntake(cmd, args[0])
			if err != nil {
				return err
			}
			preset, err := parseAnswers(answers)
			if err != nil {
				return err
			}

			p, err := buildPipeline(ctx, a.cfg.pipelineConfig())
			if err != nil {
				return err
			}
			defer p.Close()

			st, err := p.Sessions.Start(ctx, raw)
			if err != nil {
				return err
			}
			logx.Info().Str("session_id", st.SessionID).Int("gaps", len(st.Gaps)).Msg("Intake received")

			in := bufio.NewScanner(cmd.InOrStdin())
			out := cmd.ErrOrStderr()
			for st.Stage == model.StageAwaitingClarification {
				q := st.PendingQuestions[0]
				answer, ok := preset[q.FieldPath.String()]
				if ok {
					delete(preset, q.FieldPath.String())
				} else if answer, err = ask(out, in, q); err != nil {
					return err
				}

				next, err := p.Sessions.Answer(ctx, st.SessionID, q.FieldPath, answer)
				if err != nil && next != nil && next.Stage != model.StageFailed {
					fmt.Fprintf(out, "  %v\n", err)
					st = next
					continue
				}
				if err != nil {
					return err
				}
				st = next
			}

			if !yes {
				ok, err := confirm(out, in)
				if err != nil {
					return err
				}
				if !ok {
					_, err := p.Sessions.Confirm(ctx, st.SessionID, model.Approval{Approved: false, Comments: "rejected at the terminal"})
					if err != nil {
						return err
					}
					return errors.New("intake rejected")
				}
			}
			if st, err = p.Sessions.Confirm(ctx, st.SessionID, model.Approval{Approved: true}); err != nil {
				return err
			}

			st, runErr := p.Sessions.Run(ctx, st.SessionID)
			if st == nil {
				return runErr
			}
			res := runResult{SessionID: st.SessionID, Stage: st.Stage, Failure: st.Failure}
			if o, ok := st.AgentOutputs[model.RoleResearch]; ok {
				res.Research = o.Research
			}
			if o, ok := st.AgentOutputs[model.RoleGeneration]; ok {
				res.Reports = o.Generation
			}
			if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
				return err
			}
			if st.Stage.Terminal() && !keep {
				if err := p.Sessions.Clear(ctx, st.SessionID); err != nil {
					logx.Warn().Err(err).Str("session_id", st.SessionID).Msg("failed to clear finished session")
				}
			}
			return runErr
		},
	}

	cmd.Flags().StringArrayVar(&answers, "answer", nil, "pre-supplied answer as FieldPath=value (repeatable)")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "approve the validated intake without asking")
	cmd.Flags().BoolVar(&keep, "keep", false, "keep the finished session and its dialogue in the session store")
	return cmd
}

// parseAnswers reads FieldPath=value pairs.
func parseAnswers(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		key, value, ok := strings.Cut(p, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --answer %q: want FieldPath=value", p)
		}
		path, err := intake.ParsePath(strings.TrimSpace(key))
		if err != nil {
			return nil, fmt.Errorf("invalid --answer %q: %w", p, err)
		}
		out[path.String()] = value
	}
	return out, nil
}

func ask(w io.Writer, in *bufio.Scanner, q clarify.Question) (string, error) {
	fmt.Fprintf(w, "\n%s (%s)\n", q.Prompt, q.FieldPath)
	if q.Rationale != "" {
		fmt.Fprintf(w, "  %s\n", q.Rationale)
	}
	if len(q.Options) > 0 {
		fmt.Fprintf(w, "  options: %s\n", strings.Join(q.Options, ", "))
	}
	fmt.Fprint(w, "> ")
	if !in.Scan() {
		if err := in.Err(); err != nil {
			return "", err
		}
		return "", fmt.Errorf("no answer for %s: input closed", q.FieldPath)
	}
	return in.Text(), nil
}

func confirm(w io.Writer, in *bufio.Scanner) (bool, error) {
	fmt.Fprint(w, "\nIntake is complete. Approve and start research? [y/N] ")
	if !in.Scan() {
		if err := in.Err(); err != nil {
			return false, err
		}
		return false, errors.New("no confirmation: input closed")
	}
	switch strings.ToLower(strings.TrimSpace(in.Text())) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
