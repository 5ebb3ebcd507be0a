package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalewob/api/schemas"
	"github.com/xkilldash9x/scalewob/internal/config"
	"github.com/xkilldash9x/scalewob/internal/observability"
)

// loadTrajectory accepts a bare entry list or any object carrying one under
// "trajectory", such as a persisted evaluation record.
func loadTrajectory(path string) ([]schemas.TrajectoryEntry, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading trajectory: %w", err)
	}
	b = bytes.TrimSpace(b)
	var entries []schemas.TrajectoryEntry
	if len(b) > 0 && b[0] == '[' {
		err = json.Unmarshal(b, &entries)
	} else {
		var wrapped struct {
			Trajectory []schemas.TrajectoryEntry `json:"trajectory"`
		}
		err = json.Unmarshal(b, &wrapped)
		entries = wrapped.Trajectory
	}
	if err != nil {
		return nil, fmt.Errorf("parsing trajectory %s: %w", path, err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("trajectory %s is empty", path)
	}
	return entries, nil
}

func newReplayCmd(d *deps) *cobra.Command {
	var (
		trajectoryPath string
		runID          string
		finish         bool
		paramsPath     string
	)

	replayCmd := &cobra.Command{
		Use:   "replay",
		Short: "Re-issues a recorded trajectory against an environment",
		Long: `Replays a trajectory from a file or from a persisted evaluation run. Points
are read in viewport space, so a trajectory recorded at one screenshot quality
replays the same page actions at another.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			if (trajectoryPath == "") == (runID == "") {
				return fmt.Errorf("exactly one of --trajectory or --run-id is required")
			}
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			// A stored run names its environment.
			var entries []schemas.TrajectoryEntry
			if runID != "" {
				rec, err := loadRun(ctx, d, cfg, runID)
				if err != nil {
					return err
				}
				entries = rec.Trajectory
				if !cmd.Flags().Changed("env") {
					cfg.SetSessionEnvID(rec.EnvID)
				}
			} else if entries, err = loadTrajectory(trajectoryPath); err != nil {
				return err
			}
			if err := applySessionFlags(cmd, cfg); err != nil {
				return err
			}
			params, err := loadParams(paramsPath)
			if err != nil {
				return err
			}

			components, err := initializeSession(ctx, d, cfg, logger)
			if err != nil {
				components.Shutdown()
				return fmt.Errorf("failed to initialize session: %w", err)
			}
			defer components.Shutdown()
			s := components.Session

			if err := s.Start(ctx); err != nil {
				return err
			}
			if err := s.StartEvaluation(ctx); err != nil {
				return err
			}
			replayed, err := s.Replay(ctx, entries)
			logger.Info("Replayed trajectory",
				zap.Int("entries", len(entries)),
				zap.Int("replayed", len(replayed)))
			if err != nil {
				return fmt.Errorf("replay stopped after %d action(s): %w", len(replayed), err)
			}

			out := cmd.OutOrStdout()
			if !finish {
				fmt.Fprintf(out, "Replayed %d action(s).\n", len(replayed))
				return nil
			}
			res, err := s.FinishEvaluation(ctx, params)
			if err != nil {
				return err
			}
			b, err := json.MarshalIndent(res, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(b))
			return nil
		},
	}

	addSessionFlags(replayCmd)
	replayCmd.Flags().StringVar(&trajectoryPath, "trajectory", "", "JSON trajectory file")
	replayCmd.Flags().StringVar(&runID, "run-id", "", "replay a run persisted in the results database")
	replayCmd.Flags().BoolVar(&finish, "finish", false, "finish the evaluation round after replaying and print the result")
	replayCmd.Flags().StringVar(&paramsPath, "params", "", "JSON file of evaluation parameters, used with --finish")
	return replayCmd
}

func loadRun(ctx context.Context, d *deps, cfg config.Interface, runID string) (*schemas.EvaluationRecord, error) {
	st, closeStore, err := d.stores.Create(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open results store: %w", err)
	}
	if closeStore != nil {
		defer closeStore()
	}
	rec, err := st.GetEvaluation(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", runID, err)
	}
	return rec, nil
}
