package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/scalewob/api/schemas"
	"github.com/xkilldash9x/scalewob/internal/browser"
	"github.com/xkilldash9x/scalewob/internal/config"
	"github.com/xkilldash9x/scalewob/internal/observability"
	"github.com/xkilldash9x/scalewob/pkg/automation"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// plan is a scripted evaluation round.
type plan struct {
	Params map[string]interface{} `yaml:"params"`
	Steps  []planStep             `yaml:"steps"`
}

type planStep struct {
	Action      string        `yaml:"action"`
	X           int           `yaml:"x"`
	Y           int           `yaml:"y"`
	Text        string        `yaml:"text"`
	Direction   string        `yaml:"direction"`
	Delay       time.Duration `yaml:"delay"`
	TypingDelay time.Duration `yaml:"typing_delay"`
	// Distance and Duration are nil when the step omits them, so an explicit
	// zero still reaches the session and is rejected there.
	Distance *int           `yaml:"distance"`
	Duration *time.Duration `yaml:"duration"`
	// Path is where a screenshot step writes its PNG.
	Path string `yaml:"path"`
}

func loadPlan(path string) (*plan, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading plan: %w", err)
	}
	var p plan
	if err := yaml.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("parsing plan %s: %w", path, err)
	}
	if len(p.Steps) == 0 {
		return nil, fmt.Errorf("plan %s has no steps", path)
	}
	return &p, nil
}

func loadParams(path string) (map[string]interface{}, error) {
	if path == "" {
		return nil, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading params: %w", err)
	}
	var params map[string]interface{}
	if err := json.Unmarshal(b, &params); err != nil {
		return nil, fmt.Errorf("params file %s must hold a JSON object: %w", path, err)
	}
	return params, nil
}

func newRunCmd(d *deps) *cobra.Command {
	var planPath, paramsPath string

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Runs one scripted evaluation round against an environment",
		Long: `Starts the environment, runs the steps of a YAML plan inside an
evaluation round, finishes the round with the given parameters and prints the
evaluation result as JSON.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			if err := applySessionFlags(cmd, cfg); err != nil {
				return err
			}
			p, err := loadPlan(planPath)
			if err != nil {
				return err
			}
			params, err := loadParams(paramsPath)
			if err != nil {
				return err
			}
			merged := make(map[string]interface{}, len(p.Params)+len(params))
			for k, v := range p.Params {
				merged[k] = v
			}
			for k, v := range params {
				merged[k] = v
			}

			components, err := initializeSession(ctx, d, cfg, logger)
			if err != nil {
				components.Shutdown()
				return fmt.Errorf("failed to initialize session: %w", err)
			}
			defer components.Shutdown()
			s := components.Session

			logger.Info("Running plan",
				zap.String("session_id", s.ID()),
				zap.String("env_id", s.Options().EnvID),
				zap.Int("steps", len(p.Steps)))

			if err := s.Start(ctx); err != nil {
				return err
			}
			if err := s.StartEvaluation(ctx); err != nil {
				return err
			}
			for i, step := range p.Steps {
				if err := runStep(ctx, d, s, step); err != nil {
					return fmt.Errorf("step %d (%s): %w", i+1, step.Action, err)
				}
			}
			res, err := s.FinishEvaluation(ctx, merged)
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(res, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}

	addSessionFlags(runCmd)
	runCmd.Flags().StringVar(&planPath, "plan", "", "YAML plan of steps to run (required)")
	runCmd.Flags().StringVar(&paramsPath, "params", "", "JSON file of evaluation parameters")
	_ = runCmd.MarkFlagRequired("plan")
	return runCmd
}

// travel fills an omitted direction or distance from the session options.
func (p planStep) travel(o automation.Options) (schemas.Direction, int) {
	dir, dist := schemas.Direction(p.Direction), o.DefaultDistance
	if dir == "" {
		dir = automation.DefaultDirection
	}
	if p.Distance != nil {
		dist = *p.Distance
	}
	return dir, dist
}

func (p planStep) hold(def time.Duration) time.Duration {
	if p.Duration == nil {
		return def
	}
	return *p.Duration
}

func runStep(ctx context.Context, d *deps, s *automation.Session, step planStep) error {
	var err error
	switch schemas.GestureKind(step.Action) {
	case "click", schemas.GestureTap:
		_, err = s.Click(ctx, step.X, step.Y, step.Delay)
	case schemas.GestureType:
		_, err = s.Type(ctx, step.Text, step.TypingDelay)
	case schemas.GestureScroll:
		dir, dist := step.travel(s.Options())
		_, err = s.Scroll(ctx, step.X, step.Y, dir, dist)
	case schemas.GestureDrag:
		dir, dist := step.travel(s.Options())
		_, err = s.Drag(ctx, step.X, step.Y, dir, dist)
	case schemas.GestureLongPress:
		_, err = s.LongPress(ctx, step.X, step.Y, step.hold(s.Options().LongPressDuration))
	case schemas.GestureBack:
		_, err = s.Back(ctx)
	case "wait":
		if d.clock != nil {
			err = d.clock.Sleep(ctx, step.hold(0))
		} else {
			err = browser.Sleep(ctx, step.hold(0))
		}
	case "screenshot":
		if step.Path == "" {
			return fmt.Errorf("screenshot step needs a path")
		}
		var png []byte
		if png, err = s.Screenshot(ctx); err == nil {
			err = os.WriteFile(step.Path, png, 0o644)
		}
	default:
		return fmt.Errorf("unknown action %q", step.Action)
	}
	return err
}

func addSessionFlags(cmd *cobra.Command) {
	cmd.Flags().String("env", "", "environment ID (overrides session.env_id)")
	cmd.Flags().String("platform", "", "mobile or desktop (overrides session.platform)")
	cmd.Flags().String("quality", "", "screenshot quality, low or high (overrides session.quality)")
	cmd.Flags().Bool("headed", false, "show the browser window")
	cmd.Flags().Bool("record-failures", false, "record failed actions in the trajectory")
}

// applySessionFlags lays explicitly set flags over the loaded config.
func applySessionFlags(cmd *cobra.Command, cfg config.Interface) error {
	f := cmd.Flags()
	if f.Changed("env") {
		v, _ := f.GetString("env")
		cfg.SetSessionEnvID(v)
	}
	if f.Changed("platform") {
		v, _ := f.GetString("platform")
		cfg.SetSessionPlatform(v)
	}
	if f.Changed("quality") {
		v, _ := f.GetString("quality")
		switch v {
		case "low", "high":
		default:
			return fmt.Errorf("--quality must be low or high, got %q", v)
		}
		cfg.SetSessionQuality(v)
	}
	if f.Changed("headed") {
		v, _ := f.GetBool("headed")
		cfg.SetBrowserHeadless(!v)
	}
	if f.Changed("record-failures") {
		v, _ := f.GetBool("record-failures")
		cfg.SetSessionRecordFailures(v)
	}
	if cfg.Session().EnvID == "" {
		return fmt.Errorf("an environment is required: pass --env or set session.env_id")
	}
	return nil
}
