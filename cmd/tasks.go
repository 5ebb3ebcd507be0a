package cmd

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/scalewob/api/schemas"
	"github.com/xkilldash9x/scalewob/internal/observability"
	"github.com/xkilldash9x/scalewob/internal/registry"
)

func newTasksCmd(d *deps) *cobra.Command {
	var (
		difficulty string
		platform   string
		tags       []string
		refresh    bool
		format     string
	)

	tasksCmd := &cobra.Command{
		Use:   "tasks",
		Short: "Lists the tasks in the environment registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			var p schemas.Platform
			if platform != "" {
				if p, err = schemas.ParsePlatform(platform); err != nil {
					return err
				}
			}
			switch format {
			case "table", "json":
			default:
				return fmt.Errorf("--format must be table or json, got %q", format)
			}

			reg, err := registry.New(cfg.Registry(), registry.WithLogger(logger))
			if err != nil {
				return err
			}
			defer reg.Close()

			tasks, err := reg.List(ctx, registry.Filter{
				Difficulty:   difficulty,
				Platform:     p,
				Tags:         tags,
				ForceRefresh: refresh,
			})
			if err != nil {
				return err
			}

			if format == "json" {
				if tasks == nil {
					tasks = []schemas.TaskDescriptor{}
				}
				out, err := json.MarshalIndent(tasks, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
				return nil
			}
			return writeTaskTable(cmd.OutOrStdout(), tasks)
		},
	}

	tasksCmd.Flags().StringVar(&difficulty, "difficulty", "", "only tasks of this difficulty")
	tasksCmd.Flags().StringVar(&platform, "platform", "", "only tasks for mobile or desktop")
	tasksCmd.Flags().StringSliceVar(&tags, "tag", nil, "only tasks with this tag; glob patterns allowed, repeatable")
	tasksCmd.Flags().BoolVar(&refresh, "refresh", false, "bypass every registry cache")
	tasksCmd.Flags().StringVarP(&format, "format", "f", "table", "output format: table or json")
	return tasksCmd
}

func writeTaskTable(out io.Writer, tasks []schemas.TaskDescriptor) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tENV\tDIFFICULTY\tPLATFORM\tTAGS\tNAME")
	for _, t := range tasks {
		p := string(t.Platform)
		if p == "" {
			p = "any"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", t.ID, t.EnvID, dash(t.Difficulty), p, dash(strings.Join(t.Tags, ",")), t.Name)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "\n%d task(s)\n", len(tasks))
	return nil
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
