package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"recflow/internal/registry"
	"recflow/internal/taskdef"
)

func newListTasksCommand(ctx *commandContext) *cobra.Command {
	var showOverrides bool
	var verbose bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list-tasks",
		Short: "List available tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			disc := ctx.newRegistry(cfg, logger).Discover(cmd.Context())
			if asJSON {
				return writeJSON(cmd, newDiscoveryView(disc))
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			if len(disc.Valid) == 0 {
				fmt.Fprintln(out, "No tasks available")
			} else {
				fmt.Fprintln(out, renderTaskTable(disc.Valid, verbose))
			}
			fmt.Fprintf(out, "Workspace: %s\n", cfg.Paths.WorkspaceDir)

			if showOverrides {
				fmt.Fprintln(out)
				if len(disc.Overrides) == 0 {
					fmt.Fprintln(out, "No workspace overrides")
				} else {
					rows := make([][]string, 0, len(disc.Overrides))
					for _, o := range disc.Overrides {
						rows = append(rows, []string{o.Name, o.WorkspaceSource, o.BuiltinSource})
					}
					fmt.Fprintln(out, renderTable([]string{"Task", "Workspace", "Shadows"}, rows, nil))
				}
			}

			if verbose {
				if len(disc.Skipped) > 0 {
					fmt.Fprintln(out)
					rows := make([][]string, 0, len(disc.Skipped))
					for _, s := range disc.Skipped {
						rows = append(rows, []string{s.Source, string(s.Origin), s.Reason})
					}
					fmt.Fprintln(out, renderTable([]string{"Skipped", "Origin", "Reason"}, rows, nil))
				}
				if len(disc.Invalid) > 0 {
					fmt.Fprintln(out)
					rows := make([][]string, 0, len(disc.Invalid))
					for _, inv := range disc.Invalid {
						rows = append(rows, []string{inv.Source, string(inv.Origin), paint(inv.Message(), statusError, colorize)})
					}
					fmt.Fprintln(out, renderTable([]string{"Invalid", "Origin", "Error"}, rows, nil))
				}
			} else if n := len(disc.Invalid); n > 0 {
				fmt.Fprintln(out, paint(fmt.Sprintf("%d task file(s) failed to load; run with --verbose for details", n), statusWarn, colorize))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showOverrides, "overrides", false, "Show workspace tasks that shadow built-in tasks")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show stage sequences, skipped and invalid task files")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print discovery results as JSON")
	return cmd
}

func renderTaskTable(defs []*taskdef.Definition, verbose bool) string {
	headers := []string{"Task", "Origin", "Description"}
	if verbose {
		headers = append(headers, "Stages")
	}
	rows := make([][]string, 0, len(defs))
	for _, def := range defs {
		row := []string{def.Name, string(def.Origin), def.Description}
		if verbose {
			row = append(row, strings.Join(def.StageNames(), " > "))
		}
		rows = append(rows, row)
	}
	return renderTable(headers, rows, nil)
}

type taskView struct {
	Name        string   `json:"name"`
	Origin      string   `json:"origin"`
	Source      string   `json:"source"`
	Description string   `json:"description,omitempty"`
	Stages      []string `json:"stages"`
}

type problemView struct {
	Source string `json:"source"`
	Origin string `json:"origin"`
	Detail string `json:"detail"`
}

type overrideView struct {
	Name            string `json:"name"`
	WorkspaceSource string `json:"workspace_source"`
	BuiltinSource   string `json:"builtin_source"`
}

type discoveryView struct {
	Tasks     []taskView          `json:"tasks"`
	Overrides []overrideView      `json:"overrides,omitempty"`
	Skipped   []problemView       `json:"skipped,omitempty"`
	Invalid   []problemView       `json:"invalid,omitempty"`
}

func newDiscoveryView(disc registry.Discovery) discoveryView {
	view := discoveryView{
		Tasks: make([]taskView, 0, len(disc.Valid)),
	}
	for _, o := range disc.Overrides {
		view.Overrides = append(view.Overrides, overrideView(o))
	}
	for _, def := range disc.Valid {
		view.Tasks = append(view.Tasks, taskView{
			Name:        def.Name,
			Origin:      string(def.Origin),
			Source:      def.Source,
			Description: def.Description,
			Stages:      def.StageNames(),
		})
	}
	for _, s := range disc.Skipped {
		view.Skipped = append(view.Skipped, problemView{Source: s.Source, Origin: string(s.Origin), Detail: s.Reason})
	}
	for _, inv := range disc.Invalid {
		view.Invalid = append(view.Invalid, problemView{Source: inv.Source, Origin: string(inv.Origin), Detail: inv.Message()})
	}
	return view
}
