package main

import (
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/leeforge/strata/container"
	"github.com/leeforge/strata/utils"
)

type typeSummary struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

func newListCommand(global *globalOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list [type]",
		Short: "List entry types, or the entry names available for a type",
		Example: `  strata list
  strata list fixture --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApplication(cmd.Context(), global, func(app *application) error {
				out := cmd.OutOrStdout()
				if len(args) == 1 {
					names := app.Container().AvailableForType(args[0])
					if asJSON {
						return utils.PrintJson(out, names)
					}
					rows := make([][]string, 0, len(names))
					for _, name := range names {
						rows = append(rows, []string{name, container.NewSpecifier(args[0], name).String()})
					}
					utils.PrintTable(out, []string{"NAME", "SPECIFIER"}, rows)
					return nil
				}

				summaries := summarizeTypes(app)
				if asJSON {
					return utils.PrintJson(out, summaries)
				}
				rows := make([][]string, 0, len(summaries))
				for _, s := range summaries {
					rows = append(rows, []string{s.Type, strconv.Itoa(s.Count)})
				}
				utils.PrintTable(out, []string{"TYPE", "ENTRIES"}, rows)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, jsonFlag, false, "print JSON instead of a table")
	return cmd
}

// summarizeTypes collects the types registered on the container and the
// types found under the application root, sorted by name.
func summarizeTypes(app *application) []typeSummary {
	types := map[string]struct{}{}
	for _, r := range app.Container().Resolvers() {
		sr, ok := r.(*container.SourceResolver)
		if !ok {
			continue
		}
		for _, spec := range sr.Registry().Specifiers() {
			types[spec.Type] = struct{}{}
		}
	}
	for _, typ := range app.source.Types() {
		types[typ] = struct{}{}
	}

	summaries := make([]typeSummary, 0, len(types))
	for typ := range types {
		summaries = append(summaries, typeSummary{
			Type:  typ,
			Count: len(app.Container().AvailableForType(typ)),
		})
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Type < summaries[j].Type })
	return summaries
}
