package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/docforge/internal/extract"
	"github.com/sells-group/docforge/internal/model"
	"github.com/sells-group/docforge/internal/payload"
	"github.com/sells-group/docforge/internal/recipe"
)

var calcCmd = &cobra.Command{
	Use:   "calc",
	Short: "Compute derived fields of a template set from a values file",
	Long: "Loads the recipes of a template set, computes every _CALCULATED field from the " +
		"values file (JSON or Hjson) and prints the outcomes. With --payload the rendering " +
		"payload is printed instead.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("local"); err != nil {
			return err
		}
		setName, _ := cmd.Flags().GetString("set")
		valuesPath, _ := cmd.Flags().GetString("values")
		showPayload, _ := cmd.Flags().GetBool("payload")

		catalog, cache, err := initRecipes()
		if err != nil {
			return err
		}
		engine, err := initEngine()
		if err != nil {
			return err
		}

		set, ok := catalog.Find(setName)
		if !ok {
			return eris.Wrapf(recipe.ErrNoTemplateSet, "%q", setName)
		}
		recipes, err := cache.LoadAll(catalog.Paths(set))
		if err != nil {
			return eris.Wrap(err, "calc")
		}
		fields, _, err := recipe.Merge(recipes...)
		if err != nil {
			return eris.Wrap(err, "calc")
		}

		data, err := readDataFile(valuesPath)
		if err != nil {
			return err
		}
		values := model.Values(data)
		extract.CoerceLists(values, listFields(cfg.Extract))
		outcomes := engine.Run(fields, values)

		if showPayload {
			batch := payload.Build(values, recipes)
			for _, s := range batch.Skipped {
				fmt.Fprintf(os.Stderr, "skipped %s: %s\n", s.Source, s.Reason)
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(batch.Documents)
		}

		formatOutcomes(os.Stdout, outcomes)
		return nil
	},
}

// formatOutcomes writes one line per derived field to out.
func formatOutcomes(out io.Writer, outcomes []model.CalcOutcome) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "FIELD\tFORMULA\tRESULT")
	for _, o := range outcomes {
		result := fmt.Sprintf("%v", o.Value)
		if o.Error != "" {
			result = o.Error
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", o.Field, o.Formula, result)
	}
	_ = w.Flush()
}

func init() {
	calcCmd.Flags().String("set", "", "template set name")
	calcCmd.Flags().String("values", "", "values file (JSON or Hjson)")
	calcCmd.Flags().Bool("payload", false, "print the rendering payload instead of the outcomes")
	_ = calcCmd.MarkFlagRequired("set")
	_ = calcCmd.MarkFlagRequired("values")
	rootCmd.AddCommand(calcCmd)
}
