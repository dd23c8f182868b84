package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/docforge/internal/model"
	"github.com/sells-group/docforge/internal/recipe"
)

var recipesCmd = &cobra.Command{
	Use:   "recipes",
	Short: "Inspect template sets and their recipes",
}

var recipesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List template sets of the catalog",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("local"); err != nil {
			return err
		}
		catalog, _, err := initRecipes()
		if err != nil {
			return err
		}
		formatCatalog(os.Stdout, catalog)
		return nil
	},
}

var recipesShowCmd = &cobra.Command{
	Use:   "show <set>",
	Short: "Show the merged fields of a template set",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("local"); err != nil {
			return err
		}
		catalog, cache, err := initRecipes()
		if err != nil {
			return err
		}
		set, ok := catalog.Find(args[0])
		if !ok {
			return eris.Wrapf(recipe.ErrNoTemplateSet, "%q", args[0])
		}
		recipes, err := cache.LoadAll(catalog.Paths(set))
		if err != nil {
			return eris.Wrap(err, "recipes show")
		}
		fields, examples, err := recipe.Merge(recipes...)
		if err != nil {
			return eris.Wrap(err, "recipes show")
		}

		formatRecipes(os.Stdout, recipes)
		fmt.Fprintln(os.Stdout)
		formatFields(os.Stdout, fields, examples)
		return nil
	},
}

func formatCatalog(out io.Writer, c *recipe.Catalog) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SET\tBUDGET\tKEYWORD\tDEFAULT\tTEMPLATES")
	for _, s := range c.Sets {
		side := "< threshold"
		if s.Large {
			side = ">= threshold"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%d\n", s.Name, side, s.Keyword, s.Default, len(s.Templates))
	}
	_ = w.Flush()
	_, _ = fmt.Fprintf(out, "\nthreshold: %.0f\n", c.Threshold)
}

// formatRecipes lists each recipe with its target and own fields.
func formatRecipes(out io.Writer, recipes []*model.Recipe) {
	for _, r := range recipes {
		_, _ = fmt.Fprintf(out, "%s -> %v\n  %s\n", r.Source, r.TargetID, shorten(strings.Join(r.FieldNames(), ", "), 100))
	}
}

func formatFields(out io.Writer, fields *model.FieldSet, examples *model.ExampleSet) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "FIELD\tKIND\tDETAIL\tEXAMPLE")
	for _, f := range fields.Fields {
		detail := f.Instruction
		if f.IsDerived() {
			detail = f.Formula
		} else if f.Default != nil {
			detail = fmt.Sprintf("default %v", f.Default)
		}
		var example string
		if e, ok := examples.Get(f.Name); ok {
			example = strings.TrimSpace(string(e.Value))
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", f.Name, f.Kind, shorten(detail, 60), shorten(example, 40))
	}
	_ = w.Flush()
}

func shorten(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func init() {
	recipesCmd.AddCommand(recipesListCmd)
	recipesCmd.AddCommand(recipesShowCmd)
	rootCmd.AddCommand(recipesCmd)
}
