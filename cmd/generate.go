package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/docforge/internal/resilience"
	"github.com/sells-group/docforge/pkg/templated"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Render image templates from manual input or a data file",
	Long: "Lists the account's templates, lets you pick them by number and renders each " +
		"(template, data set) pair. A data file may hold one object, or a \"documents\" " +
		"list whose entries are merged over \"sharedData\".",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("generate"); err != nil {
			return err
		}
		client := templated.NewClient(cfg.Templated.Key,
			templated.WithBaseURL(cfg.Templated.BaseURL),
			templated.WithRetry(resilience.FromConfig(cfg.Retry)),
			templated.WithBreaker(resilience.BreakerFromConfig("templated", cfg.Retry)),
		)

		opts := generateOptions{
			Delay:     time.Duration(cfg.Templated.DelayMS) * time.Millisecond,
			OutputDir: cfg.Templated.OutputDir,
		}
		opts.DataFile, _ = cmd.Flags().GetString("data")
		opts.Format, _ = cmd.Flags().GetString("format")
		opts.Download = true
		if nd, _ := cmd.Flags().GetBool("no-download"); nd {
			opts.Download = false
		}
		if dir, _ := cmd.Flags().GetString("output-dir"); dir != "" {
			opts.OutputDir = dir
		}

		results, err := runGenerate(cmd.Context(), client, opts, os.Stdin, os.Stdout)
		for _, r := range results {
			if r.Err != nil {
				fmt.Fprintf(os.Stdout, "FAILED  %s #%d: %v\n", r.Template, r.Set, r.Err)
				continue
			}
			fmt.Fprintf(os.Stdout, "OK      %s #%d: %s\n", r.Template, r.Set, firstNonEmpty(r.Path, r.URL))
		}
		return err
	},
}

type generateOptions struct {
	DataFile  string
	Format    string
	OutputDir string
	Delay     time.Duration
	Download  bool
}

// generateResult is the outcome of one (template, data set) render.
type generateResult struct {
	Template string
	Set      int
	URL      string
	Path     string
	Err      error
}

// runGenerate drives the interactive flow. Failed renders are reported in
// the results and do not stop the remaining pairs.
func runGenerate(ctx context.Context, client templated.Client, opts generateOptions, in io.Reader, out io.Writer) ([]generateResult, error) {
	scanner := bufio.NewScanner(in)

	templates, err := client.Templates(ctx)
	if err != nil {
		return nil, err
	}
	if len(templates) == 0 {
		return nil, eris.New("generate: account has no templates")
	}
	chosen, err := pickTemplates(scanner, out, templates)
	if err != nil {
		return nil, err
	}

	layers := make(map[string][]templated.Layer, len(chosen))
	for _, t := range chosen {
		l, err := client.Layers(ctx, t.ID)
		if err != nil {
			return nil, err
		}
		layers[t.ID] = l
	}

	var sets []map[string]any
	if opts.DataFile != "" {
		sets, err = loadDataSets(opts.DataFile)
		if err != nil {
			return nil, err
		}
	} else {
		set, err := promptData(scanner, out, chosen, layers)
		if err != nil {
			return nil, err
		}
		sets = []map[string]any{set}
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.Delay > 0 {
		limiter = rate.NewLimiter(rate.Every(opts.Delay), 1)
	}

	var results []generateResult
	for _, t := range chosen {
		for i, data := range sets {
			if err := limiter.Wait(ctx); err != nil {
				return results, eris.Wrap(err, "generate")
			}
			res := generateResult{Template: t.Name, Set: i + 1}
			resp, err := client.Render(ctx, templated.RenderRequest{
				Template: t.ID,
				Layers:   templated.BuildLayers(layers[t.ID], data),
				Format:   opts.Format,
			})
			if err != nil {
				res.Err = err
				zap.L().Warn("generate: render failed", zap.String("template", t.ID), zap.Int("set", i+1), zap.Error(err))
				results = append(results, res)
				continue
			}
			res.URL = resp.URL
			if opts.Download && resp.URL != "" {
				name := outputName(t, i+1, len(sets), resp.URL, opts.Format)
				res.Path, res.Err = client.Download(ctx, resp.URL, opts.OutputDir, name)
			}
			results = append(results, res)
		}
	}
	return results, nil
}

var listSep = regexp.MustCompile(`[,\s]+`)

// pickTemplates prints the numbered template list and reads a selection such
// as "1, 3" or "all".
func pickTemplates(scanner *bufio.Scanner, out io.Writer, templates []templated.Template) ([]templated.Template, error) {
	for i, t := range templates {
		_, _ = fmt.Fprintf(out, "%3d. %s (%s)\n", i+1, t.Name, t.ShortID())
	}
	_, _ = fmt.Fprint(out, "Templates to render (numbers or \"all\"): ")
	if !scanner.Scan() {
		return nil, eris.New("generate: no template selection")
	}
	answer := strings.TrimSpace(scanner.Text())
	if strings.EqualFold(answer, "all") {
		return templates, nil
	}

	seen := make(map[int]bool)
	var chosen []templated.Template
	for _, tok := range listSep.Split(answer, -1) {
		if tok == "" {
			continue
		}
		n, err := strconv.Atoi(tok)
		if err != nil || n < 1 || n > len(templates) {
			return nil, eris.Errorf("generate: invalid template number %q", tok)
		}
		if !seen[n] {
			seen[n] = true
			chosen = append(chosen, templates[n-1])
		}
	}
	if len(chosen) == 0 {
		return nil, eris.New("generate: no template selected")
	}
	return chosen, nil
}

// promptData asks for one value per fillable layer across the chosen
// templates. Layers shared by several templates are asked once.
func promptData(scanner *bufio.Scanner, out io.Writer, chosen []templated.Template, layers map[string][]templated.Layer) (map[string]any, error) {
	kinds := make(map[string]string)
	for _, t := range chosen {
		for _, l := range layers[t.ID] {
			if l.Fillable() {
				if _, ok := kinds[l.Layer]; !ok {
					kinds[l.Layer] = l.Type
				}
			}
		}
	}
	names := make([]string, 0, len(kinds))
	for n := range kinds {
		names = append(names, n)
	}
	sort.Strings(names)

	data := make(map[string]any, len(names))
	for _, n := range names {
		label := n
		if kinds[n] == templated.LayerImage {
			label += " (image URL)"
		}
		_, _ = fmt.Fprintf(out, "%s: ", label)
		if !scanner.Scan() {
			break
		}
		if v := strings.TrimSpace(scanner.Text()); v != "" {
			data[n] = v
		}
	}
	return data, scanner.Err()
}

// loadDataSets reads a data file. A "documents" list yields one set per
// entry with "sharedData" merged underneath; otherwise the whole object is
// the only set.
func loadDataSets(path string) ([]map[string]any, error) {
	raw, err := readDataFile(path)
	if err != nil {
		return nil, err
	}
	docs, ok := raw["documents"].([]any)
	if !ok {
		return []map[string]any{raw}, nil
	}
	shared, _ := raw["sharedData"].(map[string]any)

	sets := make([]map[string]any, 0, len(docs))
	for i, d := range docs {
		doc, ok := d.(map[string]any)
		if !ok {
			return nil, eris.Errorf("generate: documents[%d] is not an object", i)
		}
		set := make(map[string]any, len(shared)+len(doc))
		for k, v := range shared {
			set[k] = v
		}
		for k, v := range doc {
			set[k] = v
		}
		sets = append(sets, set)
	}
	return sets, nil
}

// outputName builds the download file name from the template name, the set
// number when there are several sets, and the rendered file's extension.
func outputName(t templated.Template, set, total int, fileURL, format string) string {
	ext := strings.TrimPrefix(path.Ext(strings.SplitN(fileURL, "?", 2)[0]), ".")
	if ext == "" {
		ext = format
	}
	if ext == "" {
		ext = "jpg"
	}
	base := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, strings.TrimSpace(t.Name))
	if base == "" {
		base = t.ShortID()
	}
	if total > 1 {
		return fmt.Sprintf("%s_%d.%s", base, set, ext)
	}
	return base + "." + ext
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func init() {
	generateCmd.Flags().String("data", "", "data file (JSON or Hjson); prompts for values when empty")
	generateCmd.Flags().String("format", "jpg", "output format (jpg, png, pdf)")
	generateCmd.Flags().String("output-dir", "", "download directory (default from config)")
	generateCmd.Flags().Bool("no-download", false, "only print the rendered file URLs")
	rootCmd.AddCommand(generateCmd)
}
