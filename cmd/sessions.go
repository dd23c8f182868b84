package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/docforge/internal/model"
	"github.com/sells-group/docforge/internal/review"
	"github.com/sells-group/docforge/internal/store"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect and advance stored sessions",
}

// -- sessions list --

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("local"); err != nil {
			return err
		}
		st, err := store.New(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		stage, _ := cmd.Flags().GetString("stage")
		limit, _ := cmd.Flags().GetInt("limit")
		list, err := st.ListSessions(ctx, store.SessionFilter{Stage: model.Stage(stage), Limit: limit})
		if err != nil {
			return eris.Wrap(err, "sessions list")
		}
		if len(list) == 0 {
			fmt.Fprintln(os.Stderr, "No sessions found.")
			return nil
		}
		formatSessionsList(os.Stdout, list)
		return nil
	},
}

// -- sessions show --

var sessionsShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show a session as JSON or as a review summary",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("local"); err != nil {
			return err
		}
		st, err := store.New(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		sess, err := st.GetSession(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "sessions show")
		}
		if md, _ := cmd.Flags().GetBool("markdown"); md {
			_, err = io.WriteString(os.Stdout, review.Markdown(sess))
			return err
		}
		return writeSession(sess)
	},
}

// -- sessions verify --

var sessionsVerifyCmd = &cobra.Command{
	Use:   "verify <session-id>",
	Short: "Apply edited values and compute derived fields",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initService(ctx, "extract")
		if err != nil {
			return err
		}
		defer env.Close()

		edits := model.Values{}
		if path, _ := cmd.Flags().GetString("values"); path != "" {
			data, err := readDataFile(path)
			if err != nil {
				return err
			}
			edits = model.Values(data)
		}
		sess, err := env.Service.Verify(ctx, args[0], edits)
		if err != nil {
			return eris.Wrap(err, "sessions verify")
		}
		formatOutcomes(os.Stdout, sess.Calculations)
		return nil
	},
}

// -- sessions submit --

var sessionsSubmitCmd = &cobra.Command{
	Use:   "submit <session-id>",
	Short: "Render the documents of a reviewed session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if cfg.Render.URL == "" {
			return eris.New("render.url is required")
		}
		env, err := initService(ctx, "extract")
		if err != nil {
			return err
		}
		defer env.Close()

		sess, err := env.Service.Submit(ctx, args[0])
		if sess != nil {
			formatRenderResults(os.Stdout, sess.Results)
		}
		if err != nil {
			return eris.Wrap(err, "sessions submit")
		}
		return nil
	},
}

// -- sessions renders --

var sessionsRendersCmd = &cobra.Command{
	Use:   "renders <session-id>",
	Short: "List recorded render results of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("local"); err != nil {
			return err
		}
		st, err := store.New(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		records, err := st.ListRenders(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "sessions renders")
		}
		results := make([]model.RenderResult, len(records))
		for i, r := range records {
			results[i] = r.RenderResult
		}
		formatRenderResults(os.Stdout, results)
		return nil
	},
}

// -- sessions delete --

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <session-id>",
	Short: "Discard a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("local"); err != nil {
			return err
		}
		st, err := store.New(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		return eris.Wrap(st.DeleteSession(ctx, args[0]), "sessions delete")
	},
}

func init() {
	sessionsListCmd.Flags().String("stage", "", "filter by stage (input, disambiguation, verification, review, submitted)")
	sessionsListCmd.Flags().Int("limit", 50, "max number of sessions to display")
	sessionsShowCmd.Flags().Bool("markdown", false, "print the review summary instead of JSON")
	sessionsVerifyCmd.Flags().String("values", "", "edited values file (JSON or Hjson)")

	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
	sessionsCmd.AddCommand(sessionsVerifyCmd)
	sessionsCmd.AddCommand(sessionsSubmitCmd)
	sessionsCmd.AddCommand(sessionsRendersCmd)
	sessionsCmd.AddCommand(sessionsDeleteCmd)
	rootCmd.AddCommand(sessionsCmd)
}

// formatSessionsList writes a tabular list of sessions to out.
func formatSessionsList(out io.Writer, list []store.SessionSummary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTAGE\tSET\tUPDATED\tDESCRIPTION")
	for _, s := range list {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			s.ID, s.Stage, s.TemplateSet, s.UpdatedAt.Format(time.RFC3339), shorten(s.Description, 50))
	}
	_ = w.Flush()
}

// formatRenderResults writes one line per rendered document to out.
func formatRenderResults(out io.Writer, results []model.RenderResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "STATUS\tSOURCE\tFILE\tURL / MESSAGE")
	for _, r := range results {
		detail := r.DocURL
		if r.Status != model.RenderSuccess {
			detail = r.Message
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Status, r.Source, r.FileName, detail)
	}
	_ = w.Flush()
}
