package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/docforge/internal/model"
	"github.com/sells-group/docforge/internal/pipeline"
	"github.com/sells-group/docforge/internal/upload"
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Open a session from a request description and print the extracted fields",
	Long: "Runs budget analysis, spreadsheet matching and field extraction for a description. " +
		"When the spreadsheet has candidate rows the session stops at disambiguation; " +
		"rerun with --session and --title to continue.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initService(ctx, "extract")
		if err != nil {
			return err
		}
		defer env.Close()

		sessionID, _ := cmd.Flags().GetString("session")
		title, _ := cmd.Flags().GetString("title")

		var sess *model.Session
		if sessionID != "" {
			sess, err = env.Service.Confirm(ctx, sessionID, title)
		} else {
			req, rerr := extractRequest(cmd)
			if rerr != nil {
				return rerr
			}
			sess, err = env.Service.Start(ctx, req)
		}
		if err != nil {
			if sess != nil {
				_ = writeSession(sess)
			}
			return eris.Wrap(err, "extract")
		}

		if sess.Stage == model.StageDisambiguation {
			fmt.Fprintf(os.Stderr, "Session %s matches spreadsheet rows:\n", sess.ID)
			for i, m := range sess.Matches {
				fmt.Fprintf(os.Stderr, "  %d. %s\n", i+1, m)
			}
			fmt.Fprintln(os.Stderr, "Continue with --session <id> --title <title> (empty title for none).")
		}
		return writeSession(sess)
	},
}

func extractRequest(cmd *cobra.Command) (pipeline.StartRequest, error) {
	desc, _ := cmd.Flags().GetString("description")
	set, _ := cmd.Flags().GetString("set")
	files, _ := cmd.Flags().GetStringSlice("file")

	req := pipeline.StartRequest{Description: desc, TemplateSet: set}
	if cmd.Flags().Changed("budget") {
		b, _ := cmd.Flags().GetFloat64("budget")
		req.Budget = &b
	}

	uploads := make([]upload.File, 0, len(files))
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return req, eris.Wrapf(err, "read %s", path)
		}
		uploads = append(uploads, upload.File{Name: filepath.Base(path), Data: data})
	}
	req.Sources, req.UploadErrors = upload.NewReader(cfg.OCR).ReadAll(cmd.Context(), uploads)
	return req, nil
}

func writeSession(sess *model.Session) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(sess)
}

func init() {
	extractCmd.Flags().String("description", "", "free-text procurement request")
	extractCmd.Flags().StringSlice("file", nil, "supporting document (pdf, txt, md, csv, html); repeatable")
	extractCmd.Flags().Float64("budget", 0, "budget in rupiah; skips budget analysis")
	extractCmd.Flags().String("set", "", "template set name; skips catalog selection")
	extractCmd.Flags().String("session", "", "continue a session waiting for disambiguation")
	extractCmd.Flags().String("title", "", "spreadsheet row title chosen for --session")
	rootCmd.AddCommand(extractCmd)
}
