package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"sidekick/internal/engine"
	"sidekick/internal/trigger"
	"sidekick/pkg/types"
)

type completeOptions struct {
	line      int
	character int
	explicit  bool
	wait      time.Duration
	asJSON    bool
}

func newCompleteCmd(root *rootOptions) *cobra.Command {
	o := &completeOptions{}
	cmd := &cobra.Command{
		Use:   "complete [file]",
		Short: "Complete one document (file or stdin) and print the suggestion",
		Example: "  sidekickd complete main.go --line 12 --character 8\n" +
			"  echo 'int fact(int n) {' | sidekickd complete --explicit",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			text, path, err := readDocument(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			log, err := root.newLogger(cfg.LogLevel, os.Stderr)
			if err != nil {
				return err
			}
			rt := newRuntime(cfg, log)
			ctx := cmd.Context()
			if err := rt.engine.Start(ctx); err != nil {
				return err
			}
			defer func() {
				shCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				_ = rt.engine.Shutdown(shCtx)
			}()

			waitCtx, cancel := context.WithTimeout(ctx, o.wait)
			if _, err := rt.manager.EnsureReady(waitCtx); err != nil {
				log.Warn().Err(err).Msg("backend not ready; using fallback heuristics")
			}
			cancel()

			doc := o.document(text, path)
			kind := trigger.Automatic
			if o.explicit {
				kind = trigger.Explicit
			}
			res := rt.engine.Suggest(ctx, doc, kind)
			return writeResult(cmd.OutOrStdout(), res, o.asJSON)
		},
	}
	f := cmd.Flags()
	f.IntVar(&o.line, "line", -1, "Zero-based cursor line (default: last line)")
	f.IntVar(&o.character, "character", -1, "Zero-based cursor column (default: end of line)")
	f.BoolVar(&o.explicit, "explicit", false, "Treat the request as user invoked (bypasses suppression)")
	f.DurationVar(&o.wait, "wait", 30*time.Second, "How long to wait for the backend before falling back")
	f.BoolVar(&o.asJSON, "json", false, "Print the full result as JSON")
	return cmd
}

func readDocument(stdin io.Reader, args []string) (text, path string, err error) {
	if len(args) == 1 && args[0] != "-" {
		b, err := os.ReadFile(args[0])
		if err != nil {
			return "", "", err
		}
		return string(b), args[0], nil
	}
	b, err := io.ReadAll(stdin)
	if err != nil {
		return "", "", fmt.Errorf("read stdin: %w", err)
	}
	return string(b), "", nil
}

// document places the cursor, defaulting to the end of the text. A single
// trailing newline is not counted as an extra line.
func (o *completeOptions) document(text, path string) engine.Document {
	text = strings.TrimSuffix(text, "\n")
	lines := strings.Split(text, "\n")
	line := o.line
	if line < 0 || line >= len(lines) {
		line = len(lines) - 1
	}
	ch := o.character
	if n := utf8.RuneCountInString(lines[line]); ch < 0 || ch > n {
		ch = n
	}
	return engine.Document{Path: path, Text: text, Line: line, Character: ch}
}

func writeResult(w io.Writer, res engine.Result, asJSON bool) error {
	if !asJSON {
		_, err := fmt.Fprintln(w, res.Text)
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(types.CompleteResponse{
		Completion: res.Text,
		Source:     string(res.Source),
		LatencyMS:  res.Latency.Milliseconds(),
		Skipped:    res.Skipped,
	})
}
