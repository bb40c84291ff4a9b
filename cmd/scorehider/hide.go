package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/cybergodev/scorehider"
	"github.com/cybergodev/scorehider/internal/logging"
	"github.com/spf13/cobra"
)

type hideOptions struct {
	output string
	outDir string
	report bool
}

func newHideCmd(root *rootOptions) *cobra.Command {
	opts := &hideOptions{}
	cmd := &cobra.Command{
		Use:   "hide [file|-]...",
		Short: "Hide the scores in HTML documents",
		Long: `Hide every SAT score in an HTML document and write the result.

With several files the documents are processed concurrently and each result
is written next to its input as <name>.hidden.html, or into --out-dir.

The input charset is detected from the document unless processor.encoding is
set in the configuration.

Examples:
  # Hide scores in a saved report
  scorehider hide report.html > hidden.html

  # Read from stdin and list what was hidden
  cat report.html | scorehider hide --report -

  # Hide scores in every saved report
  scorehider hide --out-dir hidden/ reports/*.html`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 1 {
				if opts.output != "" {
					return fmt.Errorf("--output takes a single input; use --out-dir for several files")
				}
				if slices.Contains(args, "-") {
					return fmt.Errorf("stdin cannot be combined with other inputs")
				}
			}
			return runHide(cmd, root, opts, args)
		},
	}
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "write to this file instead of stdout")
	cmd.Flags().StringVar(&opts.outDir, "out-dir", "", "directory for the results when hiding several files")
	cmd.Flags().BoolVar(&opts.report, "report", false, "list the hidden scores on stderr")
	return cmd
}

func runHide(cmd *cobra.Command, root *rootOptions, opts *hideOptions, args []string) error {
	cfg, err := root.load()
	if err != nil {
		return err
	}
	settings, err := root.settings(cfg)
	if err != nil {
		return err
	}

	var content []byte
	if len(args) <= 1 {
		content, err = readInput(cmd, args)
		if err != nil {
			return err
		}
	}

	logger, err := logging.New(&cfg.Logging)
	if err != nil {
		return err
	}
	defer logging.Sync(logger)

	pc := cfg.ProcessorConfig()
	pc.Settings = settings
	pc.Logger = logger
	proc, err := scorehider.New(pc)
	if err != nil {
		return err
	}
	defer proc.Close()

	if len(args) > 1 {
		return hideFiles(cmd, proc, opts, args)
	}

	result, err := proc.ProcessBytes(content)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.output != "" {
		f, err := os.Create(opts.output)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", opts.output, err)
		}
		defer f.Close()
		out = f
	}
	if _, err := io.WriteString(out, result.HTML); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if opts.report {
		if err := writeReport(cmd.ErrOrStderr(), "", []*scorehider.Result{result}); err != nil {
			return err
		}
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "hid %d score(s)\n", len(result.Scores))
	return nil
}

func readInput(cmd *cobra.Command, args []string) ([]byte, error) {
	var (
		content []byte
		err     error
	)
	if len(args) == 0 || args[0] == "-" {
		content, err = io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("failed to read from stdin: %w", err)
		}
	} else {
		content, err = os.ReadFile(args[0])
		if err != nil {
			return nil, fmt.Errorf("failed to read file %s: %w", args[0], err)
		}
	}
	if len(content) == 0 {
		return nil, fmt.Errorf("no content to process")
	}
	return content, nil
}

// hideFiles processes paths as a batch. Every document that succeeds is
// written even when others fail; the batch error is returned afterwards.
func hideFiles(cmd *cobra.Command, proc *scorehider.Processor, opts *hideOptions, paths []string) error {
	if opts.outDir != "" {
		if err := os.MkdirAll(opts.outDir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", opts.outDir, err)
		}
	}

	results, batchErr := proc.ProcessBatchFiles(paths)
	total := 0
	for i, result := range results {
		if result == nil {
			continue
		}
		dest := hiddenPath(paths[i], opts.outDir)
		if err := os.WriteFile(dest, []byte(result.HTML), 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", dest, err)
		}
		total += len(result.Scores)
		fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s (%d)\n", paths[i], dest, len(result.Scores))
	}

	if opts.report {
		if err := writeReport(cmd.ErrOrStderr(), "FILE\t", results, paths...); err != nil {
			return err
		}
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "hid %d score(s)\n", total)
	return batchErr
}

// hiddenPath names the result for input: <name>.hidden.html in dir, or
// beside the input when dir is empty.
func hiddenPath(input, dir string) string {
	base := filepath.Base(input)
	name := strings.TrimSuffix(base, filepath.Ext(base)) + ".hidden.html"
	if dir == "" {
		dir = filepath.Dir(input)
	}
	return filepath.Join(dir, name)
}

// writeReport lists the hidden scores. With names, each row is prefixed by
// the file it came from.
func writeReport(w io.Writer, prefix string, results []*scorehider.Result, names ...string) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, prefix+"ID\tSCORE\tCATEGORY")
	for i, result := range results {
		if result == nil {
			continue
		}
		for _, s := range result.Scores {
			if len(names) > 0 {
				fmt.Fprintf(tw, "%s\t", names[i])
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\n", s.ID, s.Text, s.Category)
		}
	}
	return tw.Flush()
}
