package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/halcyonlabs/remedyd/internal/patterns"
)

var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "Inspect and validate error pattern corpora",
}

var patternsValidateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Validate a pattern corpus file",
	Long: `Load a pattern corpus file and report whether every pattern compiles.

Validation covers the corpus version, pattern ID uniqueness, and the title
and detail regular expressions.

Examples:
  remedyd patterns validate corpus.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runPatternsValidate,
}

var patternsInfoCmd = &cobra.Command{
	Use:   "info [file]",
	Short: "Show corpus version and pattern counts",
	Long: `Show the version and per-category pattern counts for a corpus file,
or for the built-in corpus when no file is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPatternsInfo,
}

func init() {
	patternsCmd.AddCommand(patternsValidateCmd)
	patternsCmd.AddCommand(patternsInfoCmd)
}

func runPatternsValidate(cmd *cobra.Command, args []string) error {
	library, err := patterns.LoadFile(args[0], zap.NewNop())
	if err != nil {
		return fmt.Errorf("corpus invalid: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "OK: %s (%d patterns, version %s)\n",
		args[0], library.Len(), library.Version())
	return nil
}

func runPatternsInfo(cmd *cobra.Command, args []string) error {
	var library *patterns.Library
	var err error

	if len(args) == 1 {
		library, err = patterns.LoadFile(args[0], zap.NewNop())
		if err != nil {
			return fmt.Errorf("loading corpus: %w", err)
		}
	} else {
		library = patterns.Builtin(zap.NewNop())
	}

	counts := make(map[patterns.Category]int)
	for _, p := range library.All() {
		counts[p.Category]++
	}

	categories := make([]string, 0, len(counts))
	for category := range counts {
		categories = append(categories, string(category))
	}
	sort.Strings(categories)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Version:  %s\n", library.Version())
	fmt.Fprintf(out, "Patterns: %d\n", library.Len())
	for _, category := range categories {
		fmt.Fprintf(out, "  %-12s %d\n", category, counts[patterns.Category(category)])
	}
	return nil
}
