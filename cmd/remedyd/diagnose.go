package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/halcyonlabs/remedyd/internal/pipeline"
	"github.com/halcyonlabs/remedyd/internal/platform"
)

var (
	diagnoseOperation string
	diagnoseScope     string
	diagnoseAutoFix   bool
	diagnoseActor     string
)

var diagnoseCmd = &cobra.Command{
	Use:   "diagnose [file]",
	Short: "Diagnose a captured error payload",
	Long: `Diagnose an error payload from a file or stdin and print the full
pipeline result as JSON.

Examples:
  # Diagnose a captured payload
  remedyd diagnose --operation property.update error.json

  # Diagnose from stdin
  cat error.json | remedyd diagnose --operation property.update -

  # Propose a fix alongside the diagnosis
  remedyd diagnose --operation property.update --auto-fix error.json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDiagnose,
}

func init() {
	diagnoseCmd.Flags().StringVar(&diagnoseOperation, "operation", "", "operation that produced the error (required)")
	diagnoseCmd.Flags().StringVar(&diagnoseScope, "scope", "", "scope the operation ran under")
	diagnoseCmd.Flags().BoolVar(&diagnoseAutoFix, "auto-fix", false, "propose an automated fix when eligible")
	diagnoseCmd.Flags().StringVar(&diagnoseActor, "actor", "cli", "actor recorded in the audit trail")
	_ = diagnoseCmd.MarkFlagRequired("operation")
}

func runDiagnose(cmd *cobra.Command, args []string) error {
	var payload []byte
	var err error

	if len(args) == 0 || args[0] == "-" {
		payload, err = io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("reading from stdin: %w", err)
		}
	} else {
		payload, err = os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading %s: %w", args[0], err)
		}
	}

	if len(payload) == 0 {
		return fmt.Errorf("no error payload to diagnose")
	}

	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	result, err := a.pipeline.DiagnoseAndRepair(ctx, payload, platform.Operation{
		Name:  diagnoseOperation,
		Scope: diagnoseScope,
	}, pipeline.Options{
		AutoFix: diagnoseAutoFix,
		Actor:   diagnoseActor,
	})
	if err != nil {
		return fmt.Errorf("diagnosis failed: %w", err)
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
