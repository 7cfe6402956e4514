// Remedyd diagnoses and repairs platform API errors raised by tool-calling
// agents.
//
// The daemon loads an error pattern corpus, serves the diagnosis pipeline
// over HTTP and MCP, and walks automated fixes through a preview/approval
// lifecycle with a full audit trail.
//
// Usage:
//
//	# Start the HTTP server
//	remedyd serve
//
//	# Serve the pipeline to an agent host over stdio
//	remedyd mcp
//
//	# Diagnose a captured error payload
//	remedyd diagnose --operation property.update error.json
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

// configPath is the optional config file override shared by all commands.
var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "remedyd",
	Short: "Diagnosis and repair daemon for platform API errors",
	Long: `remedyd turns raw platform API errors into ranked diagnoses, concrete
solutions, and optionally automated fixes gated behind preview and approval.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default: ~/.config/remedyd/config.yaml)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(diagnoseCmd)
	rootCmd.AddCommand(patternsCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("remedyd by Halcyon Labs\n")
		fmt.Printf("Version:    %s\n", version)
		fmt.Printf("Commit:     %s\n", gitCommit)
		fmt.Printf("Build Date: %s\n", buildDate)
	},
}
