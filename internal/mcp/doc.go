// Package mcp exposes the remedyd diagnosis pipeline as MCP tools.
//
// The server runs on the stdio transport so an agent host can call
// diagnose_and_repair on any platform error it observes, walk a proposed
// fix through preview and approval, and inspect the loaded pattern corpus.
// Tool handlers call the internal services directly.
package mcp
