// Package main provides the phoneai client CLI.
//
// Usage:
//
//	phoneai [flags] <command> [args]
//
// Commands:
//
//	serve   - connect to the agent and serve the local control API
//	chat    - interactive text chat with the agent
//	say     - send one message and print the agent reply
//	config  - print the effective configuration
package main

import (
	"fmt"
	"os"

	"github.com/saker-ai/phoneai-client/cmd/phoneai/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
