package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

// cmdRoot is the base command when no other command has been specified.
var cmdRoot = &cobra.Command{
	Use:   "ramcloud",
	Short: "In-memory object store server and tools",
	Long: `
ramcloud keeps every object in memory: an append-only log holds the records
and a cache-line-aware hash table maps each 64-bit object ID to the latest
version in the log. The server answers ping, read, write and remove requests
over a small framed TCP protocol.
`,
	SilenceErrors:     true,
	SilenceUsage:      true,
	DisableAutoGenTag: true,

	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
		os.Exit(0)
	},
}

func main() {
	if err := cmdRoot.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
