// Command paperdredge crawls an academic search portal for a keyword,
// collects bibliographic records, optionally downloads the full-text
// documents, and persists everything to PostgreSQL.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "paperdredge",
	Short: "Bibliographic crawl-and-download pipeline",
	Long: `paperdredge drives a headless browser through an academic search
portal, extracts title/author/date records from each result page, fetches
the referenced documents, and records everything in a relational store.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
