// Package main is the entry point for the qlnb CLI application.
// It opens query notebooks, runs their cells against a query engine and
// renders the stored results in the terminal.
package main

import (
	"qlnotebook/cli/cmd"
)

// main is the entry point for the qlnb CLI application.
func main() {
	cmd.Execute()
}
