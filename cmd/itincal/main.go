// Command itincal plans a travel day around fixed calendar commitments.
package main

import (
	"fmt"
	"os"

	"itincal/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
