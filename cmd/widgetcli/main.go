// File: cmd/widgetcli/main.go
//
// widgetcli talks to a chat widget backend from a terminal, using the same
// session and reconnect rules as the embedded widget.
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
