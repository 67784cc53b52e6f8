// Command voiceagent runs the on-device voice assistant.
//
// Usage:
//
//	voiceagent run [flags]
//	voiceagent tools [flags]
//
// Configuration comes from a YAML file, an optional .env file and
// VOICEAGENT_* environment variables, in increasing precedence.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
