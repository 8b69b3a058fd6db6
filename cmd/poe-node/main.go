package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "poe-node",
	Short: "Proof of Emotion consensus node",
	Long:  "poe-node runs a Proof of Emotion validator: biometric-weighted committee selection, Byzantine-tolerant voting, and quorum-signed checkpoints.",
}

func main() {
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newKeygenCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
