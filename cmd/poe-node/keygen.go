package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/empower1/proof-of-emotion/internal/poecrypto"
)

func newKeygenCmd() *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a new validator signing key",
		RunE: func(cmd *cobra.Command, args []string) error {
			keyPair, err := poecrypto.GenerateKeyPair()
			if err != nil {
				return fmt.Errorf("failed to generate key pair: %w", err)
			}

			fmt.Printf("public key:  %s\n", keyPair.PublicKeyHex())
			fmt.Printf("secret key:  %s\n", keyPair.SecretKeyHex())

			if outPath == "" {
				return nil
			}
			if err := os.WriteFile(outPath, []byte(keyPair.SecretKeyHex()+"\n"), 0600); err != nil {
				return fmt.Errorf("failed to write secret key to %s: %w", outPath, err)
			}
			fmt.Printf("secret key written to %s\n", outPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&outPath, "out", "", "path to write the hex-encoded secret key (skipped if empty)")
	return cmd
}
