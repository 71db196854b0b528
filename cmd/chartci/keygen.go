package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"chartci/internal/security"
)

func newKeygenCmd() *cobra.Command {
	var (
		dir   string
		force bool
	)
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate the ed25519 key pair that signs the run ledger",
		RunE: func(cmd *cobra.Command, _ []string) error {
			pubPath := filepath.Join(dir, "ledger.pub")
			privPath := filepath.Join(dir, "ledger.priv")
			if _, err := os.Stat(privPath); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to replace it)", privPath)
			}

			pub, priv, err := security.GenerateKeyPair()
			if err != nil {
				return fmt.Errorf("keygen error: %w", err)
			}
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return err
			}
			if err := security.SaveKeyPair(pub, priv, pubPath, privPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s and %s\npublic key: %s\n", pubPath, privPath, hex.EncodeToString(pub))
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", ".chartci/keys", "Directory for ledger.pub and ledger.priv")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing key pair")
	return cmd
}
