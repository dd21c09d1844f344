package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/ssh"

	"github.com/odvcencio/shroud/pkg/module"
)

func newVerifyCmd() *cobra.Command {
	var keyPath string

	cmd := &cobra.Command{
		Use:   "verify <image>...",
		Short: "Check the detached SSH signatures of module images",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var want ssh.PublicKey
			if keyPath != "" {
				k, err := loadAuthorizedKey(keyPath)
				if err != nil {
					return err
				}
				want = k
			}

			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("verify %s: %w", path, err)
				}
				if _, err := module.Unmarshal(data); err != nil {
					return fmt.Errorf("verify %s: %w", path, err)
				}
				sig, err := os.ReadFile(path + SigExt)
				if err != nil {
					return fmt.Errorf("verify %s: %w", path, err)
				}
				pub, err := verifyImageSignature(string(sig), module.SigningPayload(filepath.Base(path), data))
				if err != nil {
					return fmt.Errorf("verify %s: %w", path, err)
				}
				if want != nil && !bytes.Equal(pub.Marshal(), want.Marshal()) {
					return fmt.Errorf("verify %s: signed by %s, want %s", path, ssh.FingerprintSHA256(pub), ssh.FingerprintSHA256(want))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "ok: %s signed by %s\n", path, ssh.FingerprintSHA256(pub))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&keyPath, "key", "", "require signatures by this SSH public key")
	return cmd
}
