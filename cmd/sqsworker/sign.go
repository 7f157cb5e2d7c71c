package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/trackshift/platform/sqsworker/internal/config"
	"github.com/trackshift/platform/sqsworker/internal/signing"
)

func newSignCmd() *cobra.Command {
	var (
		secretSource string
		algorithm    string
		deriveKey    bool
	)
	cmd := &cobra.Command{
		Use:   "sign [file]",
		Short: "Print the message-digest attribute value for a job payload",
		Long: "Reads the payload from file, or stdin when no file is given, and prints the\n" +
			"hex digest a producer must send as the message-digest attribute.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if len(args) == 1 {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			payload, err := io.ReadAll(in)
			if err != nil {
				return fmt.Errorf("read payload: %w", err)
			}

			secret, err := resolveSecret(cmd.Context(), os.Getenv("SQSWORKER_SECRET"), secretSource)
			if err != nil {
				return err
			}
			if len(secret) == 0 {
				return errors.New("no secret: set SQSWORKER_SECRET or --secret-source")
			}
			if deriveKey {
				if secret, err = signing.DeriveKey(secret); err != nil {
					return err
				}
			}
			verifier, err := signing.NewVerifier(secret, signing.Algorithm(algorithm))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), verifier.Sign(payload))
			return nil
		},
	}
	defaults := config.Default()
	cmd.Flags().StringVar(&secretSource, "secret-source", "", "secret reference (env:, file:, s3://, ssm:); defaults to SQSWORKER_SECRET")
	cmd.Flags().StringVar(&algorithm, "algorithm", defaults.SignatureAlgorithm, "HMAC hash: sha256 or sha1")
	cmd.Flags().BoolVar(&deriveKey, "derive-key", defaults.DeriveKey, "derive the signing key from the secret with HKDF")
	return cmd
}
