package main

import (
	"context"
	"crypto/x509/pkix"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"pki-ca-service/config"
	"pki-ca-service/internal/infra"
	"pki-ca-service/internal/pki"
)

// writeOutput は path が空なら w へ、それ以外はファイルへ書き出す。
func writeOutput(w io.Writer, path string, data []byte, perm os.FileMode) error {
	if path == "" {
		_, err := w.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, perm); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// keygenCmd はRSA鍵ペアの生成コマンド。
func keygenCmd() *cobra.Command {
	var out, pubOut string
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an RSA key pair (PKCS#8 private key, PKIX public key)",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := pki.GenerateKey()
			if err != nil {
				return err
			}
			keyPEM, err := pki.EncodePrivateKeyPEM(key)
			if err != nil {
				return err
			}
			if err := writeOutput(cmd.OutOrStdout(), out, keyPEM, 0o600); err != nil {
				return err
			}

			if pubOut != "" {
				pubPEM, err := pki.EncodePublicKeyPEM(&key.PublicKey)
				if err != nil {
					return err
				}
				if err := writeOutput(cmd.OutOrStdout(), pubOut, pubPEM, 0o644); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "Private key output file (default stdout)")
	cmd.Flags().StringVar(&pubOut, "pub-out", "", "Public key output file")
	return cmd
}

// csrCmd はCSRの生成コマンド。
func csrCmd() *cobra.Command {
	var keyFile, commonName, org, out string
	cmd := &cobra.Command{
		Use:   "csr",
		Short: "Create a PKCS#10 certificate signing request",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := loadKey(keyFile)
			if err != nil {
				return err
			}

			subject := pkix.Name{CommonName: commonName}
			if org != "" {
				subject.Organization = []string{org}
			}
			csr, err := pki.CreateCSR(key, subject)
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), out, []byte(csr), 0o644)
		},
	}
	cmd.Flags().StringVar(&keyFile, "key", "", "Private key PEM file (required)")
	cmd.Flags().StringVar(&commonName, "cn", "", "Subject common name (required)")
	cmd.Flags().StringVar(&org, "org", "", "Subject organization")
	cmd.Flags().StringVar(&out, "out", "", "CSR output file (default stdout)")
	cmd.MarkFlagRequired("key")
	cmd.MarkFlagRequired("cn")
	return cmd
}

// signCmd はチャレンジへの署名コマンド。
func signCmd() *cobra.Command {
	var keyFile, message string
	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Sign a challenge with SHA256withRSA and print it in Base64",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := loadKey(keyFile)
			if err != nil {
				return err
			}
			sig, err := pki.SignMessage(key, []byte(strings.TrimSpace(message)))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), sig)
			return nil
		},
	}
	cmd.Flags().StringVar(&keyFile, "key", "", "Private key PEM file (required)")
	cmd.Flags().StringVar(&message, "message", "", "Challenge to sign (required)")
	cmd.MarkFlagRequired("key")
	cmd.MarkFlagRequired("message")
	return cmd
}

// sealKeyCmd はCA秘密鍵をCloud KMSで暗号化するコマンド。出力はサーバーの CA_KEY_KMS_ENCRYPTED で読める。
func sealKeyCmd() *cobra.Command {
	var in, out, keyName string
	cmd := &cobra.Command{
		Use:   "seal-key",
		Short: "Encrypt a CA private key with Cloud KMS",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			if keyName == "" {
				keyName = config.Load().KMSKeyName
			}
			plaintext, err := os.ReadFile(in)
			if err != nil {
				return fmt.Errorf("reading %s: %w", in, err)
			}
			if _, err := pki.ParsePrivateKeyPEM(plaintext); err != nil {
				return fmt.Errorf("%s is not a supported private key: %w", in, err)
			}

			kmsClient, err := infra.NewKMSClient(ctx, keyName)
			if err != nil {
				return err
			}
			defer kmsClient.Close()

			ciphertext, err := kmsClient.Encrypt(ctx, plaintext)
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, ciphertext, 0o600); err != nil {
				return fmt.Errorf("writing %s: %w", out, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Sealed %s into %s\n", in, out)
			return nil
		},
	}
	cmd.Flags().StringVar(&in, "in", "", "Plaintext CA private key PEM file (required)")
	cmd.Flags().StringVar(&out, "out", "", "Encrypted output file (required)")
	cmd.Flags().StringVar(&keyName, "kms-key", "", "KMS key name (or set KMS_KEY_NAME)")
	cmd.MarkFlagRequired("in")
	cmd.MarkFlagRequired("out")
	return cmd
}
