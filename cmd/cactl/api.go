package main

import (
	"crypto/rsa"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"pki-ca-service/internal/handler"
	"pki-ca-service/internal/pki"
)

// printResult は --output=json なら生のレスポンスを、それ以外は text の出力を表示する。
func printResult(w io.Writer, raw []byte, text func()) {
	if output == "json" {
		fmt.Fprintln(w, string(raw))
		return
	}
	text()
}

// loadKey はPEMファイルからRSA秘密鍵を読み込む。
func loadKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading key file: %w", err)
	}
	key, err := pki.ParsePrivateKeyPEM(data)
	if err != nil {
		return nil, fmt.Errorf("parsing key file: %w", err)
	}
	return key, nil
}

// registerCmd は利用者登録コマンド。
func registerCmd() *cobra.Command {
	var username, email, publicKeyFile string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a user with a login public key",
		RunE: func(cmd *cobra.Command, args []string) error {
			pub, err := os.ReadFile(publicKeyFile)
			if err != nil {
				return fmt.Errorf("reading public key: %w", err)
			}

			var result handler.UserResponse
			raw, err := client.call(http.MethodPost, "/v1/users", handler.RegisterRequest{
				Username:  username,
				Email:     email,
				PublicKey: string(pub),
			}, http.StatusCreated, &result)
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), raw, func() {
				fmt.Fprintf(cmd.OutOrStdout(), "Registered user %q\n", result.Username)
			})
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "Username (required)")
	cmd.Flags().StringVar(&email, "email", "", "Email address for notifications")
	cmd.Flags().StringVar(&publicKeyFile, "public-key", "", "Login public key PEM file (required)")
	cmd.MarkFlagRequired("username")
	cmd.MarkFlagRequired("public-key")
	return cmd
}

// challengeCmd はログインチャレンジの取得コマンド。
func challengeCmd() *cobra.Command {
	var username string
	cmd := &cobra.Command{
		Use:   "challenge",
		Short: "Request a login challenge",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result handler.ChallengeResponse
			raw, err := client.call(http.MethodPost, "/v1/auth/challenge", handler.ChallengeRequest{Username: username}, http.StatusOK, &result)
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), raw, func() {
				fmt.Fprintln(cmd.OutOrStdout(), result.Challenge)
			})
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "Username (required)")
	cmd.MarkFlagRequired("username")
	return cmd
}

// loginCmd は署名ログインコマンド。--key を指定するとチャレンジ取得と署名も行う。
func loginCmd() *cobra.Command {
	var username, keyFile, signature string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in by signing the login challenge",
		RunE: func(cmd *cobra.Command, args []string) error {
			if signature == "" {
				if keyFile == "" {
					return fmt.Errorf("either --signature or --key is required")
				}
				key, err := loadKey(keyFile)
				if err != nil {
					return err
				}
				var challenge handler.ChallengeResponse
				if _, err := client.call(http.MethodPost, "/v1/auth/challenge", handler.ChallengeRequest{Username: username}, http.StatusOK, &challenge); err != nil {
					return err
				}
				if signature, err = pki.SignMessage(key, []byte(challenge.Challenge)); err != nil {
					return err
				}
			}

			var result handler.UserResponse
			raw, err := client.call(http.MethodPost, "/v1/auth/login", handler.LoginRequest{
				Username:  username,
				Signature: signature,
			}, http.StatusOK, &result)
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), raw, func() {
				fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %q\n", result.Username)
			})
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "Username (required)")
	cmd.Flags().StringVar(&keyFile, "key", "", "Login private key PEM file")
	cmd.Flags().StringVar(&signature, "signature", "", "Base64 signature over a previously issued challenge")
	cmd.MarkFlagRequired("username")
	return cmd
}

// csrChallengeCmd はCSR鍵所持証明用チャレンジの取得コマンド。
func csrChallengeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "csr-challenge",
		Short: "Request a CSR binding challenge for --user",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result handler.ChallengeResponse
			raw, err := client.call(http.MethodPost, "/v1/applications/challenge", nil, http.StatusOK, &result)
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), raw, func() {
				fmt.Fprintln(cmd.OutOrStdout(), result.Challenge)
			})
			return nil
		},
	}
}

// applyCmd は証明書発行申請コマンド。--key を指定するとチャレンジ取得と署名も行う。
func applyCmd() *cobra.Command {
	var csrFile, keyFile, signature string
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Submit a certificate application with a CSR",
		RunE: func(cmd *cobra.Command, args []string) error {
			csr, err := os.ReadFile(csrFile)
			if err != nil {
				return fmt.Errorf("reading CSR: %w", err)
			}

			if signature == "" {
				if keyFile == "" {
					return fmt.Errorf("either --signature or --key is required")
				}
				key, err := loadKey(keyFile)
				if err != nil {
					return err
				}
				var challenge handler.ChallengeResponse
				if _, err := client.call(http.MethodPost, "/v1/applications/challenge", nil, http.StatusOK, &challenge); err != nil {
					return err
				}
				if signature, err = pki.SignMessage(key, []byte(challenge.Challenge)); err != nil {
					return err
				}
			}

			var result handler.ApplicationResponse
			raw, err := client.call(http.MethodPost, "/v1/applications", handler.SubmitApplicationRequest{
				CSR:       string(csr),
				Signature: signature,
			}, http.StatusCreated, &result)
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), raw, func() {
				fmt.Fprintf(cmd.OutOrStdout(), "Submitted application %s (%s)\n", result.ID, result.Status)
			})
			return nil
		},
	}
	cmd.Flags().StringVar(&csrFile, "csr", "", "CSR PEM file (required)")
	cmd.Flags().StringVar(&keyFile, "key", "", "Private key PEM file matching the CSR")
	cmd.Flags().StringVar(&signature, "signature", "", "Base64 signature over a previously issued challenge")
	cmd.MarkFlagRequired("csr")
	return cmd
}

// approveCmd は発行申請の承認コマンド。
func approveCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "approve",
		Short: "Approve a certificate application",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result handler.CertificateResponse
			raw, err := client.call(http.MethodPost, "/v1/applications/"+url.PathEscape(id)+"/approve", nil, http.StatusCreated, &result)
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), raw, func() {
				fmt.Fprintf(cmd.OutOrStdout(), "Issued certificate %s for %q (valid until %s)\n", result.SerialNumber, result.Owner, result.ValidTo)
			})
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Application ID (required)")
	cmd.MarkFlagRequired("id")
	return cmd
}

// rejectCmd は発行申請の却下コマンド。
func rejectCmd() *cobra.Command {
	var id, reason string
	cmd := &cobra.Command{
		Use:   "reject",
		Short: "Reject a certificate application",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result handler.ApplicationResponse
			raw, err := client.call(http.MethodPost, "/v1/applications/"+url.PathEscape(id)+"/reject", handler.RejectRequest{Reason: reason}, http.StatusOK, &result)
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), raw, func() {
				fmt.Fprintf(cmd.OutOrStdout(), "Rejected application %s: %s\n", result.ID, result.RejectReason)
			})
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Application ID (required)")
	cmd.Flags().StringVar(&reason, "reason", "", "Reject reason")
	cmd.MarkFlagRequired("id")
	return cmd
}

// revokeCmd は失効申請コマンド。
func revokeCmd() *cobra.Command {
	var serial, reason string
	cmd := &cobra.Command{
		Use:   "revoke",
		Short: "Request revocation of an owned certificate",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result handler.RevocationResponse
			raw, err := client.call(http.MethodPost, "/v1/revocations", handler.SubmitRevocationRequest{
				SerialNumber: serial,
				Reason:       reason,
			}, http.StatusCreated, &result)
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), raw, func() {
				fmt.Fprintf(cmd.OutOrStdout(), "Submitted revocation %s for %s\n", result.ID, result.SerialNumber)
			})
			return nil
		},
	}
	cmd.Flags().StringVar(&serial, "serial", "", "Certificate serial number (required)")
	cmd.Flags().StringVar(&reason, "reason", "", "Revocation reason (required)")
	cmd.MarkFlagRequired("serial")
	cmd.MarkFlagRequired("reason")
	return cmd
}

// approveRevocationCmd は失効申請の承認コマンド。
func approveRevocationCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "approve-revocation",
		Short: "Approve a revocation request",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result handler.RevocationRecordResponse
			raw, err := client.call(http.MethodPost, "/v1/revocations/"+url.PathEscape(id)+"/approve", nil, http.StatusCreated, &result)
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), raw, func() {
				fmt.Fprintf(cmd.OutOrStdout(), "Revoked %s at %s\n", result.SerialNumber, result.RevokeTime)
			})
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Revocation request ID (required)")
	cmd.MarkFlagRequired("id")
	return cmd
}

// rejectRevocationCmd は失効申請の却下コマンド。
func rejectRevocationCmd() *cobra.Command {
	var id, reason string
	cmd := &cobra.Command{
		Use:   "reject-revocation",
		Short: "Reject a revocation request",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result handler.RevocationResponse
			raw, err := client.call(http.MethodPost, "/v1/revocations/"+url.PathEscape(id)+"/reject", handler.RejectRequest{Reason: reason}, http.StatusOK, &result)
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), raw, func() {
				fmt.Fprintf(cmd.OutOrStdout(), "Rejected revocation %s: %s\n", result.ID, result.RejectReason)
			})
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Revocation request ID (required)")
	cmd.Flags().StringVar(&reason, "reason", "", "Reject reason")
	cmd.MarkFlagRequired("id")
	return cmd
}

// listCmd は一覧取得コマンド。
func listCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:       "list {applications|revocations|certificates}",
		Short:     "List applications, revocation requests or own certificates",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"applications", "revocations", "certificates"},
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
			query := ""
			if status != "" {
				query = "?status=" + url.QueryEscape(status)
			}

			switch args[0] {
			case "applications":
				var result handler.ListApplicationsResponse
				raw, err := client.call(http.MethodGet, "/v1/applications"+query, nil, http.StatusOK, &result)
				if err != nil {
					return err
				}
				printResult(cmd.OutOrStdout(), raw, func() {
					fmt.Fprintln(w, "ID\tREQUESTOR\tSTATUS\tREQUEST TIME")
					for _, a := range result.Applications {
						fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", a.ID, a.Requestor, a.Status, a.RequestTime)
					}
				})
			case "revocations":
				var result handler.ListRevocationsResponse
				raw, err := client.call(http.MethodGet, "/v1/revocations"+query, nil, http.StatusOK, &result)
				if err != nil {
					return err
				}
				printResult(cmd.OutOrStdout(), raw, func() {
					fmt.Fprintln(w, "ID\tSERIAL\tREQUESTOR\tSTATUS\tREASON")
					for _, r := range result.Revocations {
						fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.SerialNumber, r.Requestor, r.Status, r.Reason)
					}
				})
			case "certificates":
				var result handler.ListCertificatesResponse
				raw, err := client.call(http.MethodGet, "/v1/certificates", nil, http.StatusOK, &result)
				if err != nil {
					return err
				}
				printResult(cmd.OutOrStdout(), raw, func() {
					fmt.Fprintln(w, "SERIAL\tSTATUS\tVALID FROM\tVALID TO")
					for _, c := range result.Certificates {
						fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.SerialNumber, c.Status, c.ValidFrom, c.ValidTo)
					}
				})
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Filter by status: PENDING, APPROVED, REJECTED")
	return cmd
}

// statusCmd は証明書の状態取得コマンド。
func statusCmd() *cobra.Command {
	var serial string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the evaluated status of a certificate",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result handler.CertificateResponse
			raw, err := client.call(http.MethodGet, "/v1/certificates/"+url.PathEscape(serial)+"/status", nil, http.StatusOK, &result)
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), raw, func() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s (owner %s, valid %s to %s)\n",
					result.SerialNumber, result.Status, result.Owner, result.ValidFrom, result.ValidTo)
			})
			return nil
		},
	}
	cmd.Flags().StringVar(&serial, "serial", "", "Certificate serial number (required)")
	cmd.MarkFlagRequired("serial")
	return cmd
}

// verifyCmd は証明書の有効性確認コマンド。有効でない場合は終了コード1。
func verifyCmd() *cobra.Command {
	var serial string
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify that a certificate is currently valid",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result handler.VerifyResponse
			raw, err := client.call(http.MethodGet, "/v1/certificates/"+url.PathEscape(serial)+"/verify", nil, http.StatusOK, &result)
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), raw, func() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", serial, result.Status)
			})
			if !result.Valid {
				return fmt.Errorf("certificate %s is %s", serial, result.Status)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&serial, "serial", "", "Certificate serial number (required)")
	cmd.MarkFlagRequired("serial")
	return cmd
}

// downloadCmd は証明書のダウンロードコマンド。
func downloadCmd() *cobra.Command {
	var serial, out string
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download an owned certificate as PEM",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := client.do(http.MethodGet, "/v1/certificates/"+url.PathEscape(serial)+"/download", nil, http.StatusOK)
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), out, data, 0o644)
		},
	}
	cmd.Flags().StringVar(&serial, "serial", "", "Certificate serial number (required)")
	cmd.Flags().StringVar(&out, "out", "", "Output file (default stdout)")
	cmd.MarkFlagRequired("serial")
	return cmd
}

// crlCmd は失効一覧の取得コマンド。
func crlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "crl",
		Short: "List revoked certificates",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result handler.RevocationListResponse
			raw, err := client.call(http.MethodGet, "/v1/crl", nil, http.StatusOK, &result)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
			printResult(cmd.OutOrStdout(), raw, func() {
				fmt.Fprintln(w, "SERIAL\tREVOKED AT\tREASON")
				for _, r := range result.Revoked {
					fmt.Fprintf(w, "%s\t%s\t%s\n", r.SerialNumber, r.RevokeTime, r.Reason)
				}
			})
			return w.Flush()
		},
	}
}
