package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"vault-secret-store/internal/domain"
	"vault-secret-store/internal/infra"
)

type keyOutput struct {
	Alias     string `json:"alias"`
	Algorithm string `json:"algorithm"`
	CreatedAt string `json:"created_at"`
}

func newKeyOutput(h *domain.KeyHandle) keyOutput {
	return keyOutput{
		Alias:     h.Alias,
		Algorithm: h.Algorithm,
		CreatedAt: h.CreatedAt.Format(time.RFC3339),
	}
}

// keyCmd は鍵メタデータの参照コマンド。
func keyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Inspect keys held by the key facility",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the key for the configured alias",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			handle, err := a.Keys.CurrentKey(ctx)
			if err != nil {
				return err
			}
			if output == "json" {
				return printJSON(cmd.OutOrStdout(), newKeyOutput(handle))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Alias: %s\nAlgorithm: %s\nCreated: %s\n",
				handle.Alias, handle.Algorithm, handle.CreatedAt.Format(time.RFC3339))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all stored keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			handles, err := a.Keys.ListKeys(ctx)
			if err != nil {
				return err
			}
			if output == "json" {
				out := make([]keyOutput, len(handles))
				for i, h := range handles {
					out[i] = newKeyOutput(h)
				}
				return printJSON(cmd.OutOrStdout(), out)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "ALIAS\tALGORITHM\tCREATED AT")
			for _, h := range handles {
				fmt.Fprintf(w, "%s\t%s\t%s\n", h.Alias, h.Algorithm, h.CreatedAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	})

	return cmd
}

// kmsCmd はCloud KMS側の準備コマンド。
func kmsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kms",
		Short: "Manage the Cloud KMS key used to wrap vault keys",
	}

	var keyRing, keyID string
	ensure := &cobra.Command{
		Use:   "ensure",
		Short: "Create the wrapping crypto key if it does not exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			if _, err := loadConfig(); err != nil {
				return err
			}

			client, err := infra.NewKMSClient(ctx, keyRing+"/cryptoKeys/"+keyID)
			if err != nil {
				return err
			}
			defer client.Close()

			name, created, err := client.EnsureCryptoKey(ctx, keyRing, keyID)
			if err != nil {
				return err
			}
			if output == "json" {
				return printJSON(cmd.OutOrStdout(), map[string]any{"name": name, "created": created})
			}
			if created {
				fmt.Fprintf(cmd.OutOrStdout(), "Created crypto key %s\n", name)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Crypto key %s already exists\n", name)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Set KMS_KEY_NAME=%s\n", name)
			return nil
		},
	}
	ensure.Flags().StringVar(&keyRing, "key-ring", "", "Key ring (projects/*/locations/*/keyRings/*)")
	ensure.Flags().StringVar(&keyID, "id", "vault-wrapping-key", "Crypto key ID")
	_ = ensure.MarkFlagRequired("key-ring")
	cmd.AddCommand(ensure)

	return cmd
}
