package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// encodeCmd は平文を保存形式に変換する。
func encodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "encode [plaintext]",
		Short: "Encode a secret into the storage format (reads stdin when no argument)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			plaintext, err := readInput(args, cmd.InOrStdin())
			if err != nil {
				return err
			}

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.Codec.Encode(ctx, plaintext)
			if err != nil {
				return fmt.Errorf("encoding: %w", err)
			}
			if result.Degraded() {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s %v\n%s run %s once the key facility is available\n",
					color.YellowString("warning:"), result.Cause,
					color.CyanString("→"), color.YellowString("vaultctl reseal"))
			}

			if output == "json" {
				return printJSON(cmd.OutOrStdout(), map[string]string{
					"value":   result.Value,
					"outcome": string(result.Outcome),
					"format":  string(result.Format),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), result.Value)
			return nil
		},
	}
}

// decodeCmd は保存形式を平文に戻す。
func decodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode [encoded]",
		Short: "Decode a stored secret (reads stdin when no argument)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			encoded, err := readInput(args, cmd.InOrStdin())
			if err != nil {
				return err
			}

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			plaintext, err := a.Codec.Decode(ctx, encoded)
			if err != nil {
				return fmt.Errorf("decoding: %w", err)
			}

			if output == "json" {
				return printJSON(cmd.OutOrStdout(), map[string]string{"plaintext": plaintext})
			}
			fmt.Fprintln(cmd.OutOrStdout(), plaintext)
			return nil
		},
	}
}
