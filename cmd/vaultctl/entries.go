package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"vault-secret-store/internal/domain"
	"vault-secret-store/pkg/flatrecord"
)

// エクスポート形式のフィールド順。パスワードは符号化済みのまま出力する。
var recordFields = []string{"id", "title", "username", "password", "note", "category", "created_at", "updated_at"}

func entryToRecord(e *domain.VaultEntry) []string {
	return []string{
		e.ID,
		e.Title,
		e.Username,
		e.Password,
		e.Note,
		e.Category,
		e.CreatedAt.UTC().Format(time.RFC3339),
		e.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func recordToEntry(fields []string) (*domain.VaultEntry, error) {
	if len(fields) != len(recordFields) {
		return nil, fmt.Errorf("expected %d fields, got %d", len(recordFields), len(fields))
	}
	entry := &domain.VaultEntry{
		Title:    fields[1],
		Username: fields[2],
		Password: fields[3],
		Note:     fields[4],
		Category: fields[5],
	}
	// 作成日時は引き継ぎ、IDは採番し直す。空の場合は取り込み時刻になる
	if fields[6] != "" {
		t, err := time.Parse(time.RFC3339, fields[6])
		if err != nil {
			return nil, fmt.Errorf("invalid created_at %q: %w", fields[6], err)
		}
		entry.CreatedAt = t
	}
	return entry, nil
}

// entriesCmd はエントリの入出力コマンド。
func entriesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entries",
		Short: "Export or import vault entries as tab-separated records",
	}

	var outPath string
	export := &cobra.Command{
		Use:   "export",
		Short: "Export entries with their encoded secrets",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			entries, err := a.Vault.ListEntries(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if outPath != "" {
				f, err := os.OpenFile(outPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}
			if err := exportEntries(out, entries); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d entries.\n", len(entries))
			return nil
		},
	}
	export.Flags().StringVar(&outPath, "file", "", "Write to file instead of stdout")
	cmd.AddCommand(export)

	var inPath string
	imp := &cobra.Command{
		Use:   "import",
		Short: "Import entries produced by export (secrets are not re-encrypted)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			in := cmd.InOrStdin()
			if inPath != "" {
				f, err := os.Open(inPath)
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			imported, err := importEntries(in, func(e *domain.VaultEntry) error {
				return a.Vault.ImportEntry(ctx, e)
			})
			fmt.Fprintf(cmd.ErrOrStderr(), "Imported %d entries.\n", imported)
			return err
		},
	}
	imp.Flags().StringVar(&inPath, "file", "", "Read from file instead of stdin")
	cmd.AddCommand(imp)

	return cmd
}

func exportEntries(w io.Writer, entries []*domain.VaultEntry) error {
	rw := flatrecord.NewWriter(w)
	if err := rw.Write(recordFields); err != nil {
		return err
	}
	for _, e := range entries {
		if err := rw.Write(entryToRecord(e)); err != nil {
			return err
		}
	}
	return rw.Flush()
}

func importEntries(r io.Reader, save func(*domain.VaultEntry) error) (int, error) {
	rr := flatrecord.NewReader(r)

	header, err := rr.Read()
	if errors.Is(err, io.EOF) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if len(header) == 0 || header[0] != recordFields[0] {
		return 0, errors.New("missing header line")
	}

	imported := 0
	for {
		fields, err := rr.Read()
		if errors.Is(err, io.EOF) {
			return imported, nil
		}
		if err != nil {
			return imported, err
		}
		entry, err := recordToEntry(fields)
		if err != nil {
			return imported, fmt.Errorf("record %d: %w", imported+1, err)
		}
		if err := save(entry); err != nil {
			return imported, fmt.Errorf("record %d: %w", imported+1, err)
		}
		imported++
	}
}

// resealCmd は旧形式のエントリを再暗号化する。
func resealCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reseal",
		Short: "Re-encrypt legacy and degraded entries in the current format",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.Vault.Reseal(ctx)
			if err != nil {
				return err
			}
			if output == "json" {
				return printJSON(cmd.OutOrStdout(), report)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Resealed %d entries.\n", report.Resealed)
			for _, id := range report.Unreadable {
				fmt.Fprintf(cmd.OutOrStdout(), "%s unreadable entry %s\n", color.RedString("✗"), id)
			}
			return nil
		},
	}
}
