package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/allensfl/coachingspace-app-sub001/internal/domain"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newBackupCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Export all practice data as a JSON snapshot",
		Example: `  coachspace backup --out coachspace-backup.json
  coachspace backup > coachspace-backup.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmdContext(cmd)
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			snap, err := a.store.Backup(ctx)
			if err != nil {
				return errors.Wrap(err, "creating backup")
			}

			if out == "" {
				err = encodeSnapshot(cmd.OutOrStdout(), snap)
			} else {
				err = writeSnapshotFile(out, snap)
			}
			if err != nil {
				return err
			}

			a.logger.Info("backup exported", zap.String("file", out), zap.Int("coachees", len(snap.Coachees)))
			if out != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", color.GreenString("backup written to"), out)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "file to write the snapshot to (default stdout)")
	return cmd
}

func newRestoreCmd() *cobra.Command {
	var in string

	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Replace all practice data with a JSON snapshot",
		Example: `  coachspace restore --in coachspace-backup.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if in == "" {
				return errors.New("--in is required")
			}
			snap, err := readSnapshot(in)
			if err != nil {
				return err
			}

			ctx := cmdContext(cmd)
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.store.Restore(ctx, snap); err != nil {
				return errors.Wrap(err, "restoring backup")
			}

			a.logger.Info("backup restored", zap.String("file", in), zap.Time("exported_at", snap.ExportedAt))
			fmt.Fprintf(cmd.ErrOrStderr(), "%s %d coachees, %d sessions, %d invoices\n",
				color.GreenString("restored"), len(snap.Coachees), len(snap.Sessions), len(snap.Invoices))
			return nil
		},
	}

	cmd.Flags().StringVarP(&in, "in", "i", "", "snapshot file to restore")
	return cmd
}

// createFile opens backup destinations.
var createFile = func(path string) (io.WriteCloser, error) { return os.Create(path) }

func writeSnapshotFile(path string, snap *domain.Snapshot) (err error) {
	f, err := createFile(path)
	if err != nil {
		return errors.Wrap(err, "creating backup file")
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = errors.Wrap(cerr, "closing backup file")
		}
	}()
	return encodeSnapshot(f, snap)
}

func encodeSnapshot(w io.Writer, snap *domain.Snapshot) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return errors.Wrap(enc.Encode(snap), "writing backup")
}

func readSnapshot(path string) (*domain.Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening backup file")
	}
	defer f.Close()

	var snap domain.Snapshot
	if err := json.NewDecoder(f).Decode(&snap); err != nil {
		return nil, errors.Wrapf(err, "decoding %s", path)
	}
	return &snap, nil
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
