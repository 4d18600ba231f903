package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"inventario/internal/adapters/session"
	"inventario/internal/archive"
)

var (
	exportFinalize bool
	exportOutput   string
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Print a summary of the current session as JSON",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, false, func(a *app) error {
			m := a.session.Manager()
			snap, err := m.Snapshot()
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(session.Summarize(snap, m.PhotosEnabled()))
		})
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the session, its photos and layout images to a zip archive",
	Long: `Write the session document, every photo and every layout image to a zip
archive named inventario_YYYY-MM-DD.zip (inventario_final_YYYY-MM-DD.zip with
--finalize) in INVENTARIO_ARCHIVE_DIR.

--finalize marks the inventory finished before the archive is built.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runExport(cmd, exportFinalize)
	},
}

var finalizeCmd = &cobra.Command{
	Use:   "finalize",
	Short: "Mark the inventory finished and write the final archive",
	Long: `Mark the inventory finished and write inventario_final_YYYY-MM-DD.zip to
INVENTARIO_ARCHIVE_DIR. Equivalent to export --finalize.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runExport(cmd, true)
	},
}

func runExport(cmd *cobra.Command, finalize bool) error {
	return withApp(cmd, false, func(a *app) error {
		tmp, err := os.CreateTemp(a.cfg.ArchiveDir, ".inventario-*.zip")
		if err != nil {
			return err
		}
		defer os.Remove(tmp.Name())
		manifest, err := a.archiver.BuildArchive(cmd.Context(), finalize, tmp)
		if cerr := tmp.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}
		target := exportOutput
		if target == "" {
			target = filepath.Join(a.cfg.ArchiveDir, manifest.Name)
		}
		if err := os.Rename(tmp.Name(), target); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d photos, %d layout images\n", target, manifest.Photos, manifest.LayoutImages)
		if !manifest.PhotosIncluded {
			fmt.Fprintln(cmd.ErrOrStderr(), "Warning: blob storage unavailable, archive holds the session document only")
		}
		return nil
	})
}

var restoreCmd = &cobra.Command{
	Use:   "restore ARCHIVE",
	Short: "Replace the session with the contents of an archive",
	Long: `Replace the session document, photos and layout images with the contents
of an archive written by export. On any failure the previous session is kept.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, false, func(a *app) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			info, err := f.Stat()
			if err != nil {
				return err
			}
			report, err := a.archiver.RestoreArchive(cmd.Context(), f, info.Size(), progressPrinter(cmd, "photos"))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "restored %d photos, %d layout images\n", report.Photos, report.LayoutImages)
			return nil
		})
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Start a new session, erasing the document and all blobs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, false, func(a *app) error {
			if err := a.session.Manager().ResetSession(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "session reset")
			return nil
		})
	},
}

func progressPrinter(cmd *cobra.Command, label string) archive.Progress {
	return func(done, total int) {
		if done == total || done%25 == 0 {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s %d/%d\n", label, done, total)
		}
	}
}

func init() {
	exportCmd.Flags().BoolVar(&exportFinalize, "finalize", false, "Mark the inventory finished before exporting")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Archive path (default INVENTARIO_ARCHIVE_DIR/<name>)")
}
