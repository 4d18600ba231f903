package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"inventario/internal/archive"
)

var importPhotosCmd = &cobra.Command{
	Use:   "import-photos FILE...",
	Short: "Attach loose image files named after inventory keys",
	Long: `Attach loose image files to inventory items. Each file name without its
extension must equal an inventory key (12345.jpg attaches to 12345). Files
that match nothing or exceed INVENTARIO_MAX_PHOTO_BYTES are skipped.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		files := make([]archive.PhotoFile, 0, len(args))
		for _, path := range args {
			payload, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			files = append(files, archive.PhotoFile{Name: filepath.Base(path), Payload: payload})
		}
		return withApp(cmd, false, func(a *app) error {
			report, err := a.archiver.RestorePhotosOnly(cmd.Context(), files, archive.MatchBareKey, progressPrinter(cmd, "files"))
			if err != nil {
				return err
			}
			printPhotoReport(cmd, report)
			return nil
		})
	},
}

var restorePhotosCmd = &cobra.Command{
	Use:   "restore-photos ARCHIVE",
	Short: "Restore only the inventory photos of a prior archive",
	Long: `Restore photos from the photos/ folder of an archive written by export,
keeping the current session document. Photos whose key matches no inventory
item are skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		info, err := f.Stat()
		if err != nil {
			return err
		}
		files, err := archive.PhotoFilesFromArchive(f, info.Size())
		if err != nil {
			return err
		}
		return withApp(cmd, false, func(a *app) error {
			report, err := a.archiver.RestorePhotosOnly(cmd.Context(), files, archive.MatchPrefixedKey, progressPrinter(cmd, "photos"))
			if err != nil {
				return err
			}
			printPhotoReport(cmd, report)
			return nil
		})
	},
}

func printPhotoReport(cmd *cobra.Command, report archive.PhotoReport) {
	fmt.Fprintf(cmd.OutOrStdout(), "restored %d, skipped %d\n", report.Restored, report.Skipped)
}
