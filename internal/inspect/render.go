package inspect

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	imgerrors "github.com/deploymenttheory/go-mrimg-restore/internal/utils/errors"
	"github.com/deploymenttheory/go-mrimg-restore/internal/utils/fsutil"
	"github.com/deploymenttheory/go-mrimg-restore/internal/utils/jsonutil"
	"github.com/deploymenttheory/go-mrimg-restore/internal/utils/plistutil"
)

// Output formats
const (
	FormatSummary = "summary"
	FormatJSON    = "json"
	FormatPlist   = "plist"
)

// Render writes the report in the named format
func Render(w io.Writer, r *Report, format string) error {
	switch format {
	case FormatSummary, "":
		return renderSummary(w, r)
	case FormatJSON:
		return jsonutil.Encode(w, r)
	case FormatPlist:
		return plistutil.Encode(w, r, plistutil.FormatXML)
	default:
		return imgerrors.NewImageError(imgerrors.ErrInvalidArgument, "Render", "", -1,
			fmt.Sprintf("unknown output format %q", format))
	}
}

// WriteFile saves the report to path in the named format
func WriteFile(path string, r *Report, format string) error {
	switch format {
	case FormatJSON:
		return jsonutil.WriteJSON(path, r)
	case FormatPlist:
		return plistutil.WritePlist(path, r, plistutil.FormatXML)
	case FormatSummary, "":
	default:
		return imgerrors.NewImageError(imgerrors.ErrInvalidArgument, "WriteReport", path, -1,
			fmt.Sprintf("unknown output format %q", format))
	}

	if err := fsutil.CreateDirIfNotExists(filepath.Dir(path)); err != nil {
		return imgerrors.NewImageError(imgerrors.Wrap(imgerrors.ErrIO, err), "WriteReport", path, -1, "")
	}
	f, err := os.Create(path)
	if err != nil {
		return imgerrors.NewImageError(imgerrors.Wrap(imgerrors.ErrIO, err), "WriteReport", path, -1, "")
	}
	defer f.Close()

	if err := renderSummary(f, r); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return imgerrors.NewImageError(imgerrors.Wrap(imgerrors.ErrIO, err), "WriteReport", path, -1, "")
	}
	return nil
}

func renderSummary(w io.Writer, r *Report) error {
	kind := "full"
	if r.Incremental {
		kind = "incremental"
	}
	fmt.Fprintf(w, "%s\n", r.Path)
	fmt.Fprintf(w, "  backup %s  file %d (%s)", r.BackupGUID, r.FileNumber, kind)
	if r.BackupTime != "" {
		fmt.Fprintf(w, "  taken %s", r.BackupTime)
	}
	fmt.Fprintln(w)
	if r.Encrypted {
		fmt.Fprintln(w, "  payload encryption enabled, restore output will not be usable")
	}

	for _, d := range r.Disks {
		fmt.Fprintf(w, "\nDisk %d: %s %d bytes, %d bytes/sector, track 0 %d bytes\n",
			d.Index, d.Format, d.SizeBytes, d.BytesPerSector, d.Track0Bytes)

		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "  PART\tFS\tDRIVE\tSTART\tLENGTH\tBLOCK\tENTRIES\tCHAIN")
		for _, p := range d.Partitions {
			chain := "-"
			switch {
			case p.ChainError != "":
				chain = "error: " + p.ChainError
			case len(p.Chain) > 0:
				chain = strings.Join(p.Chain, " -> ")
			}
			fmt.Fprintf(tw, "  %d\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
				p.Number, p.FileSystem, p.DriveLetter, p.Start, p.Length, p.BlockSize, p.IndexEntries, chain)
		}
		if err := tw.Flush(); err != nil {
			return imgerrors.Wrap(imgerrors.ErrIO, err)
		}
	}
	return nil
}
