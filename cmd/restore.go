package cmd

import (
	"fmt"

	"github.com/deploymenttheory/go-mrimg-restore/internal/config"
	"github.com/deploymenttheory/go-mrimg-restore/internal/logger"
	"github.com/deploymenttheory/go-mrimg-restore/internal/pipeline"
	"github.com/deploymenttheory/go-mrimg-restore/internal/restore"
	"github.com/spf13/cobra"
)

var restoreCmd = &cobra.Command{
	Use:   "restore <backup-file>",
	Short: "Restore every imaged disk of a backup file to raw images",
	Long: `Restore decodes the given backup file, locates the rest of its backup
chain next to it and writes one raw image per imaged disk.

Output images are named from restore.image_name (default disk%d.img)
inside the output directory.`,
	Args: cobra.ExactArgs(1),
	RunE: runRestore,
}

func init() {
	f := restoreCmd.Flags()
	f.StringP("output-dir", "o", config.Instance.Restore.OutputDir, "directory receiving the restored images")
	f.Int("disk", config.Instance.Restore.DiskIndex, "restore only this disk index (-1 for all)")
	f.String("compress", config.Instance.Restore.Compression, "compress the image: none, gzip, bzip2 or xz")
	f.String("digest", config.Instance.Restore.Digest, "write a checksum file: none, sha256 or blake2b")
	f.Bool("mount", config.Instance.Restore.Mount, "attach the image to a loop device (Linux only)")
	f.Int("max-open-files", config.Instance.Restore.MaxOpenFiles, "maximum open source files per partition")

	config.BindFlag("restore.output_dir", f.Lookup("output-dir"))
	config.BindFlag("restore.disk_index", f.Lookup("disk"))
	config.BindFlag("restore.compression", f.Lookup("compress"))
	config.BindFlag("restore.digest", f.Lookup("digest"))
	config.BindFlag("restore.mount", f.Lookup("mount"))
	config.BindFlag("restore.max_open_files", f.Lookup("max-open-files"))
}

func runRestore(cmd *cobra.Command, args []string) error {
	s := pipeline.SettingsFromConfig(&config.Instance)
	s.Progress = logProgress

	logger.LogInfo("Restoring backup", map[string]interface{}{
		"backup":     args[0],
		"output_dir": s.OutputDir,
		"disk":       s.DiskIndex,
	})

	jobs, err := pipeline.Run(args[0], s)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, job := range jobs {
		fmt.Fprintf(out, "disk %d -> %s", job.Disk, job.ImagePath)
		if job.Result != nil {
			fmt.Fprintf(out, " (%d blocks, %d bytes)", job.Result.BlocksWritten, job.Result.BytesWritten)
		}
		fmt.Fprintln(out)
		if job.Digest != "" {
			fmt.Fprintf(out, "  %s %s\n", s.Digest, job.Digest)
		}
		if job.Archive != "" {
			fmt.Fprintf(out, "  archive %s\n", job.Archive)
		}
		if job.Device != "" {
			fmt.Fprintf(out, "  attached %s\n", job.Device)
		}
	}
	return nil
}

func logProgress(p restore.Progress) {
	percent := 100.0
	if p.BlocksTotal > 0 {
		percent = float64(p.BlocksDone) * 100 / float64(p.BlocksTotal)
	}
	logger.LogInfo(fmt.Sprintf("Partition %d/%d: %.1f%%", p.Partition+1, p.Partitions, percent),
		map[string]interface{}{
			"disk":             p.Disk,
			"partition_number": p.PartitionNumber,
			"blocks_done":      p.BlocksDone,
			"blocks_total":     p.BlocksTotal,
			"bytes_written":    p.BytesWritten,
		})
}
