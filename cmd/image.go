package cmd

import (
	"fmt"

	"github.com/deploymenttheory/go-mrimg-restore/internal/config"
	"github.com/deploymenttheory/go-mrimg-restore/internal/pipeline"
	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <image>",
	Short: "Check a restored image against its checksum file",
	Long: `Verify hashes a restored image and compares it with the checksum file
written by restore --digest (<image>.sha256 or <image>.blake2b).`,
	Args: cobra.ExactArgs(1),
	RunE: runVerify,
}

var extractCmd = &cobra.Command{
	Use:   "extract <archive>",
	Short: "Decompress an image archive written by restore --compress",
	Args:  cobra.ExactArgs(1),
	RunE:  runExtract,
}

func init() {
	verifyCmd.Flags().String("digest", "", "digest algorithm: sha256 or blake2b (default restore.digest, else sha256)")
	verifyCmd.Flags().String("checksum-file", "", "checksum file (default <image>.<digest>)")

	extractCmd.Flags().StringP("output", "o", "", "output image (default: archive name without its extension)")
	extractCmd.Flags().String("format", "auto", "archive format: auto, gzip, bzip2 or xz")
}

func runVerify(cmd *cobra.Command, args []string) error {
	digest, _ := cmd.Flags().GetString("digest")
	if digest == "" {
		digest = config.Instance.Restore.Digest
	}
	checksumFile, _ := cmd.Flags().GetString("checksum-file")

	if err := pipeline.VerifyImage(args[0], digest, checksumFile); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: OK\n", args[0])
	return nil
}

func runExtract(cmd *cobra.Command, args []string) error {
	output, _ := cmd.Flags().GetString("output")
	format, _ := cmd.Flags().GetString("format")

	image, err := pipeline.ExtractImage(args[0], output, format)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", args[0], image)
	return nil
}
