package cmd

import (
	"fmt"

	ET "github.com/IBM/fp-go/v2/either"
	"github.com/spf13/cobra"
)

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download the grant files listed in the bulk data manifest",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()
		res := services.Downloader.FetchFiles(ctx)()
		if ET.IsLeft(res) {
			_, err := ET.UnwrapError(res)
			return fmt.Errorf("download failed: %w", err)
		}
		sizes, _ := ET.UnwrapError(res)
		logger.Infow("Download completed", "files", len(sizes))
		return nil
	},
}
