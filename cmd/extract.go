package cmd

import (
	"fmt"

	ET "github.com/IBM/fp-go/v2/either"
	"github.com/spf13/cobra"
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract downloaded grant archives",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()
		res := services.Extractor.ExtractAll(ctx, cfg.Download.Directory)()
		if ET.IsLeft(res) {
			_, err := ET.UnwrapError(res)
			return fmt.Errorf("extract failed: %w", err)
		}
		logger.Info("Extract completed")
		return nil
	},
}
