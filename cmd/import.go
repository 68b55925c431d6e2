package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/topper-enrich/internal/model"
)

var importFile string

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Bulk load toppers from a JSON or YAML file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		toppers, err := readToppers(importFile)
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := st.InsertToppers(ctx, toppers)
		if err != nil {
			return eris.Wrap(err, "import toppers")
		}

		zap.L().Info("import complete",
			zap.Int64("inserted", n),
			zap.String("file", importFile),
		)
		return nil
	},
}

// readToppers decodes a list of toppers. JSON is valid YAML, so one decoder
// handles both formats.
func readToppers(path string) ([]model.Topper, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read %s", path)
	}

	var toppers []model.Topper
	if err := yaml.Unmarshal(data, &toppers); err != nil {
		return nil, eris.Wrapf(err, "parse %s", path)
	}
	return toppers, nil
}

func init() {
	importCmd.Flags().StringVar(&importFile, "file", "", "path to a JSON or YAML list of toppers (required)")
	_ = importCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(importCmd)
}
