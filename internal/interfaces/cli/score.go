package cli

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/turtacn/SafeScan/internal/domain/scoring"
	"github.com/turtacn/SafeScan/internal/domain/substance"
	"github.com/turtacn/SafeScan/pkg/errors"
)

type scoreOptions struct {
	file        string
	productName string
	category    string
	confidence  float64
}

func newScoreCmd() *cobra.Command {
	opts := &scoreOptions{}
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Compute the harm score for a set of detections",
		Long: "Compute the harm score offline from a JSON file shaped like the\n" +
			"detection lists of an analysis:\n\n" +
			`  {"allergens": [...], "pfas": [...], "other_concerns": [...]}`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScore(cmd, opts)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.file, "file", "f", "", "detections JSON file (required)")
	f.StringVar(&opts.productName, "product", "", "product name, used for the category multiplier")
	f.StringVar(&opts.category, "category", "", "product category")
	f.Float64Var(&opts.confidence, "confidence", 1.0, "aggregate confidence (0-1)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func runScore(cmd *cobra.Command, opts *scoreOptions) error {
	if opts.confidence < 0 || opts.confidence > 1 {
		return errors.InvalidParam("confidence must be between 0 and 1")
	}
	var detections substance.Detections
	if err := readJSONFile(opts.file, &detections); err != nil {
		return err
	}

	calc := scoring.NewCalculator(nil)
	if cliCtx, err := GetCLIContext(cmd); err == nil {
		calc = scoring.NewCalculator(cliCtx.Logger)
	}
	res := calc.Score(scoring.Input{
		Detections:          detections.Normalized(),
		AggregateConfidence: opts.confidence,
		ProductName:         opts.productName,
		Category:            opts.category,
	})
	return PrintResult(cmd, newScoreView(res))
}

func readJSONFile(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeBadRequest, "failed to read "+path)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "invalid JSON in "+path)
	}
	return nil
}
