package cli

import (
	"context"
	"os"
	"strings"

	"github.com/spf13/cobra"

	app "github.com/turtacn/SafeScan/internal/application/analysis"
	"github.com/turtacn/SafeScan/internal/bootstrap"
	"github.com/turtacn/SafeScan/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/SafeScan/pkg/errors"
)

type analyzeOptions struct {
	url         string
	htmlFile    string
	reviewsFile string
	allergens   string
	force       bool
}

func newAnalyzeCmd() *cobra.Command {
	opts := &analyzeOptions{}
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze a product page for harmful substances",
		Long: "Analyze a product URL. Without --server the pipeline runs in-process with\n" +
			"the configured stores and AI credentials. Saved page HTML can be passed\n" +
			"with --html to skip scraping.",
		Example: "  safescan analyze --url https://shop.example.com/p/123\n" +
			"  safescan analyze --url https://shop.example.com/p/123 --html page.html --allergens peanut,latex\n" +
			"  safescan analyze --server http://localhost:8080 --url https://shop.example.com/p/123 -o json",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.url, "url", "", "product page URL (required)")
	f.StringVar(&opts.htmlFile, "html", "", "file with the product page HTML")
	f.StringVar(&opts.reviewsFile, "reviews-html", "", "file with the reviews page HTML")
	f.StringVar(&opts.allergens, "allergens", "", "comma-separated allergen profile")
	f.BoolVar(&opts.force, "force", false, "bypass cached analyses")
	_ = cmd.MarkFlagRequired("url")
	return cmd
}

func runAnalyze(cmd *cobra.Command, opts *analyzeOptions) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	req, err := opts.request()
	if err != nil {
		return err
	}

	ctx, cancel := commandContext(cmd, cliCtx)
	defer cancel()

	var resp *app.AnalyzeResponse
	if cliCtx.Remote() {
		c, err := cliCtx.Client()
		if err != nil {
			return err
		}
		resp, err = c.Analyze(ctx, req)
		if err != nil {
			return err
		}
	} else {
		resp, err = analyzeLocal(ctx, cliCtx, req)
		if err != nil {
			return err
		}
	}
	return PrintResult(cmd, analysisView{resp: resp})
}

func analyzeLocal(ctx context.Context, cliCtx *CLIContext, req *app.AnalyzeRequest) (*app.AnalyzeResponse, error) {
	a, err := bootstrap.New(ctx, cliCtx.Config, cliCtx.Logger)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := a.Close(); err != nil {
			cliCtx.Logger.Warn("shutdown incomplete", logging.Err(err))
		}
	}()
	return a.Analysis.Analyze(ctx, req)
}

func (o *analyzeOptions) request() (*app.AnalyzeRequest, error) {
	req := &app.AnalyzeRequest{
		URL:             strings.TrimSpace(o.url),
		ForceRefresh:    o.force,
		AllergenProfile: splitList(o.allergens),
	}
	if err := app.ValidateProductURL(req.URL); err != nil {
		return nil, err
	}
	var err error
	if req.ProductHTML, err = readOptionalFile(o.htmlFile); err != nil {
		return nil, err
	}
	if req.ReviewsHTML, err = readOptionalFile(o.reviewsFile); err != nil {
		return nil, err
	}
	return req, nil
}

func readOptionalFile(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeBadRequest, "failed to read "+path)
	}
	return string(data), nil
}

// splitList splits a comma-separated flag and drops empty items.
func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
