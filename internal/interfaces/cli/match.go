package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/turtacn/SafeScan/internal/bootstrap"
	"github.com/turtacn/SafeScan/internal/config"
	"github.com/turtacn/SafeScan/internal/domain/substance"
	"github.com/turtacn/SafeScan/internal/infrastructure/database/postgres/repositories"
	"github.com/turtacn/SafeScan/pkg/errors"
)

type matchOptions struct {
	ingredients string
	materials   string
	kbFile      string
	threshold   float64
}

// knowledgeBaseFile is the on-disk shape accepted by --kb.
type knowledgeBaseFile struct {
	Allergens []substance.Record `json:"allergens"`
	PFAS      []substance.Record `json:"pfas"`
}

func newMatchCmd() *cobra.Command {
	opts := &matchOptions{}
	cmd := &cobra.Command{
		Use:   "match",
		Short: "Match ingredients and materials against the knowledge base",
		Long: "Run database matching only, without scraping or AI. The knowledge base\n" +
			"comes from --kb, or from PostgreSQL when storage.mode is postgres.",
		Example: `  safescan match --ingredients "water, peanut oil, PTFE coating" --kb kb.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMatch(cmd, opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.ingredients, "ingredients", "", "comma-separated ingredients")
	f.StringVar(&opts.materials, "materials", "", "comma-separated materials")
	f.StringVar(&opts.kbFile, "kb", "", `knowledge base JSON file {"allergens": [...], "pfas": [...]}`)
	f.Float64Var(&opts.threshold, "threshold", 0, "fuzzy-match threshold (0-1); defaults to the configured value")
	return cmd
}

func runMatch(cmd *cobra.Command, opts *matchOptions) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	ingredients := splitList(opts.ingredients)
	materials := splitList(opts.materials)
	if len(ingredients) == 0 && len(materials) == 0 {
		return errors.InvalidParam("--ingredients or --materials is required")
	}

	ctx, cancel := commandContext(cmd, cliCtx)
	defer cancel()

	kb, err := loadKnowledgeBase(ctx, cliCtx, opts.kbFile)
	if err != nil {
		return err
	}
	if kb.IsEmpty() {
		return errors.New(errors.ErrCodeKBUnavailable, "knowledge base is empty; pass --kb or use postgres storage")
	}

	threshold := opts.threshold
	if threshold == 0 {
		threshold = cliCtx.Config.Matcher.SimilarityThreshold
	}
	res := substance.NewMatcher(threshold).MatchProduct(ingredients, materials, kb)
	return PrintResult(cmd, matchView{MatchResult: res})
}

func loadKnowledgeBase(ctx context.Context, cliCtx *CLIContext, path string) (*substance.KnowledgeBase, error) {
	if path != "" {
		var f knowledgeBaseFile
		if err := readJSONFile(path, &f); err != nil {
			return nil, err
		}
		return substance.NewKnowledgeBase(f.Allergens, f.PFAS), nil
	}
	if cliCtx.Config.Storage.Mode != config.StorageModePostgres {
		return substance.EmptyKnowledgeBase(), nil
	}

	conn, err := bootstrap.OpenPostgres(cliCtx.Config.Database, cliCtx.Logger)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	return substance.LoadKnowledgeBase(ctx, repositories.NewKnowledgeBaseRepo(conn, cliCtx.Logger))
}
