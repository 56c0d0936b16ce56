package safety_agent

import (
	"context"
	"strings"

	app "github.com/turtacn/SafeScan/internal/application/analysis"
	"github.com/turtacn/SafeScan/internal/domain/analysis"
	"github.com/turtacn/SafeScan/internal/domain/substance"
	"github.com/turtacn/SafeScan/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/SafeScan/pkg/errors"
)

// Operation labels used in logs and metrics.
const (
	OperationExtractProduct = "extract_product"
	OperationAnalyze        = "analyze_extracted"
	OperationFetch          = "analyze_url"
	OperationReviews        = "extract_reviews"
)

// Defaults applied by NewAgent.
const (
	DefaultExtractionModel   = "gpt-4o-mini"
	DefaultAnalysisModel     = "gpt-4o"
	DefaultFetchModel        = "gpt-4o-search-preview"
	DefaultMinPageConfidence = 0.3
	DefaultMinReviewChars    = 100
)

// Per-operation completion budgets.
const (
	extractionMaxTokens = 2048
	analysisMaxTokens   = 2048
	fetchMaxTokens      = 4096
	reviewsMaxTokens    = 3072
)

// Config selects models and thresholds for the agent.
type Config struct {
	ExtractionModel string
	AnalysisModel   string
	// FetchModel serves AnalyzeURL and must be able to browse.
	FetchModel        string
	MinPageConfidence float64
	MinReviewChars    int
}

// Agent implements product extraction, safety analysis and review insight
// extraction on top of a ChatClient.
type Agent struct {
	chat    *ChatClient
	prompts *PromptManager
	config  Config
	logger  logging.Logger
}

var (
	_ app.ProductExtractor = (*Agent)(nil)
	_ app.SafetyAnalyzer   = (*Agent)(nil)
	_ app.ReviewExtractor  = (*Agent)(nil)
)

// NewAgent builds an Agent. A nil prompts uses the built-in templates.
func NewAgent(chat *ChatClient, prompts *PromptManager, cfg Config, logger logging.Logger) (*Agent, error) {
	if chat == nil {
		return nil, errors.New(errors.ErrCodeAINotConfigured, "chat client is required")
	}
	if prompts == nil {
		var err error
		if prompts, err = NewPromptManager(); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to load prompt templates")
		}
	}
	if cfg.ExtractionModel == "" {
		cfg.ExtractionModel = DefaultExtractionModel
	}
	if cfg.AnalysisModel == "" {
		cfg.AnalysisModel = DefaultAnalysisModel
	}
	if cfg.FetchModel == "" {
		cfg.FetchModel = DefaultFetchModel
	}
	if cfg.MinPageConfidence <= 0 {
		cfg.MinPageConfidence = DefaultMinPageConfidence
	}
	if cfg.MinReviewChars <= 0 {
		cfg.MinReviewChars = DefaultMinReviewChars
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Agent{
		chat:    chat,
		prompts: prompts,
		config:  cfg,
		logger:  logger.Named("safety_agent"),
	}, nil
}

// ExtractProduct turns page text into structured product data. A page under
// the confidence gate, a refused or truncated answer, and unparseable output
// all yield a zero-confidence product rather than an error so the caller can
// fall back.
func (a *Agent) ExtractProduct(ctx context.Context, page *app.ScrapedPage) (*analysis.Product, error) {
	if page == nil {
		return nil, errors.InvalidParam("page is required")
	}
	log := a.logger.With(logging.String("url", page.URL))
	if page.Confidence < a.config.MinPageConfidence {
		log.Warn("low confidence page, skipping extraction", logging.Float64("confidence", page.Confidence))
		return failedProduct("Scraping failed"), nil
	}

	data := PromptData{URL: page.URL, Retailer: page.Retailer, Content: page.Content}
	system, user, err := a.prompts.renderPair(TemplateExtractionSystem, TemplateExtractionUser, data)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to render extraction prompt")
	}
	log.Info("extracting product data", logging.Int("content_bytes", len(page.Content)))

	comp, err := a.chat.Complete(ctx, chatRequest{
		Operation: OperationExtractProduct,
		Model:     a.config.ExtractionModel,
		System:    system,
		User:      user,
		MaxTokens: extractionMaxTokens,
		JSONMode:  true,
	})
	if err != nil {
		return nil, err
	}

	var product *analysis.Product
	switch {
	case comp.Refused():
		log.Warn("extraction refused by model")
		product = failedProduct("Extraction refused by model")
	case comp.Truncated():
		log.Warn("extraction response truncated")
		product = failedProduct("Response truncated")
	default:
		product = ParseProduct(comp.Text)
		if product.Error != "" {
			log.Error("extraction output unusable",
				logging.String("error", product.Error),
				logging.String("preview", preview(comp.Text)))
		}
	}
	product.Usage = comp.Usage
	if product.Retailer == "" {
		product.Retailer = page.Retailer
	}
	log.Info("product data extracted",
		logging.String("product", product.ProductName),
		logging.Int("ingredients", len(product.Ingredients)),
		logging.Int("materials", len(product.Materials)),
		logging.Float64("confidence", product.Confidence))
	return product, nil
}

// AnalyzeExtracted runs the safety analysis on already extracted data.
func (a *Agent) AnalyzeExtracted(ctx context.Context, product *analysis.Product, allergenProfile []string, kb *substance.KnowledgeBase) (*app.AIAnalysis, error) {
	if product == nil {
		return nil, errors.InvalidParam("product is required")
	}
	data := NewPromptData(kb, allergenProfile)
	data.Product = product
	data.Retailer = product.Retailer
	system, user, err := a.prompts.renderPair(TemplateAnalysisSystem, TemplateAnalysisUser, data)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to render analysis prompt")
	}
	a.logger.Info("running safety analysis", logging.String("product", product.ProductName))

	return a.analyze(ctx, chatRequest{
		Operation: OperationAnalyze,
		Model:     a.config.AnalysisModel,
		System:    system,
		User:      user,
		MaxTokens: analysisMaxTokens,
		JSONMode:  true,
	})
}

// AnalyzeURL asks the fetch model to retrieve and analyse the page itself.
func (a *Agent) AnalyzeURL(ctx context.Context, productURL string, allergenProfile []string, kb *substance.KnowledgeBase) (*app.AIAnalysis, error) {
	if strings.TrimSpace(productURL) == "" {
		return nil, errors.InvalidParam("product URL is required")
	}
	data := NewPromptData(kb, allergenProfile)
	data.URL = productURL
	system, user, err := a.prompts.renderPair(TemplateFetchSystem, TemplateFetchUser, data)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to render fetch prompt")
	}
	a.logger.Info("running safety analysis with page fetch", logging.String("url", productURL))

	// Search-enabled models do not accept a response format.
	return a.analyze(ctx, chatRequest{
		Operation: OperationFetch,
		Model:     a.config.FetchModel,
		System:    system,
		User:      user,
		MaxTokens: fetchMaxTokens,
	})
}

func (a *Agent) analyze(ctx context.Context, req chatRequest) (*app.AIAnalysis, error) {
	comp, err := a.chat.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	var result *app.AIAnalysis
	if comp.Refused() {
		result = unknownAnalysis(missingConfidence, "Analysis refused by model")
	} else {
		result = ParseAnalysis(comp.Text)
	}
	result.Usage = comp.Usage

	if result.Error != "" {
		a.logger.Error("analysis output unusable",
			logging.String("operation", req.Operation),
			logging.String("error", result.Error),
			logging.String("preview", preview(comp.Text)))
		return result, nil
	}
	if result.ProductName == "" || result.ProductName == analysis.UnknownValue {
		a.logger.Warn("analysis returned no product name",
			logging.String("operation", req.Operation),
			logging.String("preview", preview(comp.Text)))
	}
	a.logger.Info("safety analysis completed",
		logging.String("operation", req.Operation),
		logging.String("product", result.ProductName),
		logging.Int("allergens", len(result.Allergens)),
		logging.Int("pfas", len(result.PFAS)),
		logging.Int("other_concerns", len(result.OtherConcerns)),
		logging.Float64("confidence", result.Confidence))
	return result, nil
}

// ExtractReviews derives consumer insights from review text. A page without
// enough review text is ErrCodeReviewsNotFound.
func (a *Agent) ExtractReviews(ctx context.Context, page *app.ScrapedPage) (*analysis.ReviewInsights, error) {
	if page == nil || !page.HasReviews || len(page.Reviews) < a.config.MinReviewChars {
		return nil, errors.New(errors.ErrCodeReviewsNotFound, "No reviews available")
	}
	log := a.logger.With(logging.String("url", page.URL))

	data := PromptData{URL: page.URL, Retailer: page.Retailer, Reviews: page.Reviews}
	system, user, err := a.prompts.renderPair(TemplateReviewsSystem, TemplateReviewsUser, data)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to render review prompt")
	}
	log.Info("extracting review insights", logging.Int("reviews_bytes", len(page.Reviews)))

	comp, err := a.chat.Complete(ctx, chatRequest{
		Operation: OperationReviews,
		Model:     a.config.ExtractionModel,
		System:    system,
		User:      user,
		MaxTokens: reviewsMaxTokens,
		JSONMode:  true,
	})
	if err != nil {
		return nil, err
	}
	switch {
	case comp.Refused():
		return nil, errors.New(errors.ErrCodeAIMalformedOutput, "review extraction refused by model")
	case comp.Truncated():
		return nil, errors.New(errors.ErrCodeAIMalformedOutput, "review extraction response truncated")
	}

	insights, err := ParseReviewInsights(comp.Text)
	if err != nil {
		log.Error("review output unusable", logging.Err(err), logging.String("preview", preview(comp.Text)))
		return nil, err
	}
	insights.ProductURL = page.URL
	insights.Usage = comp.Usage
	log.Info("review insights extracted",
		logging.Int("complaints", len(insights.CommonComplaints)),
		logging.Int("health_concerns", len(insights.HealthConcerns)),
		logging.Float64("confidence", insights.Confidence))
	return insights, nil
}
