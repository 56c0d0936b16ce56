package analysis

import (
	"context"
	"time"

	domain "github.com/turtacn/SafeScan/internal/domain/analysis"
	"github.com/turtacn/SafeScan/internal/domain/substance"
	"github.com/turtacn/SafeScan/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/SafeScan/pkg/errors"
)

// ExtractionState names the path that produced the product data.
type ExtractionState string

const (
	StateClientContent ExtractionState = "client_content"
	StateScraper       ExtractionState = "scraper"
	StateAIFetch       ExtractionState = "ai_fetch"
)

// Default fallback parameters.
const (
	DefaultMinConfidence = 0.3
	DefaultRetryAfter    = 60 * time.Second
)

// ExtractionRequest is the input of the fallback chain.
type ExtractionRequest struct {
	URL             string
	ProductHTML     string
	ReviewsHTML     string
	AllergenProfile []string
	KB              *substance.KnowledgeBase
}

// Extraction is what the chain produced. Product is set for client content
// and scraper states, AI for the AI fetch state. Page is kept whenever a
// page was obtained, even if its extraction fell through.
type Extraction struct {
	State   ExtractionState
	Page    *ScrapedPage
	Product *domain.Product
	AI      *AIAnalysis
	Usage   domain.Usage
}

// FallbackController tries client content, then the scraper, then an AI
// fetch of the URL. Only the last step can end the chain with an error.
type FallbackController struct {
	scraper       Scraper
	content       ContentExtractor
	extractor     ProductExtractor
	analyzer      SafetyAnalyzer
	logger        logging.Logger
	minConfidence float64
	retryAfter    time.Duration
}

// FallbackOption customises a FallbackController.
type FallbackOption func(*FallbackController)

// WithMinConfidence sets the page and extraction confidence gate.
func WithMinConfidence(c float64) FallbackOption {
	return func(f *FallbackController) { f.minConfidence = c }
}

// WithRetryAfter sets the hint used when a rate limit carries none.
func WithRetryAfter(d time.Duration) FallbackOption {
	return func(f *FallbackController) { f.retryAfter = d }
}

// NewFallbackController wires the chain. Any port may be nil; a nil port
// makes its step unavailable.
func NewFallbackController(scraper Scraper, content ContentExtractor, extractor ProductExtractor,
	analyzer SafetyAnalyzer, logger logging.Logger, opts ...FallbackOption) *FallbackController {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	f := &FallbackController{
		scraper:       scraper,
		content:       content,
		extractor:     extractor,
		analyzer:      analyzer,
		logger:        logger.Named("fallback"),
		minConfidence: DefaultMinConfidence,
		retryAfter:    DefaultRetryAfter,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Extract runs the chain for req.
func (f *FallbackController) Extract(ctx context.Context, req ExtractionRequest) Outcome[Extraction] {
	log := f.logger.With(logging.String("url", req.URL))
	var usage domain.Usage

	page, state := f.obtainPage(ctx, req, log)
	if page != nil && page.Confidence >= f.minConfidence && f.extractor != nil {
		product, err := f.extractor.ExtractProduct(ctx, page)
		switch {
		case err != nil || product == nil:
			log.Warn("product extraction failed, falling back to AI fetch", logging.Err(err))
		case product.Confidence < f.minConfidence:
			usage.Add(product.Usage)
			log.Warn("product extraction confidence too low, falling back to AI fetch",
				logging.Float64("confidence", product.Confidence))
		default:
			usage.Add(product.Usage)
			product.Normalize()
			if product.Retailer == "" {
				product.Retailer = page.Retailer
			}
			log.Info("product extracted",
				logging.String("state", string(state)),
				logging.Float64("confidence", product.Confidence),
				logging.Int("ingredients", len(product.Ingredients)),
				logging.Int("materials", len(product.Materials)))
			return Ok(Extraction{State: state, Page: page, Product: product, Usage: usage})
		}
	} else if page != nil {
		log.Warn("page confidence too low", logging.Float64("confidence", page.Confidence))
	}

	if f.analyzer == nil {
		return Failed[Extraction](errors.ErrCodeExtractionExhausted, "failed to extract product data", nil)
	}
	log.Info("fetching product via AI")
	ai, err := f.analyzer.AnalyzeURL(ctx, req.URL, req.AllergenProfile, req.KB)
	if err != nil {
		out := FromError[Extraction](err, f.retryAfter, errors.ErrCodeExtractionExhausted, "failed to extract product data")
		log.Warn("AI fetch failed", logging.String("outcome", out.Kind.String()), logging.Err(err))
		return out
	}
	if ai == nil {
		return Failed[Extraction](errors.ErrCodeExtractionExhausted, "failed to extract product data", nil)
	}
	usage.Add(ai.Usage)
	return Ok(Extraction{State: StateAIFetch, Page: page, AI: ai, Usage: usage})
}

// obtainPage runs state A when client content is present, else state B.
func (f *FallbackController) obtainPage(ctx context.Context, req ExtractionRequest, log logging.Logger) (*ScrapedPage, ExtractionState) {
	if req.ProductHTML != "" && f.content != nil {
		page, err := f.content.ExtractFromRawContent(req.URL, req.ProductHTML, req.ReviewsHTML)
		if err != nil {
			log.Warn("client content extraction failed", logging.Err(err))
			return nil, StateClientContent
		}
		return page, StateClientContent
	}
	if f.scraper == nil {
		return nil, StateScraper
	}
	page, err := f.scraper.Scrape(ctx, req.URL, false)
	if err != nil {
		log.Warn("scrape failed", logging.Err(err))
		return nil, StateScraper
	}
	return page, StateScraper
}
