package analysis

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	domain "github.com/turtacn/SafeScan/internal/domain/analysis"
	"github.com/turtacn/SafeScan/internal/domain/scoring"
	"github.com/turtacn/SafeScan/internal/domain/substance"
	"github.com/turtacn/SafeScan/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/SafeScan/pkg/errors"
)

// Archive kinds.
const (
	ArchivePageText    = "page"
	ArchiveProductHTML = "product_html"
	ArchiveReviewsHTML = "reviews_html"
)

const defaultBackgroundTimeout = 30 * time.Second

// ---------------------------------------------------------------------------
// Request / response
// ---------------------------------------------------------------------------

// AnalyzeRequest asks for the safety analysis of one product URL.
type AnalyzeRequest struct {
	URL             string   `json:"url"`
	AllergenProfile []string `json:"allergen_profile,omitempty"`
	ForceRefresh    bool     `json:"force_refresh,omitempty"`
	ProductHTML     string   `json:"product_html,omitempty"`
	ReviewsHTML     string   `json:"reviews_html,omitempty"`
}

// AnalyzeResponse wraps the analysis with cache metadata.
type AnalyzeResponse struct {
	Analysis        *domain.Result `json:"analysis"`
	Cached          bool           `json:"cached"`
	CacheAgeSeconds *int64         `json:"cache_age_seconds"`
	URLFingerprint  string         `json:"url_fingerprint"`
	ReviewsIndexed  int            `json:"reviews_indexed"`
	RiskLevel       string         `json:"risk_level"`
	DisplayRisk     string         `json:"display_risk"`
}

// ---------------------------------------------------------------------------
// Service
// ---------------------------------------------------------------------------

// Service analyzes product URLs.
type Service interface {
	Analyze(ctx context.Context, req *AnalyzeRequest) (*AnalyzeResponse, error)
	// Wait blocks until background archive and indexing work has finished.
	Wait()
}

// Deps holds the collaborators of Service. Only Controller, Matcher,
// Validator and Calculator are required.
type Deps struct {
	Cache             *CacheGateway
	KnowledgeBase     substance.KnowledgeBaseStore
	Controller        *FallbackController
	Matcher           *substance.Matcher
	Analyzer          SafetyAnalyzer
	Validator         *Validator
	Calculator        *scoring.Calculator
	Content           ContentExtractor
	Archive           ContentArchive
	Reviews           ReviewIndex
	SearchLog         domain.SearchLog
	Metrics           Metrics
	Logger            logging.Logger
	BackgroundTimeout time.Duration
}

type serviceImpl struct {
	cache      *CacheGateway
	kbStore    substance.KnowledgeBaseStore
	controller *FallbackController
	matcher    *substance.Matcher
	analyzer   SafetyAnalyzer
	validator  *Validator
	calculator *scoring.Calculator
	content    ContentExtractor
	archive    ContentArchive
	reviews    ReviewIndex
	searchLog  domain.SearchLog
	metrics    Metrics
	logger     logging.Logger
	bgTimeout  time.Duration
	now        func() time.Time
	wg         sync.WaitGroup
}

// NewService creates the analysis Service.
func NewService(deps Deps) Service {
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = nopMetrics{}
	}
	timeout := deps.BackgroundTimeout
	if timeout <= 0 {
		timeout = defaultBackgroundTimeout
	}
	cache := deps.Cache
	if cache == nil {
		cache = NewCacheGateway(nil, nil, logger, metrics)
	}
	return &serviceImpl{
		cache:      cache,
		kbStore:    deps.KnowledgeBase,
		controller: deps.Controller,
		matcher:    deps.Matcher,
		analyzer:   deps.Analyzer,
		validator:  deps.Validator,
		calculator: deps.Calculator,
		content:    deps.Content,
		archive:    deps.Archive,
		reviews:    deps.Reviews,
		searchLog:  deps.SearchLog,
		metrics:    metrics,
		logger:     logger.Named("analysis"),
		bgTimeout:  timeout,
		now:        time.Now,
	}
}

func (s *serviceImpl) Analyze(ctx context.Context, req *AnalyzeRequest) (*AnalyzeResponse, error) {
	if req == nil {
		return nil, errors.InvalidParam("request cannot be nil")
	}
	productURL := strings.TrimSpace(req.URL)
	if err := ValidateProductURL(productURL); err != nil {
		return nil, err
	}

	fp := domain.Fingerprint(productURL)
	log := s.logger.With(logging.String("url", productURL), logging.String("fingerprint", fp))
	tracker := NewStageTracker(s.now, func(st Stage, d time.Duration) {
		s.metrics.ObserveStage(st.String(), d)
	})

	if !req.ForceRefresh {
		if cached, ok := s.cache.Lookup(ctx, fp); ok {
			if err := tracker.Advance(StageDone); err != nil {
				return nil, err
			}
			log.Info("returning cached analysis", logging.String("tier", cached.Tier), logging.Duration("age", cached.Age))
			s.logSearch(ctx, productURL, fp, log)
			s.metrics.IncAnalysis("cached")
			age := int64(cached.Age.Seconds())
			return s.respond(cached.Result, true, &age, fp, 0), nil
		}
	}

	result, page, err := s.run(ctx, req, productURL, fp, tracker, log)
	if err != nil {
		tracker.Fail()
		s.metrics.IncAnalysis(failureOutcome(err))
		return nil, err
	}

	if err := tracker.Advance(StagePersist); err != nil {
		return nil, err
	}
	// The stored copy already counts as done.
	result.Stages = append(tracker.Visited(), StageDone.String())
	s.cache.Store(ctx, fp, productURL, result)
	if err := tracker.Advance(StageDone); err != nil {
		return nil, err
	}

	s.logSearch(ctx, productURL, fp, log)
	reviewsIndexed := s.indexReviews(ctx, req, productURL, fp, log)
	s.archiveContent(ctx, req, page, fp)

	s.metrics.IncAnalysis(string(result.Method))
	log.Info("analysis complete",
		logging.String("method", string(result.Method)),
		logging.Int("harm_score", result.HarmScore),
		logging.Int("allergens", len(result.Allergens)),
		logging.Int("pfas", len(result.PFAS)),
		logging.Int("other_concerns", len(result.OtherConcerns)),
		logging.Int("tokens", result.Usage.Total()))
	return s.respond(result, false, nil, fp, reviewsIndexed), nil
}

func (s *serviceImpl) Wait() { s.wg.Wait() }

// run executes Extraction through Scoring.
func (s *serviceImpl) run(ctx context.Context, req *AnalyzeRequest, productURL, fp string, tracker *StageTracker, log logging.Logger) (*domain.Result, *ScrapedPage, error) {
	if err := tracker.Advance(StageExtraction); err != nil {
		return nil, nil, err
	}
	kb := s.loadKnowledgeBase(ctx, log)
	out := s.controller.Extract(ctx, ExtractionRequest{
		URL:             productURL,
		ProductHTML:     req.ProductHTML,
		ReviewsHTML:     req.ReviewsHTML,
		AllergenProfile: req.AllergenProfile,
		KB:              kb,
	})
	if !out.IsOK() {
		log.Warn("extraction exhausted", logging.String("outcome", out.Kind.String()), logging.String("reason", out.Reason))
		return nil, nil, out.AsError()
	}
	ex := out.Value
	usage := ex.Usage

	if err := tracker.Advance(StageMatching); err != nil {
		return nil, nil, err
	}
	var match substance.MatchResult
	if ex.Product != nil {
		match = s.matcher.MatchProduct(ex.Product.Ingredients, ex.Product.Materials, kb)
	} else {
		match = s.matcher.Match(ex.AI.Ingredients, kb)
	}
	log.Debug("database matching done",
		logging.Int("allergens", len(match.Allergens)),
		logging.Int("pfas", len(match.PFAS)),
		logging.Float64("confidence", match.Confidence))

	if err := tracker.Advance(StageEnrichment); err != nil {
		return nil, nil, err
	}
	ai := ex.AI
	method := domain.MethodAIFetch
	note := ""
	if ex.Product != nil {
		method = domain.MethodAIEnriched
		enriched, reason := s.enrich(ctx, ex.Product, req.AllergenProfile, kb, log)
		if enriched != nil {
			ai = enriched
			usage.Add(enriched.Usage)
		} else {
			method = domain.MethodDatabaseOnly
			note = reason
		}
	}

	if err := tracker.Advance(StageMerge); err != nil {
		return nil, nil, err
	}
	result := s.assemble(productURL, ex, ai, match)
	result.Method = method
	result.Note = note

	if err := tracker.Advance(StageValidation); err != nil {
		return nil, nil, err
	}
	if s.validator != nil {
		result.Detections = s.validator.Validate(ctx, result.Detections, kb, ProductRef{URL: productURL, Name: result.ProductName}).Normalized()
	}

	if err := tracker.Advance(StageScoring); err != nil {
		return nil, nil, err
	}
	score := s.calculator.Score(scoring.Input{
		Detections:          result.Detections,
		AggregateConfidence: result.Confidence,
		ProductName:         result.ProductName,
		Category:            result.Category,
	})
	result.SetHarm(score.HarmScore)
	result.AnalyzedAt = s.now().UTC()
	result.Fingerprint = fp
	result.Usage = usage
	return result, ex.Page, nil
}

// enrich runs the AI analysis on extracted data. On failure it returns the
// note explaining the database-only result.
func (s *serviceImpl) enrich(ctx context.Context, product *domain.Product, profile []string, kb *substance.KnowledgeBase, log logging.Logger) (*AIAnalysis, string) {
	if s.analyzer == nil {
		return nil, domain.NoteAIUnavailable
	}
	ai, err := s.analyzer.AnalyzeExtracted(ctx, product, profile, kb)
	if err == nil && ai != nil {
		return ai, ""
	}
	if _, ok := errors.AsRateLimit(err); ok {
		log.Warn("rate limited during enrichment, using database matches only")
		return nil, domain.NoteRateLimited
	}
	log.Warn("AI enrichment failed, using database matches only", logging.Err(err))
	return nil, domain.NoteAIUnavailable
}

// assemble builds the unscored result. AI detections win on name clashes.
func (s *serviceImpl) assemble(productURL string, ex Extraction, ai *AIAnalysis, match substance.MatchResult) *domain.Result {
	r := &domain.Result{ProductURL: productURL}
	var product domain.Product
	if ex.Product != nil {
		product = *ex.Product
	}
	retailer := product.Retailer
	if retailer == "" && ex.Page != nil {
		retailer = ex.Page.Retailer
	}

	if ai != nil {
		r.ProductName = firstNonEmpty(ai.ProductName, product.ProductName, domain.UnknownProduct)
		r.Brand = firstNonEmpty(ai.Brand, product.Brand, domain.UnknownBrand)
		r.Retailer = firstNonEmpty(ai.Retailer, retailer, domain.UnknownValue)
		r.Category = firstNonEmpty(ai.Category, product.Category)
		r.Ingredients = ai.Ingredients
		if len(r.Ingredients) == 0 {
			r.Ingredients = product.Ingredients
		}
		r.Detections = substance.MergeDetections(match.Detections(), ai.Detections)
		r.Confidence = substance.ClampConfidence(ai.Confidence)
		r.Error = ai.Error
	} else {
		r.ProductName = firstNonEmpty(product.ProductName, domain.UnknownProduct)
		r.Brand = firstNonEmpty(product.Brand, domain.UnknownBrand)
		r.Retailer = firstNonEmpty(retailer, domain.UnknownValue)
		r.Category = product.Category
		r.Ingredients = product.Ingredients
		r.Detections = match.Detections()
		r.Confidence = match.Confidence
	}
	if r.Ingredients == nil {
		r.Ingredients = []string{}
	}
	r.Detections = r.Detections.Normalized()
	return r
}

func (s *serviceImpl) loadKnowledgeBase(ctx context.Context, log logging.Logger) *substance.KnowledgeBase {
	if s.kbStore == nil {
		log.Warn("no knowledge base store configured")
		return substance.EmptyKnowledgeBase()
	}
	kb, err := substance.LoadKnowledgeBase(ctx, s.kbStore)
	if err != nil {
		log.Warn("knowledge base unavailable, continuing with empty knowledge base", logging.Err(err))
		return substance.EmptyKnowledgeBase()
	}
	allergens, pfas := kb.Size()
	log.Debug("knowledge base loaded", logging.Int("allergens", allergens), logging.Int("pfas", pfas))
	return kb
}

func (s *serviceImpl) logSearch(ctx context.Context, productURL, fp string, log logging.Logger) {
	if s.searchLog == nil {
		return
	}
	if err := s.searchLog.LogSearch(ctx, productURL, fp, s.now().UTC()); err != nil {
		log.Warn("search not logged", logging.Err(err))
	}
}

// indexReviews parses client review HTML and indexes it in the background.
// It returns the number of reviews queued.
func (s *serviceImpl) indexReviews(ctx context.Context, req *AnalyzeRequest, productURL, fp string, log logging.Logger) int {
	if req.ReviewsHTML == "" || s.content == nil || s.reviews == nil {
		return 0
	}
	reviews := s.content.ParseReviews(productURL, req.ReviewsHTML)
	if len(reviews) == 0 {
		return 0
	}
	now := s.now().UTC()
	for i := range reviews {
		reviews[i].Fingerprint = fp
		reviews[i].ProductURL = productURL
		reviews[i].IndexedAt = now
		if reviews[i].ID == "" {
			reviews[i].ID = ReviewID(fp, reviews[i].Text)
		}
	}
	s.background(ctx, "index reviews", func(bctx context.Context) error {
		n, err := s.reviews.IndexReviews(bctx, reviews)
		if err == nil {
			log.Info("reviews indexed", logging.Int("count", n))
		}
		return err
	})
	return len(reviews)
}

func (s *serviceImpl) archiveContent(ctx context.Context, req *AnalyzeRequest, page *ScrapedPage, fp string) {
	if s.archive == nil {
		return
	}
	items := map[string]string{
		ArchiveProductHTML: req.ProductHTML,
		ArchiveReviewsHTML: req.ReviewsHTML,
	}
	if page != nil {
		items[ArchivePageText] = page.Content
	}
	for kind, content := range items {
		if content == "" {
			continue
		}
		kind, content := kind, content
		s.background(ctx, "archive "+kind, func(bctx context.Context) error {
			return s.archive.Archive(bctx, fp, kind, []byte(content))
		})
	}
}

// background runs fn detached from the request with its own timeout.
func (s *serviceImpl) background(ctx context.Context, name string, fn func(context.Context) error) {
	bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.bgTimeout)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		if err := fn(bctx); err != nil {
			s.logger.Warn("background task failed", logging.String("task", name), logging.Err(err))
		}
	}()
}

func (s *serviceImpl) respond(r *domain.Result, cached bool, age *int64, fp string, reviewsIndexed int) *AnalyzeResponse {
	return &AnalyzeResponse{
		Analysis:        r,
		Cached:          cached,
		CacheAgeSeconds: age,
		URLFingerprint:  fp,
		ReviewsIndexed:  reviewsIndexed,
		RiskLevel:       r.RiskLevel(),
		DisplayRisk:     r.DisplayRisk(),
	}
}

// ValidateProductURL accepts absolute http(s) URLs with a host.
func ValidateProductURL(raw string) error {
	if raw == "" {
		return errors.New(errors.ErrCodeInvalidProductURL, "url is required")
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New(errors.ErrCodeInvalidProductURL, "invalid product url").WithDetail(raw)
	}
	return nil
}

// ReviewID derives a stable review ID so re-indexing the same text overwrites.
func ReviewID(fingerprint, text string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(fingerprint+"\x00"+text)).String()
}

func failureOutcome(err error) string {
	if _, ok := errors.AsRateLimit(err); ok {
		return OutcomeRateLimited.String()
	}
	return OutcomeFailed.String()
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
