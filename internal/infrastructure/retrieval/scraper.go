package retrieval

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/turtacn/SafeScan/internal/application/analysis"
	"github.com/turtacn/SafeScan/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/SafeScan/pkg/errors"
)

const (
	MethodScraped = "scraped_html"
	MethodFailed  = "failed"

	DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	DefaultHostPattern = `(?i)(^|\.)amazon\.(com|ca|co\.uk|de|fr|it|es|com\.au|co\.jp)$`
)

// ScraperConfig holds page retrieval parameters.
type ScraperConfig struct {
	UserAgent    string
	Timeout      time.Duration
	MaxBodyBytes int64
	// HostPattern selects the hosts whose page layout the selectors know.
	HostPattern string
}

// HTTPScraper fetches product pages over plain HTTP and runs them through
// the section extractor.
type HTTPScraper struct {
	client    *http.Client
	extractor *Extractor
	config    ScraperConfig
	hosts     *regexp.Regexp
	logger    logging.Logger
}

// NewHTTPScraper builds a scraper. An invalid HostPattern is an error.
func NewHTTPScraper(cfg ScraperConfig, extractor *Extractor, logger logging.Logger) (*HTTPScraper, error) {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 8 << 20
	}
	if cfg.HostPattern == "" {
		cfg.HostPattern = DefaultHostPattern
	}
	hosts, err := regexp.Compile(cfg.HostPattern)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeValidation, "invalid scraper host pattern")
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if extractor == nil {
		extractor = NewExtractor(logger)
	}
	return &HTTPScraper{
		client:    &http.Client{Timeout: cfg.Timeout},
		extractor: extractor,
		config:    cfg,
		hosts:     hosts,
		logger:    logger.Named("scraper"),
	}, nil
}

// CanScrape reports whether the URL's host is one the selectors support.
func (s *HTTPScraper) CanScrape(productURL string) bool {
	u, err := url.Parse(productURL)
	if err != nil {
		return false
	}
	return s.hosts.MatchString(u.Hostname())
}

// Scrape fetches productURL. Unsupported hosts and cancelled contexts are
// errors; fetch and parse failures come back as a zero-confidence page so
// the caller falls through to the next extraction path.
func (s *HTTPScraper) Scrape(ctx context.Context, productURL string, includeReviews bool) (*analysis.ScrapedPage, error) {
	if !s.CanScrape(productURL) {
		return nil, errors.New(errors.ErrCodeScrapeFailed, "no scraper for this host").WithDetail(productURL)
	}

	start := time.Now()
	doc, err := s.fetch(ctx, productURL)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.Wrap(ctx.Err(), errors.ErrCodeScrapeFailed, "scrape cancelled")
		}
		s.logger.Warn("scrape failed", logging.String("url", productURL), logging.Err(err))
		return s.failed(productURL, err), nil
	}

	var reviews string
	if includeReviews {
		reviews = ReviewsText(doc)
	}
	content := ProductText(doc)

	page := &analysis.ScrapedPage{
		URL:        productURL,
		Content:    content,
		Reviews:    reviews,
		Retailer:   RetailerFromURL(productURL),
		Confidence: ConfidenceForSize(len(content)),
		HasReviews: includeReviews && len(reviews) > hasReviewsMinChars,
		Method:     MethodScraped,
	}
	s.logger.Info("page scraped",
		logging.String("url", productURL),
		logging.Int("content_bytes", len(content)),
		logging.Int("review_bytes", len(reviews)),
		logging.Float64("confidence", page.Confidence),
		logging.Duration("elapsed", time.Since(start)))
	return page, nil
}

// ConfidenceForSize grades extracted product text by its length in bytes.
func ConfidenceForSize(n int) float64 {
	switch {
	case n > 2048:
		return 0.9
	case n > 1024:
		return 0.7
	case n > 512:
		return 0.5
	default:
		return 0.2
	}
}

func (s *HTTPScraper) fetch(ctx context.Context, productURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, productURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", s.config.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, s.config.MaxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return doc, nil
}

func (s *HTTPScraper) failed(productURL string, err error) *analysis.ScrapedPage {
	return &analysis.ScrapedPage{
		URL:        productURL,
		Retailer:   RetailerFromURL(productURL),
		Confidence: 0,
		Method:     MethodFailed,
		Error:      err.Error(),
	}
}
