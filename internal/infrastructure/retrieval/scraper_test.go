package retrieval

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/turtacn/SafeScan/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/SafeScan/pkg/errors"
)

type ScraperTestSuite struct {
	suite.Suite
	server    *httptest.Server
	scraper   *HTTPScraper
	body      atomic.Value
	status    atomic.Int32
	userAgent atomic.Value
}

func (s *ScraperTestSuite) SetupTest() {
	s.body.Store(productFixture)
	s.status.Store(http.StatusOK)
	s.userAgent.Store("")
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.userAgent.Store(r.Header.Get("User-Agent"))
		w.WriteHeader(int(s.status.Load()))
		w.Write([]byte(s.body.Load().(string)))
	}))

	var err error
	s.scraper, err = NewHTTPScraper(ScraperConfig{
		UserAgent:   "SafeScanTest/1.0",
		HostPattern: `^127\.0\.0\.1$`,
	}, nil, logging.NewNopLogger())
	s.Require().NoError(err)
}

func (s *ScraperTestSuite) TearDownTest() {
	s.server.Close()
}

func (s *ScraperTestSuite) TestScrape_Success() {
	page, err := s.scraper.Scrape(context.Background(), s.server.URL+"/dp/1", false)
	s.Require().NoError(err)
	s.Equal(MethodScraped, page.Method)
	s.Contains(page.Content, "=== title ===\nGentle Baby Lotion")
	s.Equal(0.2, page.Confidence)
	s.Empty(page.Reviews)
	s.False(page.HasReviews)
	s.Equal("SafeScanTest/1.0", s.userAgent.Load())
}

func (s *ScraperTestSuite) TestScrape_LargePageHighConfidence() {
	s.body.Store(`<div id="productDescription">` + strings.Repeat("safe ingredient ", 200) + `</div>`)

	page, err := s.scraper.Scrape(context.Background(), s.server.URL, false)
	s.Require().NoError(err)
	s.Equal(0.9, page.Confidence)
}

func (s *ScraperTestSuite) TestScrape_WithReviews() {
	s.body.Store(strings.Replace(productFixture, "</body>", reviewsFixture+"</body>", 1))

	page, err := s.scraper.Scrape(context.Background(), s.server.URL, true)
	s.Require().NoError(err)
	s.True(page.HasReviews)
	s.Contains(page.Reviews, "Gave my baby a rash")
	s.NotContains(page.Content, "Gave my baby a rash")
}

func (s *ScraperTestSuite) TestScrape_HTTPErrorIsZeroConfidencePage() {
	s.status.Store(http.StatusServiceUnavailable)

	page, err := s.scraper.Scrape(context.Background(), s.server.URL, false)
	s.Require().NoError(err)
	s.Equal(0.0, page.Confidence)
	s.Equal(MethodFailed, page.Method)
	s.Contains(page.Error, "503")
}

func (s *ScraperTestSuite) TestScrape_CancelledContext() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.scraper.Scrape(ctx, s.server.URL, false)
	s.True(errors.IsCode(err, errors.ErrCodeScrapeFailed))
}

func (s *ScraperTestSuite) TestScrape_UnsupportedHost() {
	_, err := s.scraper.Scrape(context.Background(), "https://www.example.com/p/1", false)
	s.True(errors.IsCode(err, errors.ErrCodeScrapeFailed))
}

func TestScraperTestSuite(t *testing.T) {
	suite.Run(t, new(ScraperTestSuite))
}

func TestNewHTTPScraper_InvalidPattern(t *testing.T) {
	_, err := NewHTTPScraper(ScraperConfig{HostPattern: "("}, nil, nil)
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
}

func TestDefaultHostPattern(t *testing.T) {
	s, err := NewHTTPScraper(ScraperConfig{}, nil, nil)
	require.NoError(t, err)
	assert.True(t, s.CanScrape("https://www.amazon.com/dp/B0"))
	assert.True(t, s.CanScrape("https://amazon.co.jp/dp/B0"))
	assert.False(t, s.CanScrape("https://www.amazon.evil.com/dp/B0"))
	assert.False(t, s.CanScrape("https://www.walmart.com/ip/1"))
}

func TestConfidenceForSize(t *testing.T) {
	assert.Equal(t, 0.9, ConfidenceForSize(2049))
	assert.Equal(t, 0.7, ConfidenceForSize(2048))
	assert.Equal(t, 0.5, ConfidenceForSize(1024))
	assert.Equal(t, 0.2, ConfidenceForSize(512))
	assert.Equal(t, 0.2, ConfidenceForSize(0))
}
