// Package retrieval turns product page HTML into the compact sectioned text
// the AI extraction works from. It serves both HTML captured by the client
// and pages fetched by the scraper.
package retrieval

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/turtacn/SafeScan/internal/application/analysis"
	domain "github.com/turtacn/SafeScan/internal/domain/analysis"
	"github.com/turtacn/SafeScan/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/SafeScan/pkg/errors"
)

const (
	// ClientContentConfidence is the page confidence of HTML the user's own
	// browser session captured.
	ClientContentConfidence = 0.95

	MethodClient = "client"

	// hasReviewsMinChars is how much review text counts as having reviews.
	hasReviewsMinChars = 100
	maxQAChars         = 5000
	minReviewBodyChars = 10
)

type section struct {
	name     string
	selector string
}

var productSections = []section{
	{"title", "#productTitle"},
	{"brand", "#bylineInfo"},
	{"price", ".a-price .a-offscreen, #priceblock_ourprice, #priceblock_dealprice"},
	{"availability", "#availability"},
	{"product_attributes", ".a-section.a-spacing-small.a-spacing-top-small"},
	{"feature_bullets", "#feature-bullets-btf"},
	{"about_item", "#featurebullets_feature_div"},
	{"product_description", "#productDescription"},
	{"aplus_content", "#aplus, #aplus_feature_div"},
	{"detail_bullets", "#detailBullets_feature_div"},
	{"product_info", "#productDetails_techSpec_section_1, #productDetails_detailBullets_sections1"},
}

// excludedSelectors are recommendation, sponsored and navigation blocks.
var excludedSelectors = []string{
	"#similarities_feature_div",
	"#purchase-sims-feature",
	".similarities-widget",
	"[data-component-type='sp-sponsored-products']",
	"#nav-subnav",
	"#navbar",
	"#rhf",
}

const (
	selReview         = "[data-hook='review']"
	selReviewStars    = "[data-hook='review-star-rating'] .a-icon-alt"
	selReviewTitle    = "[data-hook='review-title']"
	selReviewDate     = "[data-hook='review-date']"
	selReviewBody     = "[data-hook='review-collapsed']"
	selReviewBodyFull = "[data-hook='review-body']"
	selReviewVerified = "[data-hook='avp-badge'], [data-hook='avp-badge-linkless']"
	selReviewerName   = ".a-profile-name"
	selReviewVariant  = "[data-hook='format-strip-linkless']"
	selReviewHelpful  = "[data-hook='helpful-vote-statement']"
	selQA             = "#ask-btf, #askATFLink, #ask-lazy-load-feature"
	selHistogram      = "a[aria-label*='percent of reviews']"
)

var (
	whitespaceRe   = regexp.MustCompile(`\s+`)
	titleStarsRe   = regexp.MustCompile(`(?i)^[\d.]+\s+out\s+of\s+\d+\s+stars?\s*`)
	leadingNumRe   = regexp.MustCompile(`^\s*(\d+(?:[.,]\d+)?)`)
	histogramRe    = regexp.MustCompile(`(?i)(\d+)\s*percent.*?(\d+)\s*star`)
	readMoreTailRe = regexp.MustCompile(`Read more\s*$`)
)

// Extractor applies the section selectors. It is stateless and safe for
// concurrent use.
type Extractor struct {
	logger logging.Logger
}

// NewExtractor returns an Extractor.
func NewExtractor(logger logging.Logger) *Extractor {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Extractor{logger: logger.Named("extractor")}
}

// ExtractFromRawContent compresses client-captured HTML into sectioned text.
func (e *Extractor) ExtractFromRawContent(productURL, productHTML, reviewsHTML string) (*analysis.ScrapedPage, error) {
	if strings.TrimSpace(productHTML) == "" {
		return nil, errors.New(errors.ErrCodeValidation, "product HTML is empty")
	}
	doc, err := parse(productHTML)
	if err != nil {
		return nil, err
	}
	content := ProductText(doc)

	var reviews string
	if reviewsHTML != "" {
		rdoc, err := parse(reviewsHTML)
		if err != nil {
			return nil, err
		}
		reviews = ReviewsText(rdoc)
	}

	original := len(productHTML) + len(reviewsHTML)
	extracted := len(content) + len(reviews)
	e.logger.Debug("client content extracted",
		logging.Int("original_bytes", original),
		logging.Int("extracted_bytes", extracted),
		logging.Float64("reduction_pct", reduction(original, extracted)))

	return &analysis.ScrapedPage{
		URL:        productURL,
		Content:    content,
		Reviews:    reviews,
		Retailer:   RetailerFromURL(productURL),
		Confidence: ClientContentConfidence,
		HasReviews: len(reviews) > hasReviewsMinChars,
		Method:     MethodClient,
	}, nil
}

// ParseReviews returns the individual review items found in reviewsHTML.
// Items without usable body text are skipped. IDs and fingerprints are left
// to the caller.
func (e *Extractor) ParseReviews(productURL, reviewsHTML string) []domain.Review {
	if strings.TrimSpace(reviewsHTML) == "" {
		return nil
	}
	doc, err := parse(reviewsHTML)
	if err != nil {
		e.logger.Warn("review HTML not parsed", logging.Err(err))
		return nil
	}
	source := RetailerFromURL(productURL)

	var out []domain.Review
	doc.Find(selReview).Each(func(_ int, s *goquery.Selection) {
		body := reviewBody(s)
		if body == "" {
			return
		}
		out = append(out, domain.Review{
			ProductURL: productURL,
			Title:      reviewTitle(s),
			Text:       body,
			Rating:     parseStars(textOf(s.Find(selReviewStars).First())),
			Verified:   s.Find(selReviewVerified).Length() > 0,
			Date:       textOf(s.Find(selReviewDate).First()),
			Source:     source,
		})
	})
	return out
}

// ProductText extracts the product sections as "=== name ===" blocks.
func ProductText(doc *goquery.Document) string {
	removeExcluded(doc)

	var b strings.Builder
	for _, sec := range productSections {
		elements := doc.Find(sec.selector)
		if elements.Length() == 0 {
			continue
		}
		var text string
		switch sec.name {
		case "price":
			text = textOf(elements.First())
		case "product_attributes":
			text = productAttributes(elements)
		default:
			var parts []string
			elements.Each(func(_ int, el *goquery.Selection) {
				el.Find("form").Remove()
				parts = append(parts, textOf(el))
			})
			text = collapse(strings.Join(parts, "\n"))
		}
		writeSection(&b, sec.name, strings.TrimSpace(text))
	}
	return b.String()
}

// ReviewsText extracts the rating summary, histogram, individual reviews and
// Q&A as "=== name ===" blocks.
func ReviewsText(doc *goquery.Document) string {
	var b strings.Builder
	writeSection(&b, "rating_summary", ratingSummary(doc))
	writeSection(&b, "rating_histogram", ratingHistogram(doc))
	writeSection(&b, "reviews", individualReviews(doc))

	if qa := doc.Find(selQA).First(); qa.Length() > 0 {
		text := collapse(textOf(qa))
		if len(text) > 50 {
			writeSection(&b, "questions_and_answers", truncateRunes(text, maxQAChars))
		}
	}
	return b.String()
}

// RetailerFromURL names the retailer after the URL host, e.g. "Amazon.ca".
func RetailerFromURL(productURL string) string {
	u, err := url.Parse(productURL)
	if err != nil || u.Hostname() == "" {
		return domain.UnknownValue
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if i := strings.Index(host, "amazon."); i >= 0 {
		return "Amazon" + host[i+len("amazon"):]
	}
	return host
}

func parse(raw string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeValidation, "failed to parse HTML")
	}
	return doc, nil
}

func removeExcluded(doc *goquery.Document) {
	for _, sel := range excludedSelectors {
		doc.Find(sel).Remove()
	}
}

func productAttributes(elements *goquery.Selection) string {
	var rows []string
	elements.Find("tr").Each(func(_ int, row *goquery.Selection) {
		label := textOf(row.Find(".a-span3, .a-span4").First())
		value := strings.TrimSpace(strings.ReplaceAll(textOf(row.Find(".a-span9, .a-span8").First()), "See more", ""))
		if label != "" && value != "" {
			rows = append(rows, label+": "+value)
		}
	})
	return strings.Join(rows, "\n")
}

func ratingSummary(doc *goquery.Document) string {
	var parts []string
	if title, ok := doc.Find("#acrPopover").First().Attr("title"); ok && title != "" {
		parts = append(parts, "Average Rating: "+title)
	}
	if total := textOf(doc.Find("[data-hook='total-review-count']").First()); total != "" {
		parts = append(parts, "Total Ratings: "+total)
	}
	if count := textOf(doc.Find("#acrCustomerReviewText").First()); count != "" {
		parts = append(parts, "Reviews Count: "+count)
	}
	return strings.Join(parts, "\n")
}

func ratingHistogram(doc *goquery.Document) string {
	seen := map[string]bool{}
	var lines []string
	doc.Find(selHistogram).Each(func(_ int, a *goquery.Selection) {
		label, _ := a.Attr("aria-label")
		m := histogramRe.FindStringSubmatch(label)
		if m == nil {
			return
		}
		line := fmt.Sprintf("%s star: %s%%", m[2], m[1])
		if !seen[line] {
			seen[line] = true
			lines = append(lines, line)
		}
	})
	return strings.Join(lines, "\n")
}

func individualReviews(doc *goquery.Document) string {
	var blocks []string
	doc.Find(selReview).Each(func(i int, s *goquery.Selection) {
		parts := []string{fmt.Sprintf("--- Review #%d ---", i+1)}
		if v := textOf(s.Find(selReviewStars).First()); v != "" {
			parts = append(parts, "Rating: "+v)
		}
		if v := textOf(s.Find(selReviewerName).First()); v != "" {
			parts = append(parts, "Reviewer: "+v)
		}
		if v := textOf(s.Find(selReviewDate).First()); v != "" {
			parts = append(parts, "Date: "+v)
		}
		if s.Find(selReviewVerified).Length() > 0 {
			parts = append(parts, "Verified Purchase: Yes")
		} else {
			parts = append(parts, "Verified Purchase: No")
		}
		if v := textOf(s.Find(selReviewVariant).First()); v != "" {
			parts = append(parts, "Variant: "+v)
		}
		if v := reviewTitle(s); v != "" {
			parts = append(parts, "Title: "+v)
		}
		if v := reviewBody(s); v != "" {
			parts = append(parts, "Review: "+v)
		}
		if v := textOf(s.Find(selReviewHelpful).First()); v != "" {
			parts = append(parts, "Helpful: "+v)
		}
		blocks = append(blocks, strings.Join(parts, "\n"))
	})
	return strings.Join(blocks, "\n\n")
}

func reviewTitle(s *goquery.Selection) string {
	return strings.TrimSpace(titleStarsRe.ReplaceAllString(textOf(s.Find(selReviewTitle).First()), ""))
}

// reviewBody prefers the collapsed body, which holds the actual text.
func reviewBody(s *goquery.Selection) string {
	body := s.Find(selReviewBody).First()
	if body.Length() == 0 {
		body = s.Find(selReviewBodyFull).First()
	}
	text := collapse(readMoreTailRe.ReplaceAllString(textOf(body), ""))
	if len(text) <= minReviewBodyChars {
		return ""
	}
	return text
}

// parseStars reads "4.0 out of 5 stars" as 4. Unparseable text gives 0.
func parseStars(text string) int {
	m := leadingNumRe.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	v, err := strconv.ParseFloat(strings.Replace(m[1], ",", ".", 1), 64)
	if err != nil || v < 1 || v > 5 {
		return 0
	}
	return int(v + 0.5)
}

// textOf joins the trimmed text nodes under s with single spaces, skipping
// script and style content.
func textOf(s *goquery.Selection) string {
	var parts []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.ElementNode:
			switch n.Data {
			case "script", "style", "noscript", "template":
				return
			}
		case html.TextNode:
			if t := strings.TrimSpace(n.Data); t != "" {
				parts = append(parts, t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range s.Nodes {
		walk(n)
	}
	return strings.Join(parts, " ")
}

func writeSection(b *strings.Builder, name, text string) {
	if text == "" {
		return
	}
	b.WriteString("=== ")
	b.WriteString(name)
	b.WriteString(" ===\n")
	b.WriteString(text)
	b.WriteString("\n\n")
}

func collapse(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

func reduction(original, extracted int) float64 {
	if original == 0 {
		return 0
	}
	return (1 - float64(extracted)/float64(original)) * 100
}
