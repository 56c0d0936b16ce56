package retrieval

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turtacn/SafeScan/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/SafeScan/pkg/errors"
)

const productFixture = `<html><body>
<div id="navbar">Nav junk</div>
<span id="productTitle">  Gentle   Baby Lotion </span>
<a id="bylineInfo">Visit the Acme Store</a>
<span class="a-price"><span class="a-offscreen">$12.99</span></span>
<span class="a-price"><span class="a-offscreen">$15.99</span></span>
<div class="a-section a-spacing-small a-spacing-top-small"><table>
<tr><td class="a-span3">Material</td><td class="a-span9">Cotton See more</td></tr>
<tr><td class="a-span3">Scent</td><td class="a-span9"></td></tr>
</table></div>
<div id="feature-bullets-btf"><ul><li>Contains methylparaben</li><li>Fragrance free</li></ul><form><input value="x"/>Report an issue</form><script>var x = 1;</script></div>
<div id="similarities_feature_div"><div id="productDescription">Sponsored lookalike</div></div>
<div id="productDescription"><p>Made with shea butter.</p></div>
</body></html>`

const reviewsFixture = `<div id="cm_cr-review_list">
<span data-hook="total-review-count">1,204 global ratings</span>
<a aria-label="74 percent of reviews have 5 stars" href="#">5 star</a>
<a aria-label="74 percent of reviews have 5 stars" href="#">74%</a>
<a aria-label="6 percent of reviews have 1 stars" href="#">1 star</a>
<div data-hook="review">
<span class="a-profile-name">Jane</span>
<i data-hook="review-star-rating"><span class="a-icon-alt">2.0 out of 5 stars</span></i>
<a data-hook="review-title"><span>2.0 out of 5 stars</span><span>Gave my baby a rash</span></a>
<span data-hook="review-date">Reviewed in Canada on March 3, 2025</span>
<span data-hook="avp-badge">Verified Purchase</span>
<span data-hook="review-body"><span>After two days   of use my daughter broke out in a rash. Read more</span></span>
</div>
<div data-hook="review">
<i data-hook="review-star-rating"><span class="a-icon-alt">5.0 out of 5 stars</span></i>
<span data-hook="review-body">Great!</span>
</div>
</div>`

const testProductURL = "https://www.amazon.ca/dp/B0TEST"

func TestProductText_Sections(t *testing.T) {
	doc, err := parse(productFixture)
	require.NoError(t, err)

	want := "=== title ===\nGentle Baby Lotion\n\n" +
		"=== brand ===\nVisit the Acme Store\n\n" +
		"=== price ===\n$12.99\n\n" +
		"=== product_attributes ===\nMaterial: Cotton\n\n" +
		"=== feature_bullets ===\nContains methylparaben Fragrance free\n\n" +
		"=== product_description ===\nMade with shea butter.\n\n"
	assert.Equal(t, want, ProductText(doc))
}

func TestProductText_DropsExcludedAndForms(t *testing.T) {
	doc, err := parse(productFixture)
	require.NoError(t, err)

	text := ProductText(doc)
	assert.NotContains(t, text, "Nav junk")
	assert.NotContains(t, text, "Sponsored lookalike")
	assert.NotContains(t, text, "Report an issue")
	assert.NotContains(t, text, "var x")
	assert.NotContains(t, text, "$15.99")
}

func TestReviewsText_Structured(t *testing.T) {
	doc, err := parse(reviewsFixture)
	require.NoError(t, err)

	text := ReviewsText(doc)
	assert.Contains(t, text, "=== rating_summary ===\nTotal Ratings: 1,204 global ratings\n")
	assert.Contains(t, text, "=== rating_histogram ===\n5 star: 74%\n1 star: 6%\n")
	assert.Contains(t, text, "--- Review #1 ---\nRating: 2.0 out of 5 stars\nReviewer: Jane\n"+
		"Date: Reviewed in Canada on March 3, 2025\nVerified Purchase: Yes\n"+
		"Title: Gave my baby a rash\nReview: After two days of use my daughter broke out in a rash.")
	assert.Contains(t, text, "--- Review #2 ---\nRating: 5.0 out of 5 stars\nVerified Purchase: No")
	assert.NotContains(t, text, "questions_and_answers")
}

func TestExtractFromRawContent(t *testing.T) {
	e := NewExtractor(logging.NewNopLogger())

	page, err := e.ExtractFromRawContent(testProductURL, productFixture, reviewsFixture)
	require.NoError(t, err)
	assert.Equal(t, testProductURL, page.URL)
	assert.Equal(t, "Amazon.ca", page.Retailer)
	assert.Equal(t, ClientContentConfidence, page.Confidence)
	assert.Equal(t, MethodClient, page.Method)
	assert.True(t, page.HasReviews)
	assert.True(t, strings.HasPrefix(page.Content, "=== title ==="))
	assert.Contains(t, page.Reviews, "Gave my baby a rash")
}

func TestExtractFromRawContent_NoReviews(t *testing.T) {
	page, err := NewExtractor(nil).ExtractFromRawContent(testProductURL, productFixture, "")
	require.NoError(t, err)
	assert.Empty(t, page.Reviews)
	assert.False(t, page.HasReviews)
}

func TestExtractFromRawContent_EmptyHTML(t *testing.T) {
	_, err := NewExtractor(nil).ExtractFromRawContent(testProductURL, "   ", "")
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
}

func TestParseReviews(t *testing.T) {
	reviews := NewExtractor(nil).ParseReviews(testProductURL, reviewsFixture)

	require.Len(t, reviews, 1)
	r := reviews[0]
	assert.Equal(t, 2, r.Rating)
	assert.True(t, r.Verified)
	assert.Equal(t, "Gave my baby a rash", r.Title)
	assert.Equal(t, "After two days of use my daughter broke out in a rash.", r.Text)
	assert.Equal(t, "Reviewed in Canada on March 3, 2025", r.Date)
	assert.Equal(t, "Amazon.ca", r.Source)
	assert.Equal(t, testProductURL, r.ProductURL)
	assert.Empty(t, r.ID)
}

func TestParseReviews_Empty(t *testing.T) {
	assert.Nil(t, NewExtractor(nil).ParseReviews(testProductURL, ""))
	assert.Empty(t, NewExtractor(nil).ParseReviews(testProductURL, "<p>no reviews here</p>"))
}

func TestRetailerFromURL(t *testing.T) {
	cases := map[string]string{
		"https://www.amazon.ca/dp/B0":    "Amazon.ca",
		"https://www.amazon.co.uk/dp/B0": "Amazon.co.uk",
		"https://smile.amazon.com/dp/B0": "Amazon.com",
		"https://www.walmart.com/ip/1":   "walmart.com",
		"not a url":                      "Unknown",
	}
	for in, want := range cases {
		assert.Equal(t, want, RetailerFromURL(in), in)
	}
}

func TestParseStars(t *testing.T) {
	assert.Equal(t, 4, parseStars("4.0 out of 5 stars"))
	assert.Equal(t, 5, parseStars("4.5 out of 5 stars"))
	assert.Equal(t, 4, parseStars("4,0 von 5 Sternen"))
	assert.Equal(t, 0, parseStars(""))
	assert.Equal(t, 0, parseStars("9 out of 10"))
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "héll", truncateRunes("héllo", 4))
	assert.Equal(t, "abc", truncateRunes("abc", 5))
}
