package analysis

import "time"

// Sentiment values for ReviewInsights.OverallSentiment.
const (
	SentimentPositive = "positive"
	SentimentMixed    = "mixed"
	SentimentNegative = "negative"
)

// HealthConcern is a health issue reported across reviews.
type HealthConcern struct {
	Concern   string   `json:"concern"`
	Frequency string   `json:"frequency"` // rare | occasional | common | frequent
	Severity  string   `json:"severity"`
	Examples  []string `json:"examples"`
}

// QuestionConcern is a customer question raised in Q&A or reviews.
type QuestionConcern struct {
	Question string `json:"question"`
	Category string `json:"category"` // safety | ingredients | usage | other
	Answered bool   `json:"answered"`
}

// ReviewInsights summarises consumer feedback for one product.
type ReviewInsights struct {
	Fingerprint           string            `json:"url_fingerprint"`
	ProductURL            string            `json:"product_url"`
	OverallSentiment      string            `json:"overall_sentiment"`
	TotalReviewsAnalyzed  int               `json:"total_reviews_analyzed"`
	RatingDistribution    map[string]int    `json:"rating_distribution"`
	CommonComplaints      []string          `json:"common_complaints"`
	HealthConcerns        []HealthConcern   `json:"health_concerns"`
	PositiveFeedback      []string          `json:"positive_feedback"`
	QuestionsConcerns     []QuestionConcern `json:"questions_concerns"`
	VerifiedPurchaseRatio float64           `json:"verified_purchase_ratio"`
	Confidence            float64           `json:"confidence"`
	AnalyzedAt            time.Time         `json:"analyzed_at"`
	Cached                bool              `json:"cached"`
	Usage                 Usage             `json:"-"`
}

// Normalize fills defaults the extraction may have left out.
func (r *ReviewInsights) Normalize() {
	switch r.OverallSentiment {
	case SentimentPositive, SentimentMixed, SentimentNegative:
	default:
		r.OverallSentiment = SentimentMixed
	}
	if r.RatingDistribution == nil {
		r.RatingDistribution = map[string]int{}
	}
	if r.CommonComplaints == nil {
		r.CommonComplaints = []string{}
	}
	if r.HealthConcerns == nil {
		r.HealthConcerns = []HealthConcern{}
	}
	if r.PositiveFeedback == nil {
		r.PositiveFeedback = []string{}
	}
	if r.QuestionsConcerns == nil {
		r.QuestionsConcerns = []QuestionConcern{}
	}
}

// IsFresh reports whether insights produced at AnalyzedAt are younger than ttl.
func (r *ReviewInsights) IsFresh(now time.Time, ttl time.Duration) bool {
	return !r.AnalyzedAt.IsZero() && now.Sub(r.AnalyzedAt) < ttl
}

// Review is one customer review as indexed for search.
type Review struct {
	ID          string    `json:"id"`
	Fingerprint string    `json:"url_fingerprint"`
	ProductURL  string    `json:"product_url"`
	Title       string    `json:"title,omitempty"`
	Text        string    `json:"text"`
	Rating      int       `json:"rating,omitempty"`
	Verified    bool      `json:"verified_purchase"`
	Date        string    `json:"date,omitempty"`
	Source      string    `json:"source"`
	IndexedAt   time.Time `json:"indexed_at"`
}

// ReviewQuery filters a review search.
type ReviewQuery struct {
	Query        string `json:"query"`
	Fingerprint  string `json:"url_fingerprint,omitempty"`
	TopK         int    `json:"top_k"`
	MinRating    int    `json:"min_rating,omitempty"`
	VerifiedOnly bool   `json:"verified_only"`
}

// ReviewHit is one search result.
type ReviewHit struct {
	Review
	Score float64 `json:"score"`
}

// ReviewSummary aggregates the indexed reviews of one product.
type ReviewSummary struct {
	Fingerprint        string         `json:"url_fingerprint"`
	TotalReviews       int            `json:"total_reviews"`
	RatingDistribution map[string]int `json:"rating_distribution"`
	AverageRating      float64        `json:"average_rating"`
	VerifiedRatio      float64        `json:"verified_purchase_ratio"`
}
