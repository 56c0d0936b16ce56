package opensearch

import (
	"context"
	"encoding/json"
	"math"
	"strconv"

	domain "github.com/turtacn/SafeScan/internal/domain/analysis"
	"github.com/turtacn/SafeScan/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/SafeScan/pkg/errors"
)

const (
	defaultReviewTopK = 10
	maxReviewTopK     = 100

	aggRatings  = "ratings"
	aggAvg      = "avg_rating"
	aggVerified = "verified"
)

// ReviewIndexMapping is the index definition for individual reviews.
func ReviewIndexMapping() IndexMapping {
	return IndexMapping{
		Settings: map[string]interface{}{
			"number_of_shards":   1,
			"number_of_replicas": 1,
		},
		Mappings: map[string]interface{}{
			"properties": map[string]interface{}{
				"id":                map[string]interface{}{"type": "keyword"},
				"url_fingerprint":   map[string]interface{}{"type": "keyword"},
				"product_url":       map[string]interface{}{"type": "keyword"},
				"title":             map[string]interface{}{"type": "text", "analyzer": "english"},
				"text":              map[string]interface{}{"type": "text", "analyzer": "english"},
				"rating":            map[string]interface{}{"type": "integer"},
				"verified_purchase": map[string]interface{}{"type": "boolean"},
				"date":              map[string]interface{}{"type": "keyword"},
				"source":            map[string]interface{}{"type": "keyword"},
				"indexed_at":        map[string]interface{}{"type": "date"},
			},
		},
	}
}

// ReviewIndex stores reviews in one OpenSearch index. Documents are keyed by
// review ID so re-indexing the same review overwrites it.
type ReviewIndex struct {
	indexer  *Indexer
	searcher *Searcher
	index    string
	logger   logging.Logger
}

// NewReviewIndex creates a ReviewIndex over index.
func NewReviewIndex(indexer *Indexer, searcher *Searcher, index string, logger logging.Logger) *ReviewIndex {
	return &ReviewIndex{indexer: indexer, searcher: searcher, index: index, logger: logger}
}

// EnsureIndex creates the review index if it is missing.
func (r *ReviewIndex) EnsureIndex(ctx context.Context) error {
	return r.indexer.EnsureIndex(ctx, r.index, ReviewIndexMapping())
}

// IndexReviews indexes reviews and returns how many were accepted.
func (r *ReviewIndex) IndexReviews(ctx context.Context, reviews []domain.Review) (int, error) {
	docs := make([]BulkDocument, 0, len(reviews))
	for _, rv := range reviews {
		docs = append(docs, BulkDocument{ID: rv.ID, Source: rv})
	}
	res, err := r.indexer.BulkIndex(ctx, r.index, docs)
	if err != nil {
		return 0, err
	}
	if res.Failed > 0 {
		r.logger.Warn("some reviews were rejected by the index",
			logging.Int("failed", res.Failed),
			logging.String("first_reason", res.Errors[0].Reason))
	}
	return res.Succeeded, nil
}

// SearchReviews runs a keyword query over review text, most relevant first.
func (r *ReviewIndex) SearchReviews(ctx context.Context, q domain.ReviewQuery) ([]domain.ReviewHit, error) {
	topK := q.TopK
	if topK <= 0 {
		topK = defaultReviewTopK
	}
	if topK > maxReviewTopK {
		topK = maxReviewTopK
	}

	req := SearchRequest{Index: r.index, Size: topK, Filters: reviewFilters(q)}
	if q.Query != "" {
		req.Query = AnyOf(Match("text", q.Query), Match("title", q.Query))
	}

	res, err := r.searcher.Search(ctx, req)
	if err != nil {
		return nil, err
	}

	hits := make([]domain.ReviewHit, 0, len(res.Hits))
	for _, h := range res.Hits {
		var rv domain.Review
		if err := json.Unmarshal(h.Source, &rv); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode review hit")
		}
		if rv.ID == "" {
			rv.ID = h.ID
		}
		hits = append(hits, domain.ReviewHit{Review: rv, Score: h.Score})
	}
	return hits, nil
}

// SummarizeReviews aggregates the rating distribution, average rating and
// verified share of one product's reviews. A product with no indexed
// reviews yields a summary with TotalReviews 0.
func (r *ReviewIndex) SummarizeReviews(ctx context.Context, fingerprint string) (*domain.ReviewSummary, error) {
	res, err := r.searcher.Search(ctx, SearchRequest{
		Index:          r.index,
		Filters:        []Clause{Term("url_fingerprint", fingerprint)},
		TrackTotalHits: true,
		Aggs: map[string]Agg{
			aggRatings:  TermsAgg("rating", 5),
			aggAvg:      AvgAgg("rating"),
			aggVerified: TermsAgg("verified_purchase", 2),
		},
	})
	if err != nil {
		return nil, err
	}

	sum := &domain.ReviewSummary{
		Fingerprint:        fingerprint,
		TotalReviews:       int(res.Total),
		RatingDistribution: map[string]int{"1": 0, "2": 0, "3": 0, "4": 0, "5": 0},
	}
	for _, b := range res.Aggs[aggRatings].Buckets {
		if _, ok := sum.RatingDistribution[b.Key]; ok {
			sum.RatingDistribution[b.Key] = int(b.Count)
		}
	}
	if v := res.Aggs[aggAvg].Value; v != nil {
		sum.AverageRating = round2(*v)
	}
	if sum.TotalReviews > 0 {
		for _, b := range res.Aggs[aggVerified].Buckets {
			if verified, _ := strconv.ParseBool(b.Key); verified {
				sum.VerifiedRatio = round2(float64(b.Count) / float64(sum.TotalReviews))
			}
		}
	}
	return sum, nil
}

func reviewFilters(q domain.ReviewQuery) []Clause {
	var filters []Clause
	if q.Fingerprint != "" {
		filters = append(filters, Term("url_fingerprint", q.Fingerprint))
	}
	if q.MinRating > 0 {
		filters = append(filters, AtLeast("rating", q.MinRating))
	}
	if q.VerifiedOnly {
		filters = append(filters, Term("verified_purchase", true))
	}
	return filters
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
