package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
	"github.com/turtacn/SafeScan/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/SafeScan/pkg/errors"
)

// Clause is one node of the OpenSearch query DSL.
type Clause map[string]interface{}

func Match(field string, value interface{}) Clause {
	return Clause{"match": map[string]interface{}{field: map[string]interface{}{"query": value}}}
}

func Term(field string, value interface{}) Clause {
	return Clause{"term": map[string]interface{}{field: value}}
}

// AtLeast is a range filter with an inclusive lower bound.
func AtLeast(field string, min interface{}) Clause {
	return Clause{"range": map[string]interface{}{field: map[string]interface{}{"gte": min}}}
}

// AnyOf matches documents satisfying at least one clause.
func AnyOf(clauses ...Clause) Clause {
	return Clause{"bool": map[string]interface{}{"should": clauses, "minimum_should_match": 1}}
}

// Agg is one named aggregation.
type Agg map[string]interface{}

func TermsAgg(field string, size int) Agg {
	return Agg{"terms": map[string]interface{}{"field": field, "size": size}}
}

func AvgAgg(field string) Agg {
	return Agg{"avg": map[string]interface{}{"field": field}}
}

type SearcherConfig struct {
	MaxPageSize   int
	SearchTimeout time.Duration
}

// SearchRequest is scored by Query and restricted by Filters, which do not
// affect scoring. A zero Size returns aggregations only.
type SearchRequest struct {
	Index          string
	Query          Clause
	Filters        []Clause
	Size           int
	SortBy         string
	SortDesc       bool
	Aggs           map[string]Agg
	TrackTotalHits bool
}

type SearchResult struct {
	Total  int64
	TookMs int64
	Hits   []SearchHit
	Aggs   map[string]AggResult
}

type SearchHit struct {
	ID     string
	Score  float64
	Source json.RawMessage
}

// AggResult holds either a metric Value or terms Buckets.
type AggResult struct {
	Value   *float64
	Buckets []Bucket
}

// Bucket keys are normalised to strings: numeric rating 5 becomes "5" and
// boolean terms keep their "true"/"false" key_as_string.
type Bucket struct {
	Key   string
	Count int64
}

type Searcher struct {
	client *Client
	config SearcherConfig
	logger logging.Logger
}

func NewSearcher(client *Client, cfg SearcherConfig, logger logging.Logger) *Searcher {
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = 100
	}
	if cfg.SearchTimeout <= 0 {
		cfg.SearchTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Searcher{client: client, config: cfg, logger: logger}
}

func (s *Searcher) Search(ctx context.Context, req SearchRequest) (*SearchResult, error) {
	if req.Index == "" {
		return nil, errors.New(errors.ErrCodeValidation, "search index is required")
	}
	if req.Size > s.config.MaxPageSize {
		req.Size = s.config.MaxPageSize
	}
	if req.Size < 0 {
		req.Size = 0
	}

	body, err := json.Marshal(buildBody(req))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode search body")
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.SearchTimeout)
	defer cancel()

	resp, err := opensearchapi.SearchRequest{
		Index: []string{req.Index},
		Body:  bytes.NewReader(body),
	}.Do(ctx, s.client.GetClient())
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, errors.New(errors.ErrCodeTimeout, "search timed out").WithDetail(req.Index)
		}
		return nil, errors.Wrap(err, errors.ErrCodeSearch, "search request failed")
	}
	defer resp.Body.Close()

	if resp.IsError() {
		return nil, handleErrorResponse(resp, errors.New(errors.ErrCodeSearch, "search failed"))
	}

	result, err := decodeSearchResponse(resp.Body)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("search executed",
		logging.String("index", req.Index),
		logging.Int64("took_ms", result.TookMs),
		logging.Int64("total", result.Total))
	return result, nil
}

func buildBody(req SearchRequest) map[string]interface{} {
	body := map[string]interface{}{"size": req.Size}

	switch {
	case len(req.Filters) > 0:
		must := req.Query
		if must == nil {
			must = Clause{"match_all": map[string]interface{}{}}
		}
		body["query"] = Clause{"bool": map[string]interface{}{"must": must, "filter": req.Filters}}
	case req.Query != nil:
		body["query"] = req.Query
	}

	if req.SortBy != "" {
		order := "asc"
		if req.SortDesc {
			order = "desc"
		}
		body["sort"] = []map[string]interface{}{{req.SortBy: map[string]interface{}{"order": order}}}
	}
	if len(req.Aggs) > 0 {
		body["aggs"] = req.Aggs
	}
	if req.TrackTotalHits {
		body["track_total_hits"] = true
	}
	return body
}

type rawBucket struct {
	Key         interface{} `json:"key"`
	KeyAsString string      `json:"key_as_string"`
	DocCount    int64       `json:"doc_count"`
}

func decodeSearchResponse(r io.Reader) (*SearchResult, error) {
	var resp struct {
		Took int64 `json:"took"`
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				ID     string          `json:"_id"`
				Score  float64         `json:"_score"`
				Source json.RawMessage `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
		Aggregations map[string]struct {
			Value   *float64    `json:"value"`
			Buckets []rawBucket `json:"buckets"`
		} `json:"aggregations"`
	}
	if err := json.NewDecoder(r).Decode(&resp); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode search response")
	}

	out := &SearchResult{Total: resp.Hits.Total.Value, TookMs: resp.Took}
	for _, h := range resp.Hits.Hits {
		out.Hits = append(out.Hits, SearchHit{ID: h.ID, Score: h.Score, Source: h.Source})
	}
	if len(resp.Aggregations) > 0 {
		out.Aggs = make(map[string]AggResult, len(resp.Aggregations))
		for name, a := range resp.Aggregations {
			res := AggResult{Value: a.Value}
			for _, b := range a.Buckets {
				key := b.KeyAsString
				if key == "" {
					key = fmt.Sprint(b.Key)
				}
				res.Buckets = append(res.Buckets, Bucket{Key: key, Count: b.DocCount})
			}
			out.Aggs[name] = res
		}
	}
	return out, nil
}
