package opensearch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/SafeScan/pkg/errors"
)

func newTestSearcher(t *testing.T, serverURL string) *Searcher {
	return NewSearcher(newTestClient(t, serverURL), SearcherConfig{MaxPageSize: 50}, nil)
}

func replyJSON(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}
}

func TestSearch_DecodesHits(t *testing.T) {
	var path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		replyJSON(`{"took": 7, "hits": {"total": {"value": 1}, "hits": [
			{"_id": "r9", "_score": 1.5, "_source": {"text": "burning smell"}}]}}`)(w, r)
	}))
	defer server.Close()

	res, err := newTestSearcher(t, server.URL).Search(context.Background(), SearchRequest{
		Index: "reviews",
		Query: Match("text", "smell"),
		Size:  10,
	})
	require.NoError(t, err)
	assert.Equal(t, "/reviews/_search", path)
	assert.Equal(t, int64(1), res.Total)
	assert.Equal(t, int64(7), res.TookMs)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, "r9", res.Hits[0].ID)
	assert.Equal(t, 1.5, res.Hits[0].Score)
	assert.JSONEq(t, `{"text": "burning smell"}`, string(res.Hits[0].Source))
}

func TestSearch_NormalisesBucketKeys(t *testing.T) {
	server := httptest.NewServer(replyJSON(`{"hits": {"total": {"value": 6}, "hits": []},
		"aggregations": {
			"ratings": {"buckets": [{"key": 5, "doc_count": 4}, {"key": 2, "doc_count": 2}]},
			"verified": {"buckets": [{"key": 1, "key_as_string": "true", "doc_count": 5}]},
			"avg_rating": {"value": 4.0}
		}}`))
	defer server.Close()

	res, err := newTestSearcher(t, server.URL).Search(context.Background(), SearchRequest{
		Index: "reviews",
		Aggs:  map[string]Agg{"ratings": TermsAgg("rating", 5), "avg_rating": AvgAgg("rating")},
	})
	require.NoError(t, err)
	assert.Equal(t, []Bucket{{Key: "5", Count: 4}, {Key: "2", Count: 2}}, res.Aggs["ratings"].Buckets)
	assert.Equal(t, []Bucket{{Key: "true", Count: 5}}, res.Aggs["verified"].Buckets)
	require.NotNil(t, res.Aggs["avg_rating"].Value)
	assert.Equal(t, 4.0, *res.Aggs["avg_rating"].Value)
}

func TestSearch_RequiresIndex(t *testing.T) {
	_, err := newTestSearcher(t, "http://127.0.0.1:1").Search(context.Background(), SearchRequest{})
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
}

func TestSearch_ErrorResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error": {"type": "index_not_found_exception", "reason": "no such index [reviews]"}}`))
	}))
	defer server.Close()

	_, err := newTestSearcher(t, server.URL).Search(context.Background(), SearchRequest{Index: "reviews"})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeSearch))
	assert.Contains(t, err.Error(), "index_not_found_exception")
}

func TestBuildBody_FiltersWrapQuery(t *testing.T) {
	raw, err := json.Marshal(buildBody(SearchRequest{
		Query:    AnyOf(Match("text", "rash"), Match("title", "rash")),
		Filters:  []Clause{AtLeast("rating", 3)},
		Size:     5,
		SortBy:   "indexed_at",
		SortDesc: true,
	}))
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"query": {"bool": {
			"must": {"bool": {"should": [
				{"match": {"text": {"query": "rash"}}},
				{"match": {"title": {"query": "rash"}}}
			], "minimum_should_match": 1}},
			"filter": [{"range": {"rating": {"gte": 3}}}]
		}},
		"size": 5,
		"sort": [{"indexed_at": {"order": "desc"}}]
	}`, string(raw))
}

func TestBuildBody_FilterOnlyUsesMatchAll(t *testing.T) {
	raw, err := json.Marshal(buildBody(SearchRequest{
		Filters:        []Clause{Term("verified_purchase", true)},
		TrackTotalHits: true,
	}))
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"query": {"bool": {
			"must": {"match_all": {}},
			"filter": [{"term": {"verified_purchase": true}}]
		}},
		"size": 0,
		"track_total_hits": true
	}`, string(raw))
}

func TestSearch_ClampsSize(t *testing.T) {
	var body map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&body)
		replyJSON(`{"hits": {"total": {"value": 0}, "hits": []}}`)(w, r)
	}))
	defer server.Close()

	_, err := newTestSearcher(t, server.URL).Search(context.Background(), SearchRequest{Index: "reviews", Size: 500})
	require.NoError(t, err)
	assert.EqualValues(t, 50, body["size"])
}
