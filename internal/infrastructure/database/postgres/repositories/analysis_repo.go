package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"

	"github.com/lib/pq"
	"github.com/turtacn/SafeScan/internal/domain/analysis"
	"github.com/turtacn/SafeScan/internal/domain/substance"
	"github.com/turtacn/SafeScan/internal/infrastructure/database/postgres"
	"github.com/turtacn/SafeScan/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/SafeScan/pkg/errors"
)

type postgresAnalysisRepo struct {
	log      logging.Logger
	executor queryExecutor
}

// NewAnalysisRepo stores results in product_analyses, one row per fingerprint.
func NewAnalysisRepo(conn *postgres.Connection, log logging.Logger) analysis.AnalysisStore {
	return &postgresAnalysisRepo{
		log:      log,
		executor: conn.DB(),
	}
}

// NewReviewInsightsRepo stores review insights on the product_analyses row.
func NewReviewInsightsRepo(conn *postgres.Connection, log logging.Logger) analysis.ReviewInsightsStore {
	return &postgresAnalysisRepo{
		log:      log,
		executor: conn.DB(),
	}
}

const selectAnalysis = `
	SELECT product_url, product_name, brand, category, retailer, ingredients,
		harm_score, overall_score, allergens_detected, pfas_detected, other_concerns,
		confidence, analysis_method, note, stages,
		total_input_tokens, total_output_tokens, api_call_count, analyzed_at
	FROM product_analyses
	WHERE product_url_hash = $1
`

func (r *postgresAnalysisRepo) Get(ctx context.Context, fingerprint string) (*analysis.Result, error) {
	row := r.executor.QueryRowContext(ctx, selectAnalysis, fingerprint)
	res, err := scanAnalysis(row)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.New(errors.ErrCodeAnalysisNotFound, "analysis not found").WithDetail(fingerprint)
		}
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to get analysis")
	}
	res.Fingerprint = fingerprint
	return res, nil
}

func scanAnalysis(row scanner) (*analysis.Result, error) {
	var (
		res                    analysis.Result
		allergens, pfas, other []byte
		confidence             int
		method                 string
	)
	err := row.Scan(
		&res.ProductURL, &res.ProductName, &res.Brand, &res.Category, &res.Retailer, pq.Array(&res.Ingredients),
		&res.HarmScore, &res.OverallScore, &allergens, &pfas, &other,
		&confidence, &method, &res.Note, pq.Array(&res.Stages),
		&res.Usage.InputTokens, &res.Usage.OutputTokens, &res.Usage.Calls, &res.AnalyzedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := unmarshalDetections(allergens, &res.Allergens); err != nil {
		return nil, err
	}
	if err := unmarshalDetections(pfas, &res.PFAS); err != nil {
		return nil, err
	}
	if err := unmarshalDetections(other, &res.OtherConcerns); err != nil {
		return nil, err
	}
	res.Detections = res.Detections.Normalized()
	res.Confidence = analysis.ConfidenceFromPercent(confidence)
	res.Method = analysis.Method(method)
	if res.Ingredients == nil {
		res.Ingredients = []string{}
	}
	return &res, nil
}

func unmarshalDetections(b []byte, dst *[]substance.Detection) error {
	if len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, dst)
}

func (r *postgresAnalysisRepo) Upsert(ctx context.Context, fingerprint, productURL string, res *analysis.Result) error {
	if res == nil {
		return errors.InvalidParam("nil analysis result")
	}
	d := res.Detections.Normalized()
	allergens, err := jsonArray(d.Allergens)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal allergens")
	}
	pfas, err := jsonArray(d.PFAS)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal PFAS")
	}
	other, err := jsonArray(d.OtherConcerns)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal other concerns")
	}
	ingredients := res.Ingredients
	if ingredients == nil {
		ingredients = []string{}
	}
	stages := res.Stages
	if stages == nil {
		stages = []string{}
	}

	query := `
		INSERT INTO product_analyses (
			product_url_hash, product_url, product_name, brand, category, retailer, ingredients,
			harm_score, overall_score, allergens_detected, pfas_detected, other_concerns,
			confidence, analysis_method, note, stages,
			total_input_tokens, total_output_tokens, total_tokens, api_call_count, analyzed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
		ON CONFLICT (product_url_hash) DO UPDATE SET
			product_url = EXCLUDED.product_url,
			product_name = EXCLUDED.product_name,
			brand = EXCLUDED.brand,
			category = EXCLUDED.category,
			retailer = EXCLUDED.retailer,
			ingredients = EXCLUDED.ingredients,
			harm_score = EXCLUDED.harm_score,
			overall_score = EXCLUDED.overall_score,
			allergens_detected = EXCLUDED.allergens_detected,
			pfas_detected = EXCLUDED.pfas_detected,
			other_concerns = EXCLUDED.other_concerns,
			confidence = EXCLUDED.confidence,
			analysis_method = EXCLUDED.analysis_method,
			note = EXCLUDED.note,
			stages = EXCLUDED.stages,
			total_input_tokens = EXCLUDED.total_input_tokens,
			total_output_tokens = EXCLUDED.total_output_tokens,
			total_tokens = EXCLUDED.total_tokens,
			api_call_count = EXCLUDED.api_call_count,
			analyzed_at = EXCLUDED.analyzed_at,
			updated_at = NOW()
	`
	_, err = r.executor.ExecContext(ctx, query,
		fingerprint, productURL, res.ProductName, res.Brand, res.Category, res.Retailer, pq.Array(ingredients),
		res.HarmScore, res.OverallScore, allergens, pfas, other,
		analysis.ConfidencePercent(res.Confidence), string(res.Method), res.Note, pq.Array(stages),
		res.Usage.InputTokens, res.Usage.OutputTokens, res.Usage.Total(), res.Usage.Calls, res.AnalyzedAt,
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeAnalysisStoreWrite, "failed to store analysis")
	}
	r.log.Debug("analysis stored",
		logging.String("fingerprint", fingerprint),
		logging.Int("harm_score", res.HarmScore))
	return nil
}

func (r *postgresAnalysisRepo) GetReviewInsights(ctx context.Context, fingerprint string) (*analysis.ReviewInsights, error) {
	query := `SELECT review_insights FROM product_analyses WHERE product_url_hash = $1`
	var raw []byte
	err := r.executor.QueryRowContext(ctx, query, fingerprint).Scan(&raw)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.NotFound("review insights not cached").WithDetail(fingerprint)
		}
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to get review insights")
	}
	if len(raw) == 0 || string(raw) == "null" || string(raw) == "{}" {
		return nil, errors.NotFound("review insights not cached").WithDetail(fingerprint)
	}
	var insights analysis.ReviewInsights
	if err := json.Unmarshal(raw, &insights); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode review insights")
	}
	insights.Normalize()
	return &insights, nil
}

func (r *postgresAnalysisRepo) SaveReviewInsights(ctx context.Context, fingerprint string, insights *analysis.ReviewInsights) error {
	if insights == nil {
		return errors.InvalidParam("nil review insights")
	}
	stored := *insights
	stored.Cached = false
	raw, err := json.Marshal(stored)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode review insights")
	}

	query := `UPDATE product_analyses SET review_insights = $2, updated_at = NOW() WHERE product_url_hash = $1`
	res, err := r.executor.ExecContext(ctx, query, fingerprint, raw)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to store review insights")
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return errors.New(errors.ErrCodeAnalysisNotFound, "no analysis to attach review insights to").WithDetail(fingerprint)
	}
	return nil
}
