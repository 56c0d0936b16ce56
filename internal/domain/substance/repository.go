package substance

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// KnowledgeBaseStore is the read-only source of reference records. The
// postgres repository and the offline no-op store both satisfy it.
type KnowledgeBaseStore interface {
	GetAllAllergens(ctx context.Context) ([]Record, error)
	GetAllPFAS(ctx context.Context) ([]Record, error)
}

// LoadKnowledgeBase fetches both reference sets concurrently and builds a
// KnowledgeBase. Any fetch error aborts the load; callers decide whether to
// degrade to EmptyKnowledgeBase.
func LoadKnowledgeBase(ctx context.Context, store KnowledgeBaseStore) (*KnowledgeBase, error) {
	var allergens, pfas []Record
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		allergens, err = store.GetAllAllergens(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		pfas, err = store.GetAllPFAS(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return NewKnowledgeBase(allergens, pfas), nil
}
