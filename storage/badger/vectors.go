package badger

import (
	"context"
	"slices"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/fathom/core"
	"github.com/poiesic/fathom/storage"
)

// QueryIndex implements storage.QueryIndex for BadgerDB.
type QueryIndex struct {
	backend *Backend
}

var _ storage.QueryIndex = (*QueryIndex)(nil)

// NewQueryIndex creates a new QueryIndex.
func NewQueryIndex(backend *Backend) *QueryIndex {
	return &QueryIndex{
		backend: backend,
	}
}

// PutQueryVector stores the embedding of a cached query.
func (q *QueryIndex) PutQueryVector(ctx context.Context, vector *core.QueryVector) error {
	return q.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Set(makeQueryVectorKey(vector.Key), storage.MarshalQueryVector(vector)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// DeleteQueryVectors removes the vectors stored under the given cache keys.
func (q *QueryIndex) DeleteQueryVectors(ctx context.Context, keys ...string) error {
	raw := make([][]byte, 0, len(keys))
	for _, key := range keys {
		raw = append(raw, makeQueryVectorKey(key))
	}
	return q.backend.DeleteKeys(raw)
}

// QueryVectors returns every stored query vector in key order.
func (q *QueryIndex) QueryVectors(ctx context.Context) ([]core.QueryVector, error) {
	var vectors []core.QueryVector
	err := q.backend.scanPrefix([]byte(queryVectorPrefix), func(_, val []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		stored, err := storage.UnmarshalQueryVector(val)
		if err != nil {
			return err
		}
		vectors = append(vectors, *stored)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return vectors, nil
}

// FindSimilarQueries finds cached queries in scope similar to the given vector.
func (q *QueryIndex) FindSimilarQueries(ctx context.Context, scope string, vector []float32, minSimilarity float32, limit int) ([]core.QueryMatch, error) {
	var results []core.QueryMatch

	err := q.backend.scanPrefix([]byte(queryVectorPrefix), func(_, val []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		stored, err := storage.UnmarshalQueryVector(val)
		if err != nil {
			return err
		}
		if stored.Scope != scope || len(stored.Vector) == 0 {
			return nil
		}

		// Cosine similarity (dot product for normalized vectors)
		similarity := dotProduct(vector, stored.Vector)
		if similarity >= minSimilarity {
			results = append(results, core.QueryMatch{
				Key:   stored.Key,
				Query: stored.Query,
				Score: similarity,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Sort by similarity descending
	slices.SortFunc(results, func(a, b core.QueryMatch) int {
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		return 0
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}

	return results, nil
}

// dotProduct calculates the dot product of two vectors.
func dotProduct(a, b []float32) float32 {
	var sum float32
	minLen := min(len(a), len(b))
	for i := 0; i < minLen; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
