// Package mock provides a test double for ai.Embedder.
//
// MockEmbedder returns deterministic unit vectors derived from a hash of the
// text, so identical queries always match and unrelated ones do not. Tests
// that need specific similarities inject EmbedTextFunc.
//
//	m := mock.NewMockEmbedder()
//	m.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
//	    return []float32{1, 0, 0}, nil
//	}
//	count := m.CallCount()
package mock
