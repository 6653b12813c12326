package source

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// NamedReader is a Reader that can identify itself in logs.
type NamedReader interface {
	Reader
	Name() string
}

// ChainReader tries readers in priority order and returns the first text.
type ChainReader struct {
	readers []NamedReader
}

// NewChainReader creates a ChainReader. Readers are tried in order.
func NewChainReader(readers ...NamedReader) *ChainReader {
	return &ChainReader{readers: readers}
}

// Read returns the first successful read, or the last error when every
// reader fails. Cancellation stops the chain immediately.
func (c *ChainReader) Read(ctx context.Context, url string) (string, error) {
	var lastErr error
	for _, r := range c.readers {
		text, err := r.Read(ctx, url)
		if err == nil {
			return text, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		zap.L().Debug("source: reader failed, trying next",
			zap.String("reader", r.Name()),
			zap.String("url", url),
			zap.Error(err),
		)
		lastErr = err
	}
	if lastErr == nil {
		return "", eris.Errorf("source: no reader configured for %s", url)
	}
	return "", eris.Wrap(lastErr, "source: all readers failed")
}
