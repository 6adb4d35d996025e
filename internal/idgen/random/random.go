package random

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/avstrong/slotreserve/internal/idgen"
)

// Largest multiple of 36 that fits in a byte; bytes at or above it are
// discarded so every character is equally likely.
const rejectAbove = 252

type Generator struct {
	r io.Reader
}

func New() *Generator {
	return &Generator{r: rand.Reader}
}

// NewWithReader is used by tests to make the entropy source deterministic.
func NewWithReader(r io.Reader) *Generator {
	return &Generator{r: r}
}

func (g *Generator) GetID(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	out := make([]byte, 0, len(idgen.Prefix)+idgen.Length)
	out = append(out, idgen.Prefix...)

	buf := make([]byte, idgen.Length*2) //nolint:gomnd

	for len(out) < cap(out) {
		if _, err := io.ReadFull(g.r, buf); err != nil {
			return "", fmt.Errorf("read entropy: %w", err)
		}

		for _, b := range buf {
			if b >= rejectAbove {
				continue
			}

			out = append(out, idgen.Alphabet[int(b)%len(idgen.Alphabet)])

			if len(out) == cap(out) {
				break
			}
		}
	}

	return string(out), nil
}
