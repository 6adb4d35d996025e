package simple

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"

	"github.com/avstrong/slotreserve/internal/idgen"
)

var ErrExhausted = errors.New("sequential id space exhausted")

// 36^6, the number of distinct six character suffixes.
const space = 2176782336

// Generator hands out PS-000001, PS-000002, ... in order. It is predictable
// and meant for local runs and tests, not for public booking codes.
type Generator struct {
	mu      sync.Mutex
	counter int64
}

func New() *Generator {
	//nolint:exhaustruct
	return &Generator{}
}

// NewFrom starts the sequence after the given counter value.
func NewFrom(counter int64) *Generator {
	//nolint:exhaustruct
	return &Generator{counter: counter}
}

func (g *Generator) GetID(_ context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.counter+1 >= space {
		return "", ErrExhausted
	}

	g.counter++

	suffix := strings.ToUpper(strconv.FormatInt(g.counter, 36))

	return idgen.Prefix + strings.Repeat("0", idgen.Length-len(suffix)) + suffix, nil
}

// Observe moves the sequence past id so the generator never hands it out.
// Malformed IDs and IDs already behind the counter are ignored.
func (g *Generator) Observe(id string) {
	if !idgen.Valid(id) {
		return
	}

	n, err := strconv.ParseInt(id[len(idgen.Prefix):], 36, 64)
	if err != nil {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if n > g.counter {
		g.counter = n
	}
}
