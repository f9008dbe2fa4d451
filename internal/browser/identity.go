package browser

import (
	"errors"
	"math/rand/v2"
)

// IdentityPool rotates user-agent strings. The pool is fixed at construction.
type IdentityPool struct {
	agents []string
	intn   func(n int) int
}

// NewIdentityPool builds a pool over agents. intn picks an index in [0, n);
// nil selects uniformly at random.
func NewIdentityPool(agents []string, intn func(n int) int) (*IdentityPool, error) {
	if len(agents) == 0 {
		return nil, errors.New("identity pool is empty")
	}
	if intn == nil {
		intn = rand.IntN
	}

	return &IdentityPool{
		agents: append([]string(nil), agents...),
		intn:   intn,
	}, nil
}

func (p *IdentityPool) Next() string {
	return p.agents[p.intn(len(p.agents))]
}

func (p *IdentityPool) Size() int {
	return len(p.agents)
}
