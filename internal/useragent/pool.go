// Package useragent provides a pool of browser identities used when probing
// upstreams that reject non-browser clients.
package useragent

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"

	"github.com/restreamarr/restreamarr/internal/repository"
)

// browserAgents is the built-in identity set. Rotating through distinct,
// current browser strings keeps a refreshed credential probe from being
// fingerprinted as the same rejected client.
var browserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0",
}

// Pool hands out browser identities, mixing operator-stored agents into the
// built-in set when a repository is attached.
type Pool struct {
	mu     sync.Mutex
	rand   *rand.Rand
	repo   repository.UserAgentRepository
	logger *slog.Logger
}

// NewPool creates a pool backed by the built-in identity set.
func NewPool(seed int64) *Pool {
	return &Pool{
		rand:   rand.New(rand.NewSource(seed)),
		logger: slog.Default(),
	}
}

// WithRepository mixes stored user agents into the pool.
func (p *Pool) WithRepository(repo repository.UserAgentRepository) *Pool {
	p.repo = repo
	return p
}

// WithLogger sets a custom logger.
func (p *Pool) WithLogger(logger *slog.Logger) *Pool {
	p.logger = logger
	return p
}

// Random returns a random browser identity.
func (p *Pool) Random(ctx context.Context) string {
	agents := browserAgents

	if p.repo != nil {
		stored, err := p.repo.List(ctx)
		if err != nil {
			p.logger.Warn("listing stored user agents, using built-in set",
				slog.String("error", err.Error()))
		} else {
			for _, ua := range stored {
				agents = append(agents, ua.UserAgent)
			}
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return agents[p.rand.Intn(len(agents))]
}
