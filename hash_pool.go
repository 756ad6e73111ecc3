package login

import (
	"context"
	"runtime"

	"github.com/goliatone/go-errors"
	"golang.org/x/sync/semaphore"
)

// HashPool runs hash operations off the caller's goroutine, bounds how
// many run at once, and gives up when the context is done. A hash that
// overruns its deadline keeps its slot until it finishes.
type HashPool struct {
	hasher CredentialHasher
	sem    *semaphore.Weighted
}

// NewHashPool wraps hasher. size <= 0 uses GOMAXPROCS.
func NewHashPool(hasher CredentialHasher, size int) *HashPool {
	if size <= 0 {
		size = runtime.GOMAXPROCS(0)
	}
	return &HashPool{
		hasher: hasher,
		sem:    semaphore.NewWeighted(int64(size)),
	}
}

type hashResult struct {
	hash string
	ok   bool
	err  error
}

// Derive computes a mail-bound hash for password
func (p *HashPool) Derive(ctx context.Context, password, mail string) (string, error) {
	res, err := p.run(ctx, func() hashResult {
		h, err := p.hasher.Derive(password, mail)
		return hashResult{hash: h, err: err}
	})
	if err != nil {
		return "", err
	}
	return res.hash, res.err
}

// Verify checks password against hash for mail
func (p *HashPool) Verify(ctx context.Context, password, mail, hash string) (bool, error) {
	if hash == "" {
		return false, nil
	}

	res, err := p.run(ctx, func() hashResult {
		return hashResult{ok: p.hasher.Verify(password, mail, hash)}
	})
	if err != nil {
		return false, err
	}
	return res.ok, nil
}

func (p *HashPool) run(ctx context.Context, fn func() hashResult) (hashResult, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return hashResult{}, errors.Wrap(err, errors.CategoryOperation, ErrHashTimeout.Message).
			WithTextCode(TextCodeHashTimeout)
	}

	done := make(chan hashResult, 1)
	go func() {
		defer p.sem.Release(1)
		done <- fn()
	}()

	select {
	case <-ctx.Done():
		return hashResult{}, errors.Wrap(ctx.Err(), errors.CategoryOperation, ErrHashTimeout.Message).
			WithTextCode(TextCodeHashTimeout)
	case res := <-done:
		return res, nil
	}
}

var _ Credentials = (*HashPool)(nil)
