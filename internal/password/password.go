// Package password hashes and verifies account passwords with bcrypt.
//
// bcrypt is deliberately slow, so the Hasher bounds how many hashes run at
// once and lets a caller walk away from an in-flight computation: the work
// finishes in the background and its result is dropped.
package password

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

// MaxBytes is the longest input bcrypt will hash.
const MaxBytes = 72

// dummyPassword seeds the hash used to equalize login timing for unknown users.
const dummyPassword = "timing-equalizer"

// Hasher computes salted bcrypt hashes with a fixed cost.
type Hasher struct {
	cost      int
	sem       *semaphore.Weighted
	dummyHash []byte
}

// NewHasher returns a Hasher using the given bcrypt cost. concurrency limits
// simultaneous computations; zero means GOMAXPROCS. The hash used by
// VerifyDummy is computed here, at the configured cost.
func NewHasher(cost, concurrency int) (*Hasher, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost %d out of range [%d, %d]", cost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	if concurrency < 0 {
		return nil, errors.New("hash concurrency must not be negative")
	}
	if concurrency == 0 {
		concurrency = runtime.GOMAXPROCS(0)
	}
	dummyHash, err := bcrypt.GenerateFromPassword([]byte(dummyPassword), cost)
	if err != nil {
		return nil, fmt.Errorf("generate dummy hash: %w", err)
	}
	return &Hasher{
		cost:      cost,
		sem:       semaphore.NewWeighted(int64(concurrency)),
		dummyHash: dummyHash,
	}, nil
}

// Cost returns the configured bcrypt cost.
func (h *Hasher) Cost() int {
	return h.cost
}

// Hash returns the bcrypt hash of plain. A fresh salt is generated per call
// and embedded in the result.
func (h *Hasher) Hash(ctx context.Context, plain string) (string, error) {
	hash, err := run(ctx, h.sem, func() ([]byte, error) {
		return bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	})
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Verify reports whether plain matches hash. A mismatch is not an error.
func (h *Hasher) Verify(ctx context.Context, hash, plain string) (bool, error) {
	return verify(ctx, h.sem, []byte(hash), plain)
}

// VerifyDummy runs one comparison against a throwaway hash so that a login
// for an unknown user costs about the same as a wrong password.
func (h *Hasher) VerifyDummy(ctx context.Context, plain string) error {
	_, err := verify(ctx, h.sem, h.dummyHash, plain)
	return err
}

func verify(ctx context.Context, sem *semaphore.Weighted, hash []byte, plain string) (bool, error) {
	_, err := run(ctx, sem, func() ([]byte, error) {
		return nil, bcrypt.CompareHashAndPassword(hash, []byte(plain))
	})
	if err == nil {
		return true, nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	return false, err
}

type result struct {
	out []byte
	err error
}

func run(ctx context.Context, sem *semaphore.Weighted, fn func() ([]byte, error)) ([]byte, error) {
	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	done := make(chan result, 1)
	go func() {
		defer sem.Release(1)
		out, err := fn()
		done <- result{out: out, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-done:
		return res.out, res.err
	}
}
