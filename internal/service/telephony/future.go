package telephony

import (
	"context"
	"time"

	"github.com/outdial/outdial/internal/domain/errors"
)

// Default command deadlines. Hangup is best-effort cleanup and gets a short
// one; origination round-trips get the long one.
const (
	commandTimeout = 30 * time.Second
	hangupTimeout  = 5 * time.Second
)

type opResult struct {
	value string
	err   error
}

// await runs op with a hard deadline. A protocol round-trip that never
// replies fails the operation instead of hanging the engine; the abandoned
// goroutine drains into the buffered channel.
func await(ctx context.Context, timeout time.Duration, op func() (string, error)) (string, error) {
	ch := make(chan opResult, 1)
	go func() {
		v, err := op()
		ch <- opResult{value: v, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		return res.value, res.err
	case <-timer.C:
		return "", errors.NewExternalError("telephony provider", "command timed out")
	case <-ctx.Done():
		return "", errors.NewExternalError("telephony provider", "command cancelled").WithCause(ctx.Err())
	}
}
