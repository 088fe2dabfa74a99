package telephony

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outdial/outdial/internal/domain/errors"
)

func TestAwait(t *testing.T) {
	t.Run("returns the operation result", func(t *testing.T) {
		got, err := await(context.Background(), time.Second, func() (string, error) {
			return "+OK", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "+OK", got)
	})

	t.Run("propagates operation errors", func(t *testing.T) {
		wantErr := errors.NewExternalError("freeswitch", "boom")
		_, err := await(context.Background(), time.Second, func() (string, error) {
			return "", wantErr
		})
		assert.Equal(t, wantErr, err)
	})

	t.Run("times out a hung operation", func(t *testing.T) {
		block := make(chan struct{})
		defer close(block)

		_, err := await(context.Background(), 10*time.Millisecond, func() (string, error) {
			<-block
			return "", nil
		})
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeExternal))
		assert.True(t, errors.IsRetryable(err))
	})

	t.Run("honors context cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		block := make(chan struct{})
		defer close(block)

		_, err := await(ctx, time.Second, func() (string, error) {
			<-block
			return "", nil
		})
		assert.Error(t, err)
	})
}
