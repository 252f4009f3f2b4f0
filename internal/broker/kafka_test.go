package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
)

func countingHandler(failures int, calls *int) MessageHandler {
	return func(context.Context, kafka.Message) error {
		*calls++
		if *calls <= failures {
			return errors.New("board unavailable")
		}
		return nil
	}
}

func TestHandleWithRetrySucceedsAfterTransientFailure(t *testing.T) {
	calls := 0

	err := handleWithRetry(context.Background(), countingHandler(1, &calls), kafka.Message{}, 3, time.Millisecond)

	assert.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestHandleWithRetryGivesUpAfterAttempts(t *testing.T) {
	calls := 0

	err := handleWithRetry(context.Background(), countingHandler(10, &calls), kafka.Message{}, 3, time.Millisecond)

	assert.EqualError(t, err, "board unavailable")
	assert.Equal(t, 3, calls)
}

func TestHandleWithRetryStopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	handler := func(context.Context, kafka.Message) error {
		calls++
		cancel()
		return errors.New("board unavailable")
	}

	err := handleWithRetry(ctx, handler, kafka.Message{}, 3, time.Hour)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
