package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lifeline/internal/model"
)

func TestCollector_RecordsInOrder(t *testing.T) {
	t.Parallel()

	var seen []string
	c := NewCollector(func(stage, _ string) { seen = append(seen, stage) })

	c.Progress("init", "a")
	c.Progress("attempt", "b")
	c.Complete(&model.CompletePayload{Cost: 50})
	c.Progress("late", "dropped")
	c.Fail(model.ErrorPayload{Error: "X"})
	c.Close()

	events := c.Events()
	require.Len(t, events, 2)
	assert.Equal(t, "init", events[0].Stage)
	assert.Equal(t, "b", events[1].Message)
	assert.Equal(t, []string{"init", "attempt"}, seen)

	done, failed := c.Result()
	require.NotNil(t, done)
	assert.Nil(t, failed)
	assert.Equal(t, 50, done.Cost)
}

func TestCollector_Failure(t *testing.T) {
	t.Parallel()

	c := NewCollector(nil)
	c.Fail(model.ErrorPayload{Error: "EMPTY_MODEL_RESPONSE", Message: "empty"})
	c.Complete(&model.CompletePayload{})

	done, failed := c.Result()
	assert.Nil(t, done)
	require.NotNil(t, failed)
	assert.Equal(t, "EMPTY_MODEL_RESPONSE", failed.Error)
}

func TestCollector_ClosedDropsEverything(t *testing.T) {
	t.Parallel()

	c := NewCollector(nil)
	c.Close()
	c.Progress("x", "y")
	c.Complete(&model.CompletePayload{})

	done, failed := c.Result()
	assert.Nil(t, done)
	assert.Nil(t, failed)
	assert.Empty(t, c.Events())
}

func TestCollector_ImplementsChannel(t *testing.T) {
	t.Parallel()

	var _ Channel = NewCollector(nil)
	var _ Channel = (*SSE)(nil)
}
