package audit

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySinkRecordsInOrder(t *testing.T) {
	s := NewMemorySink()

	for _, kind := range []Kind{KindFixProposed, KindFixApproved, KindFixSucceeded} {
		require.NoError(t, s.Record(context.Background(), Event{
			ID:    string(kind) + "-ev",
			Time:  time.Now(),
			Kind:  kind,
			FixID: "fix-1",
		}))
	}

	events := s.Events()
	require.Len(t, events, 3)
	assert.Equal(t, KindFixProposed, events[0].Kind)
	assert.Equal(t, KindFixApproved, events[1].Kind)
	assert.Equal(t, KindFixSucceeded, events[2].Kind)
}

func TestMemorySinkEventsReturnsCopy(t *testing.T) {
	s := NewMemorySink()
	require.NoError(t, s.Record(context.Background(), Event{Kind: KindFixProposed}))

	first := s.Events()
	first[0].Kind = KindFixFailed

	assert.Equal(t, KindFixProposed, s.Events()[0].Kind)
}

func TestMemorySinkConcurrentRecord(t *testing.T) {
	s := NewMemorySink()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Record(context.Background(), Event{Kind: KindFixExecuting})
		}()
	}
	wg.Wait()

	assert.Len(t, s.Events(), 20)
}

func TestEventJSONOmitsEmptyFields(t *testing.T) {
	data, err := json.Marshal(Event{ID: "ev-1", Kind: KindFixProposed, FixID: "fix-1"})
	require.NoError(t, err)

	assert.NotContains(t, string(data), "diagnosis_id")
	assert.NotContains(t, string(data), "detail")
	assert.Contains(t, string(data), `"kind":"fix.proposed"`)
}
