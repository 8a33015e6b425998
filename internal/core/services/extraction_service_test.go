package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"slack-calendar/internal/domain"
	"slack-calendar/internal/ports"
)

// mockRouter — это мок для интерфейса ports.LLMRouter.
type mockRouter struct {
	mock.Mock
}

func (m *mockRouter) GetClient(ctx context.Context) (ports.LLMClient, error) {
	args := m.Called(ctx)
	if cli := args.Get(0); cli != nil {
		return cli.(ports.LLMClient), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockRouter) Stop() {}

func makeMessages(n int) []domain.Message {
	msgs := make([]domain.Message, n)
	for i := range msgs {
		msgs[i] = domain.Message{
			Channel:   "general",
			User:      fmt.Sprintf("U%d", i),
			Timestamp: testNow.Add(time.Duration(i) * time.Second),
			Text:      fmt.Sprintf("message %d", i),
		}
	}
	return msgs
}

// decodeBatch возвращает элементы запроса, отправленного модели.
func decodeBatch(t *testing.T, content string) []extractionItem {
	t.Helper()
	var items []extractionItem
	require.NoError(t, json.Unmarshal([]byte(content), &items))
	return items
}

// eventsFor строит ответ модели с одним событием на первое сообщение пачки.
func eventsFor(items []extractionItem) string {
	resp := map[string]any{
		"events": []map[string]any{{
			"title":          "Event for " + items[0].ID,
			"date":           "2024-05-21",
			"start_time":     "10:00",
			"raw_message_id": items[0].ID,
		}},
	}
	data, _ := json.Marshal(resp)
	return string(data)
}

func TestExtractionService_Extract(t *testing.T) {
	ctx := context.Background()

	t.Run("EmptyInputSkipsModel", func(t *testing.T) {
		router := new(mockRouter)
		svc := NewExtractionService(router, WithLogger(discardLogger()))

		events, err := svc.Extract(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, events)
		router.AssertNotCalled(t, "GetClient", mock.Anything)
	})

	t.Run("FourHundredFiftyMessagesMakeThreeBatches", func(t *testing.T) {
		var (
			mu    sync.Mutex
			sizes []int
		)
		client := &MockLLMClient{
			CompleteJSONFunc: func(_ context.Context, system, content string) (string, error) {
				assert.Contains(t, system, `"events"`)
				items := decodeBatch(t, content)
				mu.Lock()
				sizes = append(sizes, len(items))
				mu.Unlock()
				return eventsFor(items), nil
			},
		}
		router := new(mockRouter)
		router.On("GetClient", mock.Anything).Return(client, nil)

		svc := NewExtractionService(router, WithLogger(discardLogger()))
		events, err := svc.Extract(ctx, makeMessages(450))
		require.NoError(t, err)

		assert.Equal(t, []int{200, 200, 50}, sizes)
		assert.Len(t, events, 3)
		router.AssertNumberOfCalls(t, "GetClient", 3)
	})

	t.Run("RequestItemsCarryCompositeIDAndTs", func(t *testing.T) {
		msgs := makeMessages(1)
		client := &MockLLMClient{
			CompleteJSONFunc: func(_ context.Context, _, content string) (string, error) {
				items := decodeBatch(t, content)
				require.Len(t, items, 1)
				assert.Equal(t, msgs[0].CompositeID(), items[0].ID)
				assert.Equal(t, "2024-05-20T12:00:00Z", items[0].TS)
				assert.Equal(t, "general", items[0].Channel)
				assert.Equal(t, "message 0", items[0].Text)
				return `{"events": []}`, nil
			},
		}
		router := new(mockRouter)
		router.On("GetClient", mock.Anything).Return(client, nil)

		events, err := NewExtractionService(router, WithLogger(discardLogger())).Extract(ctx, msgs)
		require.NoError(t, err)
		assert.Empty(t, events)
	})

	t.Run("PartialFailureReturnsEventsAndError", func(t *testing.T) {
		calls := 0
		client := &MockLLMClient{
			CompleteJSONFunc: func(_ context.Context, _, content string) (string, error) {
				calls++
				if calls == 2 {
					return "", errors.New("server overloaded")
				}
				return eventsFor(decodeBatch(t, content)), nil
			},
		}
		router := new(mockRouter)
		router.On("GetClient", mock.Anything).Return(client, nil)

		svc := NewExtractionService(router, WithBatchSize(10), WithLogger(discardLogger()))
		events, err := svc.Extract(ctx, makeMessages(30))

		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrExtraction)
		var extErr *domain.ExtractionError
		require.ErrorAs(t, err, &extErr)
		assert.Equal(t, 3, extErr.Batches)
		require.Len(t, extErr.Failed, 1)
		assert.Equal(t, 1, extErr.Failed[0].Index)
		assert.Equal(t, 10, extErr.Failed[0].Size)
		assert.False(t, extErr.Total())
		assert.Len(t, events, 2)
	})

	t.Run("AllBatchesFail", func(t *testing.T) {
		client := &MockLLMClient{
			CompleteJSONFunc: func(context.Context, string, string) (string, error) {
				return "", errors.New("connection refused")
			},
		}
		router := new(mockRouter)
		router.On("GetClient", mock.Anything).Return(client, nil)

		svc := NewExtractionService(router, WithBatchSize(5), WithLogger(discardLogger()))
		events, err := svc.Extract(ctx, makeMessages(12))

		var extErr *domain.ExtractionError
		require.ErrorAs(t, err, &extErr)
		assert.True(t, extErr.Total())
		assert.Equal(t, 3, extErr.Batches)
		assert.Empty(t, events)
	})

	t.Run("RouterWithoutClients", func(t *testing.T) {
		router := new(mockRouter)
		router.On("GetClient", mock.Anything).Return(nil, errors.New("no healthy clients"))

		_, err := NewExtractionService(router, WithLogger(discardLogger())).Extract(ctx, makeMessages(3))
		var extErr *domain.ExtractionError
		require.ErrorAs(t, err, &extErr)
		assert.True(t, extErr.Total())
		assert.Contains(t, err.Error(), "no healthy clients")
	})

	t.Run("MissingEventsIsFailure", func(t *testing.T) {
		client := &MockLLMClient{
			CompleteJSONFunc: func(context.Context, string, string) (string, error) {
				return `{"items": []}`, nil
			},
		}
		router := new(mockRouter)
		router.On("GetClient", mock.Anything).Return(client, nil)

		_, err := NewExtractionService(router, WithLogger(discardLogger())).Extract(ctx, makeMessages(2))
		var extErr *domain.ExtractionError
		require.ErrorAs(t, err, &extErr)
		assert.ErrorIs(t, extErr.Failed[0].Err, ErrMissingEvents)
	})

	t.Run("InvalidJSONIsFailure", func(t *testing.T) {
		client := &MockLLMClient{
			CompleteJSONFunc: func(context.Context, string, string) (string, error) {
				return `Sure! Here are your events: [`, nil
			},
		}
		router := new(mockRouter)
		router.On("GetClient", mock.Anything).Return(client, nil)

		_, err := NewExtractionService(router, WithLogger(discardLogger())).Extract(ctx, makeMessages(2))
		var extErr *domain.ExtractionError
		require.ErrorAs(t, err, &extErr)
		assert.Contains(t, extErr.Failed[0].Err.Error(), "parse llm response")
	})

	t.Run("SourceChannelFilledInvalidDropped", func(t *testing.T) {
		msgs := makeMessages(2)
		msgs[1].Channel = "random"
		client := &MockLLMClient{
			CompleteJSONFunc: func(context.Context, string, string) (string, error) {
				resp := fmt.Sprintf(`{"events": [
					{"title": "Demo", "date": "2024-05-22", "start_time": "25:99", "end_time": "16:00:00", "raw_message_id": %q},
					{"title": "", "date": "2024-05-22", "source_channel": "general"},
					{"title": "No date", "source_channel": "general"},
					{"title": "Bad date", "date": "May 22", "source_channel": "general"},
					"not an object",
					{"title": "  Retro  ", "date": "2024-05-23", "source_channel": "design"}
				]}`, msgs[1].CompositeID())
				return resp, nil
			},
		}
		router := new(mockRouter)
		router.On("GetClient", mock.Anything).Return(client, nil)

		events, err := NewExtractionService(router, WithLogger(discardLogger())).Extract(ctx, msgs)
		require.NoError(t, err)
		require.Len(t, events, 2)

		assert.Equal(t, "Demo", events[0].Title)
		assert.Equal(t, "random", events[0].SourceChannel)
		assert.Empty(t, events[0].StartTime)
		assert.Equal(t, "16:00", events[0].EndTime)
		assert.Equal(t, msgs[1].CompositeID(), events[0].RawMessageID)

		assert.Equal(t, "Retro", events[1].Title)
		assert.Equal(t, "design", events[1].SourceChannel)
	})

	t.Run("OperationTimeout", func(t *testing.T) {
		client := &MockLLMClient{
			CompleteJSONFunc: func(ctx context.Context, _, _ string) (string, error) {
				<-ctx.Done()
				return "", ctx.Err()
			},
		}
		router := new(mockRouter)
		router.On("GetClient", mock.Anything).Return(client, nil)

		svc := NewExtractionService(router, WithOperationTimeout(20*time.Millisecond), WithLogger(discardLogger()))
		_, err := svc.Extract(ctx, makeMessages(1))
		var extErr *domain.ExtractionError
		require.ErrorAs(t, err, &extErr)
		assert.ErrorIs(t, extErr.Failed[0].Err, context.DeadlineExceeded)
		assert.True(t, strings.Contains(err.Error(), "mock-llm"))
	})
}
