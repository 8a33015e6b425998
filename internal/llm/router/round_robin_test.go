package router

import (
	"testing"

	"github.com/stretchr/testify/require"

	"slack-calendar/internal/ports"
)

func TestRoundRobinStrategy(t *testing.T) {
	clients := []ports.LLMClient{
		newMockClient("client-1", true),
		newMockClient("client-2", true),
		newMockClient("client-3", true),
	}

	strategy := NewRoundRobinStrategy()

	for _, want := range []string{"client-1", "client-2", "client-3", "client-1"} {
		c, err := strategy.Next(clients)
		require.NoError(t, err)
		require.Equal(t, want, c.ID())
	}
}

func TestRoundRobinStrategy_NoClients(t *testing.T) {
	strategy := NewRoundRobinStrategy()
	_, err := strategy.Next(nil)
	require.ErrorIs(t, err, ErrNoHealthyClients)
}
