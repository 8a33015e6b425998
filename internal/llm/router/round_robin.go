package router

import (
	"sync/atomic"

	"slack-calendar/internal/ports"
)

// RoundRobinStrategy реализует стратегию выбора "по кругу" (Round Robin).
type RoundRobinStrategy struct {
	currentIndex atomic.Uint32
}

// NewRoundRobinStrategy создает новую Round Robin стратегию.
func NewRoundRobinStrategy() *RoundRobinStrategy {
	return &RoundRobinStrategy{}
}

// Next возвращает следующего клиента в списке, инкрементируя индекс по кругу.
func (s *RoundRobinStrategy) Next(clients []ports.LLMClient) (ports.LLMClient, error) {
	if len(clients) == 0 {
		return nil, ErrNoHealthyClients
	}
	idx := s.currentIndex.Add(1) - 1
	return clients[idx%uint32(len(clients))], nil
}
