package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"slack-calendar/internal/llm"
	"slack-calendar/internal/pkg/config"
	"slack-calendar/internal/ports"
)

var (
	// ErrNoHealthyClients возвращается, когда в пуле нет доступных для работы клиентов.
	ErrNoHealthyClients = errors.New("no healthy clients available")
)

// Option определяет функциональную опцию для конфигурации роутера.
type Option func(*Router)

// WithServerConfigs — опция для передачи конфигураций серверов.
// Клиенты будут созданы внутри роутера.
func WithServerConfigs(servers []config.LLMServer) Option {
	return func(r *Router) {
		for _, srv := range servers {
			r.clients = append(r.clients, llm.NewClient(llm.Config{
				Name:    srv.Name,
				BaseURL: srv.BaseURL,
				APIKey:  srv.APIKey,
				Model:   srv.Model,
			}, llm.WithLogger(r.log)))
		}
	}
}

// WithClients передает уже созданных клиентов.
func WithClients(clients ...ports.LLMClient) Option {
	return func(r *Router) {
		r.clients = append(r.clients, clients...)
	}
}

// WithHealthCheckInterval — опция для установки интервала проверки работоспособности.
func WithHealthCheckInterval(d time.Duration) Option {
	return func(r *Router) {
		if d > 0 {
			r.healthCheckInterval = d
		}
	}
}

// WithStrategy — опция для установки стратегии выбора клиента.
func WithStrategy(s ports.Strategy) Option {
	return func(r *Router) {
		if s != nil {
			r.strategy = s
		}
	}
}

// WithLogger — опция для установки логгера. Должна идти раньше WithServerConfigs.
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) {
		if l != nil {
			r.log = l
		}
	}
}

// Router управляет пулом LLM-клиентов, их состоянием и выбором.
type Router struct {
	mu        sync.RWMutex
	healthy   map[string]ports.LLMClient
	unhealthy map[string]ports.LLMClient
	strategy  ports.Strategy
	log       *slog.Logger

	clients             []ports.LLMClient
	healthCheckInterval time.Duration
	ticker              *time.Ticker
	done                chan struct{}
	wg                  sync.WaitGroup
	stopOnce            sync.Once
}

// NewRouter создает роутер и запускает фоновую проверку нездоровых клиентов.
func NewRouter(opts ...Option) (*Router, error) {
	r := &Router{
		healthy:             make(map[string]ports.LLMClient),
		unhealthy:           make(map[string]ports.LLMClient),
		strategy:            NewRoundRobinStrategy(),
		healthCheckInterval: 30 * time.Second,
		done:                make(chan struct{}),
		log:                 slog.Default().With("component", "llm_router"),
	}

	for _, opt := range opts {
		opt(r)
	}

	if len(r.clients) == 0 {
		return nil, errors.New("no llm servers provided to router")
	}
	for _, c := range r.clients {
		if _, dup := r.healthy[c.ID()]; dup {
			return nil, fmt.Errorf("duplicate llm client id %q", c.ID())
		}
		r.healthy[c.ID()] = c
	}
	r.clients = nil

	r.ticker = time.NewTicker(r.healthCheckInterval)
	r.wg.Add(1)
	go r.healthCheckLoop()

	return r, nil
}

// GetClient возвращает работоспособного клиента согласно текущей стратегии.
// Клиент обернут в clientWrapper, который отслеживает ошибки вызовов.
func (r *Router) GetClient(ctx context.Context) (ports.LLMClient, error) {
	r.mu.RLock()
	clients := make([]ports.LLMClient, 0, len(r.healthy))
	for _, c := range r.healthy {
		clients = append(clients, c)
	}
	strategy := r.strategy
	r.mu.RUnlock()

	// Порядок обхода map случаен, а стратегии нужен стабильный список.
	sort.Slice(clients, func(i, j int) bool { return clients[i].ID() < clients[j].ID() })

	client, err := strategy.Next(clients)
	if err != nil {
		r.log.ErrorContext(ctx, "Strategy failed to get next client", "error", err)
		return nil, fmt.Errorf("strategy failed to get next client: %w", err)
	}

	r.log.DebugContext(ctx, "Client selected by strategy", "client_id", client.ID())
	return &clientWrapper{LLMClient: client, router: r}, nil
}

// SetStrategy позволяет безопасно сменить стратегию выбора клиента на лету.
func (r *Router) SetStrategy(s ports.Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategy = s
	r.log.Info("router strategy updated")
}

// Stop останавливает фоновую проверку работоспособности клиентов.
func (r *Router) Stop() {
	r.stopOnce.Do(func() {
		r.log.Info("stopping llm router...")
		r.ticker.Stop()
		close(r.done)
		r.wg.Wait()
		r.log.Info("llm router stopped")
	})
}

func (r *Router) healthCheckLoop() {
	defer r.wg.Done()
	for {
		select {
		case <-r.ticker.C:
			r.checkUnhealthyClients()
		case <-r.done:
			return
		}
	}
}

// checkUnhealthyClients возвращает восстановившихся клиентов в пул здоровых.
func (r *Router) checkUnhealthyClients() {
	r.mu.RLock()
	ids := make([]string, 0, len(r.unhealthy))
	for id := range r.unhealthy {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	if len(ids) == 0 {
		return
	}
	r.log.Debug("starting periodic health check for unhealthy clients", "count", len(ids))

	for _, id := range ids {
		r.mu.RLock()
		client, ok := r.unhealthy[id]
		r.mu.RUnlock()
		if !ok {
			continue
		}

		if err := client.Health(context.Background()); err == nil {
			r.log.Info("client recovered, moving back to healthy pool", "client_id", id)
			r.setClientHealthy(id)
		} else {
			r.log.Debug("Client remains unhealthy", "client_id", id, "reason", err)
		}
	}
}

// forceHealthCheck проверяет клиента после ошибки и при неудаче убирает его из пула.
func (r *Router) forceHealthCheck(client ports.LLMClient) {
	r.log.Debug("Принудительная проверка работоспособности клиента", "client_id", client.ID())
	if err := client.Health(context.Background()); err != nil {
		r.log.Warn(
			"Клиент не прошел проверку работоспособности после ошибки, перемещение в пул неработоспособных",
			"client_id", client.ID(),
			"reason", err,
		)
		r.setClientUnhealthy(client.ID())
	}
}

func (r *Router) setClientUnhealthy(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	client, ok := r.healthy[id]
	if !ok {
		return
	}
	delete(r.healthy, id)
	r.unhealthy[id] = client

	r.log.Warn("Client moved to unhealthy pool", "client_id", id, "healthy_count", len(r.healthy), "unhealthy_count", len(r.unhealthy))
}

func (r *Router) setClientHealthy(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	client, ok := r.unhealthy[id]
	if !ok {
		return
	}
	delete(r.unhealthy, id)
	r.healthy[id] = client

	r.log.Info("Client moved back to healthy pool", "client_id", id, "healthy_count", len(r.healthy), "unhealthy_count", len(r.unhealthy))
}

// clientWrapper перехватывает ошибки вызовов и запускает проверку клиента.
type clientWrapper struct {
	ports.LLMClient
	router *Router
}

func (w *clientWrapper) CompleteJSON(ctx context.Context, systemPrompt, userContent string) (string, error) {
	out, err := w.LLMClient.CompleteJSON(ctx, systemPrompt, userContent)
	// Таймаут вызывающего - не признак неисправности сервера.
	if err != nil && ctx.Err() == nil {
		w.router.log.WarnContext(ctx, "CompleteJSON call failed", "client_id", w.ID(), "error", err)
		go w.router.forceHealthCheck(w.LLMClient)
	}
	return out, err
}
