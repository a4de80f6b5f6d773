package services

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/ticketdesk/orderbot/logger"
	"github.com/ticketdesk/orderbot/types"
	"go.uber.org/zap"
)

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// QueueStats is satisfied by *WorkerPool.
type QueueStats interface {
	QueueDepth() int
	IsRunning() bool
}

// GatewayStatus reports whether the chat gateway session is connected.
type GatewayStatus interface {
	Connected() bool
}

// HealthService aggregates the status of the bot's dependencies. Nil
// dependencies are disabled and not reported.
type HealthService struct {
	db          Pinger
	redisClient *redis.Client
	queue       QueueStats
	queueSize   int
	gateway     GatewayStatus
	version     string
	startTime   time.Time
	log         *zap.SugaredLogger
}

func NewHealthService(db Pinger, redisClient *redis.Client, queue QueueStats, queueSize int, version string) *HealthService {
	return &HealthService{
		db:          db,
		redisClient: redisClient,
		queue:       queue,
		queueSize:   queueSize,
		version:     version,
		startTime:   time.Now(),
		log:         logger.GetLogger(),
	}
}

// SetGateway attaches the chat gateway once its session is open.
func (h *HealthService) SetGateway(g GatewayStatus) {
	h.gateway = g
}

func (h *HealthService) CheckHealth(ctx context.Context) types.HealthCheck {
	components := make(map[string]types.HealthComponent)
	overallStatus := types.HealthStatusUp

	record := func(name string, c types.HealthComponent) {
		components[name] = c
		switch c.Status {
		case types.HealthStatusDown:
			overallStatus = types.HealthStatusDown
		case types.HealthStatusDegraded:
			if overallStatus != types.HealthStatusDown {
				overallStatus = types.HealthStatusDegraded
			}
		}
	}

	if h.db != nil {
		record("database", h.checkDatabase(ctx))
	}
	if h.redisClient != nil {
		record("redis", h.checkRedis(ctx))
	}
	if h.queue != nil {
		record("worker_pool", h.checkQueue())
	}
	if h.gateway != nil {
		record("discord", h.checkGateway())
	}

	return types.HealthCheck{
		Status:     overallStatus,
		Components: components,
		Version:    h.version,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Uptime:     time.Since(h.startTime).Round(time.Second).String(),
	}
}

// IsLive reports whether the process can still schedule submissions.
func (h *HealthService) IsLive() bool {
	return h.queue == nil || h.queue.IsRunning()
}

// checkDatabase degrades rather than fails: the outcome ledger is best effort.
func (h *HealthService) checkDatabase(ctx context.Context) types.HealthComponent {
	if err := h.db.Ping(ctx); err != nil {
		h.log.Errorw("Database health check failed", "error", err)
		return types.HealthComponent{
			Status:  types.HealthStatusDegraded,
			Details: "Outcome ledger unreachable",
		}
	}
	return types.HealthComponent{Status: types.HealthStatusUp}
}

func (h *HealthService) checkRedis(ctx context.Context) types.HealthComponent {
	if err := h.redisClient.Ping(ctx).Err(); err != nil {
		h.log.Errorw("Redis health check failed", "error", err)
		return types.HealthComponent{
			Status:  types.HealthStatusDegraded,
			Details: "Redis connection failed, dedup and throttling disabled",
		}
	}
	return types.HealthComponent{Status: types.HealthStatusUp}
}

func (h *HealthService) checkQueue() types.HealthComponent {
	if !h.queue.IsRunning() {
		return types.HealthComponent{Status: types.HealthStatusDown, Details: "Worker pool stopped"}
	}
	if h.queueSize > 0 && float64(h.queue.QueueDepth())/float64(h.queueSize) > 0.8 {
		return types.HealthComponent{Status: types.HealthStatusDegraded, Details: "Submission queue near capacity"}
	}
	return types.HealthComponent{Status: types.HealthStatusUp}
}

func (h *HealthService) checkGateway() types.HealthComponent {
	if !h.gateway.Connected() {
		return types.HealthComponent{Status: types.HealthStatusDown, Details: "Discord gateway disconnected"}
	}
	return types.HealthComponent{Status: types.HealthStatusUp}
}
