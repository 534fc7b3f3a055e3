package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker"
	"github.com/xela07ax/sentinel-console/internal/domain"
	"github.com/xela07ax/sentinel-console/internal/infra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Reliability оборачивает Client транспортными политиками:
//   - Rate Limiter на все вызовы;
//   - Circuit Breaker на команды и чтения (кроме опроса статуса — его
//     каденс принадлежит трекеру, отказ там трактуется как "неизвестно");
//   - Повторы ТОЛЬКО на идемпотентных чтениях. Команды (start/stop,
//     approve/reject, submit) не ретраим: отказ доносится до вызывающего.
type Reliability struct {
	next    *Client
	cb      *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	logger  *zap.Logger
}

func NewReliability(next *Client, logger *zap.Logger, metrics *infra.Metrics) *Reliability {
	if metrics == nil {
		metrics = infra.NewMetrics(nil)
	}
	log := logger.Named("reliability")

	// Настройка предохранителя
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "sentinel-backend",
		MaxRequests: 3,
		Interval:    5 * time.Second,
		Timeout:     30 * time.Second, // Время, через которое CB попробует "закрыться"
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		// Отказ, о котором сообщил сам бэкенд (4xx) — не повод открывать CB:
		// транспорт жив, это ошибка запроса
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var be *BackendError
			return errors.As(err, &be) && be.StatusCode < 500
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			val := 0.0
			if to == gobreaker.StateOpen {
				val = 1.0
			}
			metrics.BreakerState.Set(val)
			log.Warn("circuit breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	// Лимитер щадящий: консоль — единственный потребитель бэкенда
	limiter := rate.NewLimiter(rate.Limit(20), 10)

	return &Reliability{
		next:    next,
		cb:      cb,
		limiter: limiter,
		logger:  log,
	}
}

// command — одна попытка через лимитер и предохранитель
func command[T any](ctx context.Context, r *Reliability, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	if err := r.limiter.Wait(ctx); err != nil {
		return zero, fmt.Errorf("rate limit exceeded: %w", err)
	}

	res, err := r.cb.Execute(func() (interface{}, error) {
		return fn(ctx)
	})
	if err != nil {
		return zero, err
	}
	return res.(T), nil
}

// idempotent — чтение с повторами внутри предохранителя.
// Ошибки уровня бэкенда (BackendError) не ретраим — ответ уже есть.
func idempotent[T any](ctx context.Context, r *Reliability, fn func(context.Context) (T, error)) (T, error) {
	return command(ctx, r, func(ctx context.Context) (T, error) {
		var out T

		rt := retry.New(
			retry.Context(ctx),
			retry.Attempts(3),
			retry.RetryIf(func(err error) bool {
				var be *BackendError
				return !errors.As(err, &be)
			}),
		)

		err := rt.Do(func() error {
			var callErr error
			out, callErr = fn(ctx)
			return callErr
		})
		return out, err
	})
}

func (r *Reliability) StartCampaign(ctx context.Context, req StartCampaignRequest) (*StartCampaignResponse, error) {
	return command(ctx, r, func(ctx context.Context) (*StartCampaignResponse, error) {
		return r.next.StartCampaign(ctx, req)
	})
}

func (r *Reliability) StopCampaign(ctx context.Context) (*StopCampaignResponse, error) {
	return command(ctx, r, func(ctx context.Context) (*StopCampaignResponse, error) {
		return r.next.StopCampaign(ctx)
	})
}

// CampaignStatus идет мимо предохранителя и повторов намеренно: трекер сам
// решает, что делать с отказом (ничего), а каденс попыток — это его тикер.
func (r *Reliability) CampaignStatus(ctx context.Context) (*CampaignStatusResponse, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit exceeded: %w", err)
	}
	return r.next.CampaignStatus(ctx)
}

func (r *Reliability) ListRecords(ctx context.Context) ([]domain.Record, error) {
	return idempotent(ctx, r, func(ctx context.Context) ([]domain.Record, error) {
		return r.next.ListRecords(ctx)
	})
}

func (r *Reliability) SubmitRecord(ctx context.Context, req SubmitRecordRequest) (*domain.Record, error) {
	return command(ctx, r, func(ctx context.Context) (*domain.Record, error) {
		return r.next.SubmitRecord(ctx, req)
	})
}

func (r *Reliability) ListRules(ctx context.Context) ([]domain.Rule, error) {
	return idempotent(ctx, r, func(ctx context.Context) ([]domain.Rule, error) {
		return r.next.ListRules(ctx)
	})
}

func (r *Reliability) ResetRules(ctx context.Context) error {
	_, err := command(ctx, r, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, r.next.ResetRules(ctx)
	})
	return err
}

func (r *Reliability) VaccineFile(ctx context.Context) (*VaccineFileResponse, error) {
	return idempotent(ctx, r, func(ctx context.Context) (*VaccineFileResponse, error) {
		return r.next.VaccineFile(ctx)
	})
}

func (r *Reliability) ApproveHeal(ctx context.Context, id string) (*HealDecisionResponse, error) {
	return command(ctx, r, func(ctx context.Context) (*HealDecisionResponse, error) {
		return r.next.ApproveHeal(ctx, id)
	})
}

func (r *Reliability) RejectHeal(ctx context.Context, id string) (*HealDecisionResponse, error) {
	return command(ctx, r, func(ctx context.Context) (*HealDecisionResponse, error) {
		return r.next.RejectHeal(ctx, id)
	})
}

func (r *Reliability) Health(ctx context.Context) (*HealthResponse, error) {
	return idempotent(ctx, r, func(ctx context.Context) (*HealthResponse, error) {
		return r.next.Health(ctx)
	})
}
