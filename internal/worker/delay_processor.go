package worker

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/shaiso/Gather/internal/domain"
)

// DelayProcessor — локальный processor: случайная пауза в [Min, Max],
// затем нормализация payload'а.
//
// Пауза имитирует время анализа. Нулевое значение работает без паузы.
// Ожидание прерывается отменой контекста.
type DelayProcessor struct {
	Min time.Duration
	Max time.Duration
}

// Process выполняет задержку и нормализацию.
func (p DelayProcessor) Process(ctx context.Context, worker string, env domain.Envelope) (map[string]any, error) {
	if d := p.delay(); d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return NormalizePayload(worker, env.Payload)
}

func (p DelayProcessor) delay() time.Duration {
	if p.Max <= p.Min {
		return max(p.Min, 0)
	}
	return p.Min + rand.N(p.Max-p.Min+1)
}
