package memory

import (
	"context"
	"sync"

	"github.com/shestoi/paybridge/internal/repository"
)

// Journal хранит журнал доставок в памяти; размер ограничен, старые записи вытесняются
type Journal struct {
	mu       sync.Mutex
	entries  []repository.Delivery
	capacity int
}

// NewJournal создаёт журнал; capacity <= 0 означает 1000 записей
func NewJournal(capacity int) *Journal {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Journal{capacity: capacity}
}

func (j *Journal) Record(ctx context.Context, d repository.Delivery) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if len(j.entries) == j.capacity {
		j.entries = j.entries[1:]
	}
	j.entries = append(j.entries, d)
	return nil
}

func (j *Journal) ListByOrderKey(ctx context.Context, key string, limit int) ([]repository.Delivery, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	out := make([]repository.Delivery, 0)
	for i := len(j.entries) - 1; i >= 0; i-- {
		if j.entries[i].OrderKey != key {
			continue
		}
		out = append(out, j.entries[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
