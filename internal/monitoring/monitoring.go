// Package monitoring keeps the history of submission attempts.
package monitoring

import (
	"sort"
	"sync"

	"github.com/osmike/sweeper/internal/domain"
)

// Monitoring is an in-memory attempt history, safe for concurrent use.
type Monitoring struct {
	data *sync.Map
}

func New() *Monitoring {
	return &Monitoring{
		data: &sync.Map{},
	}
}

// SaveMetrics stores dto under its attempt ID, replacing an earlier entry with the same ID.
func (m *Monitoring) SaveMetrics(dto domain.AttemptDTO) {
	m.data.Store(dto.ID, dto)
}

// GetMetrics returns every stored attempt ordered by start time.
func (m *Monitoring) GetMetrics() []domain.AttemptDTO {
	var metrics []domain.AttemptDTO
	m.data.Range(func(_, value interface{}) bool {
		metrics = append(metrics, value.(domain.AttemptDTO))
		return true
	})
	sort.SliceStable(metrics, func(i, j int) bool {
		return metrics[i].StartAt.Before(metrics[j].StartAt)
	})
	return metrics
}
