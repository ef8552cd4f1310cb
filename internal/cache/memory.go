package cache

import (
	"context"
	"path/filepath"
	"sync"

	"cdn-edge/internal/domain"
)

// Memory is an in-process domain.Cache used by unit tests that don't
// need a real Redis instance. Pattern matching uses filepath.Match,
// which accepts the same '*'/'?' glob syntax Redis SCAN MATCH supports
// for the patterns this codebase actually issues.
type Memory struct {
	mu      sync.Mutex
	records map[string]domain.UploadRecord
	counts  map[string]int64
}

// NewMemory builds an empty in-memory cache.
func NewMemory() *Memory {
	return &Memory{
		records: make(map[string]domain.UploadRecord),
		counts:  make(map[string]int64),
	}
}

func (m *Memory) GetUploadRecord(_ context.Context, key string) (*domain.UploadRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[key]
	if !ok {
		return nil, false, nil
	}
	cp := rec
	return &cp, true, nil
}

func (m *Memory) PutUploadRecord(_ context.Context, key string, record domain.UploadRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[key] = record
	return nil
}

func (m *Memory) DeleteKey(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, key)
	delete(m.counts, key)
	return nil
}

func (m *Memory) ScanKeys(_ context.Context, pattern string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for k := range m.records {
		if ok, _ := filepath.Match(pattern, k); ok {
			out = append(out, k)
		}
	}
	return out, nil
}

func (m *Memory) IncrWithExpire(_ context.Context, key string, _ int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[key]++
	return m.counts[key], nil
}
