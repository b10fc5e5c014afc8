package export

import (
	"context"
	"fmt"
	"sync"

	"hisab/internal/currency"
)

// Memory keeps the latest export of each scope in process memory.
type Memory struct {
	mu      sync.Mutex
	conv    currency.Converter
	sheets  map[string][][]any
	exports int
}

var _ Exporter = (*Memory)(nil)

func NewMemory(conv currency.Converter) *Memory {
	return &Memory{conv: conv, sheets: map[string][][]any{}}
}

func (m *Memory) ExportProfile(_ context.Context, p ProfileExport) (string, error) {
	title := SheetTitle(p.UserID, p.ProfileID)
	rows := BuildRows(p, m.conv)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sheets[title] = rows
	m.exports++
	return fmt.Sprintf("mem:%s", title), nil
}

// Sheet returns the rows last exported under title.
func (m *Memory) Sheet(title string) ([][]any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows, ok := m.sheets[title]
	return rows, ok
}

// Exports counts every ExportProfile call.
func (m *Memory) Exports() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exports
}
