package pool

import (
	"context"
	"fmt"

	"termpool/internal/model"
	"termpool/pkg/logger"
)

// Resize changes the target terminal count. size <= 0 recomputes it from host
// resources. Growth launches terminals immediately; shrinking retires idle
// terminals newest first and the rest as they finish their current task.
func (m *Manager) Resize(ctx context.Context, size int) (int, error) {
	if size <= 0 {
		if m.sizer == nil {
			return 0, fmt.Errorf("%w: size must be positive without a resource sizer", ErrInvalidSize)
		}
		size = m.sizer.ComputeOptimalCount()
	}

	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return 0, ErrPoolStopped
	}
	from := m.targetSize
	m.targetSize = size
	active := m.activeCountLocked()
	pending := m.launching

	if active > size {
		excess := active - size
		for i := len(m.order) - 1; i >= 0 && excess > 0; i-- {
			s := m.slots[m.order[i]]
			if !m.available(s) || !s.op.TryLock() {
				continue
			}
			m.retireLocked(s, "pool shrink", true)
			s.op.Unlock()
			excess--
		}
	}
	m.emit(model.EventPoolResized, "", "", "pool resized", map[string]interface{}{
		"from": from,
		"to":   size,
	})
	m.mu.Unlock()

	logger.InfoCtx(ctx, "pool target size %d -> %d", from, size)
	if grow := size - active - pending; grow > 0 {
		if err := m.launchTerminals(ctx, grow); err != nil {
			return size, err
		}
	}
	return size, nil
}
