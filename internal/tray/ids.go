package tray

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync/atomic"
)

type IDStore interface {
	MaxNotificationID(ctx context.Context) (int32, error)
}

// IDSource hands out notification ids. Counter ids are always positive;
// collapse ids are always negative, so the two never collide.
type IDSource struct {
	next atomic.Int32
}

func NewIDSource(seed int32) *IDSource {
	s := &IDSource{}
	s.next.Store(seed & 0x7fffffff)
	return s
}

// NewIDSourceFromStore continues after the largest id already in the tray,
// so a restarted process never reuses the id of a visible notification.
func NewIDSourceFromStore(ctx context.Context, store IDStore) (*IDSource, error) {
	last, err := store.MaxNotificationID(ctx)
	if err != nil {
		return nil, fmt.Errorf("error seeding notification ids: %w", err)
	}
	return NewIDSource(last), nil
}

// Next is safe for concurrent use and never returns the same id twice until
// the positive int32 range wraps.
func (s *IDSource) Next() int32 {
	for {
		id := s.next.Add(1) & 0x7fffffff
		if id != 0 {
			return id
		}
	}
}

// CollapseID maps key to a stable id, so posts sharing a key replace each
// other on purpose.
func CollapseID(key string) int32 {
	h := fnv.New32a()
	h.Write([]byte(key))
	return -int32(h.Sum32()&0x7fffffff) - 1
}
