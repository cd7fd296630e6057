package abi

import "sync"

// Arena hands out byte buffers to a host that addresses them by offset and
// keeps them reachable until the host releases them.
type Arena struct {
	mu   sync.Mutex
	bufs map[uintptr][]byte
}

// NewArena returns an empty Arena.
func NewArena() *Arena {
	return &Arena{bufs: make(map[uintptr][]byte)}
}

// Alloc reserves size bytes and returns the buffer together with the key the
// host uses to release it. Zero sized requests return a nil buffer and key 0.
func (a *Arena) Alloc(size int, addr func([]byte) uintptr) ([]byte, uintptr) {
	if size <= 0 {
		return nil, 0
	}
	buf := make([]byte, size)
	key := addr(buf)

	a.mu.Lock()
	a.bufs[key] = buf
	a.mu.Unlock()
	return buf, key
}

// Free releases the buffer registered under key. Unknown keys are ignored.
func (a *Arena) Free(key uintptr) {
	a.mu.Lock()
	delete(a.bufs, key)
	a.mu.Unlock()
}

// Live reports how many buffers are still held.
func (a *Arena) Live() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.bufs)
}
