package ports

import (
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/benmeehan/grid-agent/internal/agenterr"
	"github.com/benmeehan/grid-agent/internal/constants"
	"github.com/rs/zerolog"
)

// Option configures a Pool.
type Option func(*Pool)

// WithBindCheck makes Allocate skip ports the OS refuses to bind on loopback.
// Skipped ports are left free.
func WithBindCheck() Option {
	return func(p *Pool) {
		p.canBind = loopbackBindable
	}
}

// WithLogger attaches a logger to the pool.
func WithLogger(logger zerolog.Logger) Option {
	return func(p *Pool) {
		p.logger = logger
	}
}

// Pool hands out local TCP ports from a fixed range. A port is either free or
// allocated to exactly one owner.
type Pool struct {
	mu     sync.Mutex
	start  int
	slots  []bool
	cursor int

	// Registered ports outside [start, start+len(slots))
	external map[int]struct{}

	canBind func(port int) bool
	logger  zerolog.Logger
}

// NewPool creates a pool covering [start, start+size).
func NewPool(start, size int, opts ...Option) (*Pool, error) {
	if size <= 0 {
		return nil, fmt.Errorf("port pool size must be positive, got %d", size)
	}
	end := start + size - 1
	if start < constants.MinTCPPort || end > constants.MaxTCPPort {
		return nil, fmt.Errorf("port range [%d, %d] is outside [%d, %d]", start, end, constants.MinTCPPort, constants.MaxTCPPort)
	}

	p := &Pool{
		start:    start,
		slots:    make([]bool, size),
		external: make(map[int]struct{}),
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Allocate returns a port not held by anyone else. The scan resumes after the
// last allocated slot so released ports come around again after one lap.
func (p *Pool) Allocate() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.slots)
	for i := 0; i < n; i++ {
		idx := (p.cursor + i) % n
		if p.slots[idx] {
			continue
		}
		port := p.start + idx
		if p.canBind != nil && !p.canBind(port) {
			p.logger.Debug().Int("port", port).Msg("Skipping port held by another process")
			continue
		}
		p.slots[idx] = true
		p.cursor = (idx + 1) % n
		p.logger.Debug().Int("port", port).Msg("Allocated local port")
		return port, nil
	}

	return 0, agenterr.New(agenterr.KindPortExhausted, "", "",
		fmt.Sprintf("all ports in [%d, %d] are allocated", p.start, p.start+n-1))
}

// Release returns port to the free set. Releasing a free or unknown port is a no-op.
func (p *Pool) Release(port int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if idx, ok := p.index(port); ok {
		if p.slots[idx] {
			p.slots[idx] = false
			p.logger.Debug().Int("port", port).Msg("Released local port")
		}
		return
	}
	delete(p.external, port)
}

// Register reserves a specific port. It returns false when the port is outside
// the TCP range or already held.
func (p *Pool) Register(port int) bool {
	if port < constants.MinTCPPort || port > constants.MaxTCPPort {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if idx, ok := p.index(port); ok {
		if p.slots[idx] {
			return false
		}
		p.slots[idx] = true
		return true
	}
	if _, held := p.external[port]; held {
		return false
	}
	p.external[port] = struct{}{}
	return true
}

// IsAllocated reports whether port is currently held.
func (p *Pool) IsAllocated(port int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if idx, ok := p.index(port); ok {
		return p.slots[idx]
	}
	_, held := p.external[port]
	return held
}

// InUse returns the number of held ports, registered ones included.
func (p *Pool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	count := len(p.external)
	for _, used := range p.slots {
		if used {
			count++
		}
	}
	return count
}

// Capacity returns the size of the allocatable range.
func (p *Pool) Capacity() int {
	return len(p.slots)
}

func (p *Pool) index(port int) (int, bool) {
	idx := port - p.start
	if idx < 0 || idx >= len(p.slots) {
		return 0, false
	}
	return idx, true
}

func loopbackBindable(port int) bool {
	ln, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		return false
	}
	_ = ln.Close()
	return true
}
