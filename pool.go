package ecs

import (
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// Acquired is what CommandPool.Acquire hands back: a buffer plus the
// fill fraction it had at acquisition time, which Release needs to
// judge how much the caller actually wrote.
type Acquired struct {
	Buffer       *CommandBuffer
	initialUsage float64
}

// CommandPool is a fixed-count pool of command buffers with
// headroom-based acquire/release. It gives command-buffer memory usage
// that scales with actual workload rather than thread count: a
// lightly-loaded producer keeps re-acquiring the same handful of
// released buffers, while a heavily-loaded one works through the full
// pool before anyone retires.
type CommandPool struct {
	mu   sync.Mutex
	cond *sync.Cond

	reserved []*CommandBuffer // never yet acquired
	released []*CommandBuffer // returned with usage below headroom
	retired  []*CommandBuffer // returned above headroom; unavailable until Reset

	bufferCount int
	headroom    float64
	warnRatio   float64

	log zerolog.Logger
}

// NewCommandPool builds bufferCount command buffers sized per opts and
// pools them.
func NewCommandPool(store *Store, opts Options, log *zerolog.Logger) (*CommandPool, error) {
	p := &CommandPool{
		bufferCount: opts.PoolBufferCount,
		headroom:    opts.PoolHeadroom,
		warnRatio:   opts.WarnRatio,
		log:         logger(log),
	}
	p.cond = sync.NewCond(&p.mu)
	for i := 0; i < opts.PoolBufferCount; i++ {
		cb, err := newCommandBuffer(store, opts, log)
		if err != nil {
			return nil, err
		}
		p.reserved = append(p.reserved, cb)
	}
	return p, nil
}

// Acquire hands out an exclusive buffer, preferring an already-released
// one over a never-touched reserved one. It blocks on the pool's
// condition variable while nothing is available and buffers remain
// that could still be released; it returns ErrCmdPoolUnderflow,
// without blocking, once every buffer has been retired.
func (p *CommandPool) Acquire() (Acquired, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for {
		if n := len(p.released); n > 0 {
			cb := p.released[n-1]
			p.released = p.released[:n-1]
			return Acquired{Buffer: cb, initialUsage: cb.WorstCaseUsage()}, nil
		}
		if n := len(p.reserved); n > 0 {
			cb := p.reserved[n-1]
			p.reserved = p.reserved[:n-1]
			return Acquired{Buffer: cb, initialUsage: cb.WorstCaseUsage()}, nil
		}
		if len(p.retired) >= p.bufferCount {
			return Acquired{}, ErrCmdPoolUnderflow
		}
		p.cond.Wait()
	}
}

// AcquireWithBackoff retries Acquire with exponential backoff up to
// maxElapsed, useful for a producer that wants to ride out a transient
// ErrCmdPoolUnderflow while a consumer thread is mid-Reset rather than
// fail immediately.
func (p *CommandPool) AcquireWithBackoff(maxElapsed time.Duration) (Acquired, error) {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = maxElapsed

	var result Acquired
	err := backoff.Retry(func() error {
		a, err := p.Acquire()
		if err != nil {
			return err
		}
		result = a
		return nil
	}, b)
	if err != nil {
		return Acquired{}, err
	}
	return result, nil
}

// Release returns a buffer to the pool. Buffers whose worst-case usage
// is still below the configured headroom fraction go back into the
// released list for reuse; buffers used up to or past that threshold
// are retired until the next Reset.
func (p *CommandPool) Release(a Acquired) {
	p.mu.Lock()
	defer p.mu.Unlock()

	final := a.Buffer.WorstCaseUsage()
	delta := final - a.initialUsage
	if delta > (1-p.headroom)*p.warnRatio {
		p.log.Warn().
			Float64("delta", delta).
			Float64("final_usage", final).
			Msg("command buffer usage grew beyond the warn threshold in a single encode pass")
	}

	if final < p.headroom {
		p.released = append(p.released, a.Buffer)
		p.cond.Signal()
		return
	}
	p.retired = append(p.retired, a.Buffer)
	if len(p.retired) >= p.bufferCount {
		p.cond.Broadcast()
	}
}

// Reset reclaims every buffer — released and retired alike — clearing
// and refilling each, and requires that none currently be on loan.
func (p *CommandPool) Reset() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	total := len(p.reserved) + len(p.released) + len(p.retired)
	if total != p.bufferCount {
		return fmt.Errorf("ecs: command pool reset requires all %d buffers returned, have %d", p.bufferCount, total)
	}

	touched := len(p.released) + len(p.retired)
	if p.bufferCount > 0 && float64(touched)/float64(p.bufferCount) > p.warnRatio {
		p.log.Warn().
			Int("touched", touched).
			Int("buffer_count", p.bufferCount).
			Msg("command pool: more buffers were written than warn_ratio allows before reset")
	}

	for _, cb := range p.released {
		if err := cb.Clear(); err != nil {
			return err
		}
		p.reserved = append(p.reserved, cb)
	}
	for _, cb := range p.retired {
		if err := cb.Clear(); err != nil {
			return err
		}
		p.reserved = append(p.reserved, cb)
	}
	p.released = p.released[:0]
	p.retired = p.retired[:0]
	p.cond.Broadcast()
	return nil
}

// Close destroys every buffer's still-held reserved handles. Intended
// for a pool that is being torn down alongside its store.
func (p *CommandPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, cb := range p.reserved {
		cb.Close()
	}
	for _, cb := range p.released {
		cb.Close()
	}
	for _, cb := range p.retired {
		cb.Close()
	}
}
