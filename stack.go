package isotp

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/notnil/isotp/can"
)

// Stack owns a CAN bus and runs the shared machinery behind all links: a
// reader goroutine feeding the frame queue, a single dispatcher worker
// fanning frames out to matching links, and the poll driver.
type Stack struct {
	bus can.Bus
	cfg Config
	log zerolog.Logger

	reg   *registry
	queue *frameQueue
	poll  *pollDriver

	stop   chan struct{}
	wg     sync.WaitGroup
	closed atomic.Bool
}

// StackOption customizes stack creation.
type StackOption func(*Stack)

// WithLogger attaches a logger to the stack. Links derive their own loggers
// from it. Without this option the stack is silent.
func WithLogger(logger zerolog.Logger) StackOption {
	return func(s *Stack) { s.log = logger }
}

// NewStack starts a stack on top of bus. The stack takes ownership of the
// bus's receive side and closes the bus on Close.
func NewStack(bus can.Bus, cfg Config, opts ...StackOption) (*Stack, error) {
	if bus == nil {
		return nil, ErrInvalidArgument
	}
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	s := &Stack{
		bus:  bus,
		cfg:  cfg,
		log:  zerolog.Nop(),
		reg:  &registry{},
		stop: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.queue = newFrameQueue(cfg.QueueDepth)
	s.poll = newPollDriver(s.reg, cfg.pollInterval())

	s.wg.Add(2)
	go s.readLoop()
	go s.dispatchLoop()
	s.poll.Start()

	s.log.Info().
		Int("queue_depth", cfg.QueueDepth).
		Dur("poll_interval", cfg.pollInterval()).
		Msg("stack started")
	return s, nil
}

// FeedFrame injects a frame as if it had been received from the bus. It
// never blocks: when the queue is full the frame is dropped and
// ErrQueueOverflow returned. Intended for transports that deliver frames by
// callback instead of a blocking Receive.
func (s *Stack) FeedFrame(f can.Frame) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if err := f.Validate(); err != nil {
		return err
	}
	if !s.queue.push(f) {
		return ErrQueueOverflow
	}
	return nil
}

// Stats is a point-in-time snapshot of stack counters.
type Stats struct {
	Links         int
	DroppedFrames uint64
}

// Stats returns the current link count and the total number of frames
// dropped on queue overflow.
func (s *Stack) Stats() Stats {
	return Stats{
		Links:         s.reg.count(),
		DroppedFrames: s.queue.drops(),
	}
}

// Close stops the background tasks, closes the bus and closes every
// remaining link. Blocked Send and Receive calls return ErrClosed.
func (s *Stack) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(s.stop)
	s.poll.Stop()
	err := s.bus.Close()
	s.wg.Wait()
	for _, l := range s.reg.snapshot() {
		l.Close()
	}
	s.log.Info().Msg("stack stopped")
	return err
}

// readLoop copies frames from the bus into the queue until the bus errors
// out, which is how bus closure is observed.
func (s *Stack) readLoop() {
	defer s.wg.Done()
	for {
		f, err := s.bus.Receive()
		if err != nil {
			select {
			case <-s.stop:
				s.log.Debug().Msg("reader stopped")
			default:
				s.log.Error().Err(err).Msg("bus receive failed, reader stopped")
			}
			return
		}
		if !s.queue.push(f) {
			s.log.Warn().
				Uint32("id", f.ID).
				Uint64("dropped", s.queue.drops()).
				Msg("frame queue full, frame dropped")
		}
	}
}

// dispatchLoop is the single dispatcher worker. All engine OnFrame calls
// across all links happen on this goroutine.
func (s *Stack) dispatchLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.stop:
			return
		case f := <-s.queue.frames():
			s.dispatch(f)
		}
	}
}

// dispatch fans one frame out to every link whose filter matches, in
// registration order. Several links may listen on the same identifier; a
// frame that matches no link is silently ignored.
func (s *Stack) dispatch(f can.Frame) {
	for _, l := range s.reg.snapshot() {
		if l.match(f) {
			l.dispatch(f)
		}
	}
}
