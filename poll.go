package isotp

import "time"

// pollDriver periodically advances every registered link's protocol timing.
// It is the only mechanism that progresses timeouts and STmin-paced
// consecutive frames when no new frames arrive.
type pollDriver struct {
	reg      *registry
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

func newPollDriver(reg *registry, interval time.Duration) *pollDriver {
	return &pollDriver{
		reg:      reg,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the background goroutine.
func (p *pollDriver) Start() {
	go p.run()
}

// Stop signals the driver to stop and waits for the goroutine to exit.
func (p *pollDriver) Stop() {
	select {
	case <-p.stop:
	default:
		close(p.stop)
	}
	<-p.done
}

func (p *pollDriver) run() {
	defer close(p.done)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			for _, l := range p.reg.snapshot() {
				l.poll()
			}
		}
	}
}
