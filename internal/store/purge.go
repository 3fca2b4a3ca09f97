package store

import (
	"context"
	"log"
	"time"
)

// Purger sweeps expired submissions: artifacts are deleted from the
// filesystem first, then the ledger row, so a crash mid-sweep leaves the
// entry due again rather than orphaning files.
type Purger struct {
	store    *Store
	ledger   *Ledger
	interval time.Duration
	now      func() time.Time
}

func NewPurger(s *Store, l *Ledger, interval time.Duration) *Purger {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Purger{store: s, ledger: l, interval: interval, now: time.Now}
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (p *Purger) Run(ctx context.Context) {
	p.Sweep()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Sweep()
		}
	}
}

// Sweep purges every due submission and returns how many were removed.
// Individual failures are logged and skipped so one bad entry cannot wedge
// the sweep.
func (p *Purger) Sweep() int {
	due, err := p.ledger.Due(p.now())
	if err != nil {
		log.Printf("purge: list due submissions: %v", err)
		return 0
	}
	removed := 0
	for _, id := range due {
		if err := p.store.Purge(id); err != nil {
			log.Printf("purge: delete artifacts for %s: %v", id, err)
			continue
		}
		if err := p.ledger.Remove(id); err != nil {
			log.Printf("purge: remove ledger entry %s: %v", id, err)
			continue
		}
		removed++
	}
	if removed > 0 {
		log.Printf("purge: removed %d expired submission(s)", removed)
	}
	return removed
}
