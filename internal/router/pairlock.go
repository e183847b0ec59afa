package router

import "sync"

// pairLocks serializes deliveries per source→target pair so events from one
// producer to one service arrive in publish order even when retries or
// filters delay an earlier event. Pairs are independent: a slow delivery on
// one pair never blocks another.
type pairLocks struct {
	mu    sync.Mutex
	locks map[pairKey]*sync.Mutex
}

type pairKey struct {
	sourceID  string
	serviceID string
}

func newPairLocks() *pairLocks {
	return &pairLocks{locks: make(map[pairKey]*sync.Mutex)}
}

// lock acquires the mutex for a pair, creating it on first use. The caller
// must call the returned unlock function when the delivery completes.
func (p *pairLocks) lock(sourceID, serviceID string) func() {
	key := pairKey{sourceID: sourceID, serviceID: serviceID}

	p.mu.Lock()
	m, ok := p.locks[key]
	if !ok {
		m = &sync.Mutex{}
		p.locks[key] = m
	}
	p.mu.Unlock()

	m.Lock()
	return m.Unlock
}
