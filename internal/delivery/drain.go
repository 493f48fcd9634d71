package delivery

import (
	"context"
	"time"
)

// Drain processes up to cfg.QueueDrainMaxPerTick entries from the queue
// head. Success shifts the head and continues; failure updates the head
// entry's attempts/last_error and aborts the rest of this tick, so a down
// receiver is not hammered. Concurrent triggers (periodic tick,
// post-success) short-circuit via the single-flight guard.
func (p *Pipeline) Drain() {
	if !p.tryBeginDrain() {
		return
	}
	defer p.endDrain()

	ctx := context.Background()
	for i := 0; i < p.cfg.QueueDrainMaxPerTick; i++ {
		head, ok := p.queue.Head()
		if !ok {
			break
		}

		outcome, status, err := p.attempt(ctx, head.URL, head.Payload)
		now := time.Now()
		if outcome == OutcomeSuccess {
			if rerr := p.queue.RemoveHead(); rerr != nil {
				p.log.Errorf("drain: remove delivered entry %s: %v", head.ID, rerr)
			}
			p.status.IncHTTPDrainedOK()
			p.status.SetQueueDepth(p.queue.Len())
			continue
		}

		lastError := errorString(status, err)
		if uerr := p.queue.UpdateHead(head.Attempts+1, lastError, now); uerr != nil {
			p.log.Errorf("drain: persist failed entry %s: %v", head.ID, uerr)
		}
		p.status.IncHTTPDrainedFail()
		p.status.SetQueueDepth(p.queue.Len())
		break
	}
}
