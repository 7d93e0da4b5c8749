package swarm

import (
	"context"
	"time"

	"github.com/student-p2p/swarmkit/core/network"

	"github.com/benbjohnson/clock"
)

// eyeballStagger is the delay between launching successive ranked dial
// candidates, per spec.md §4.14.
const eyeballStagger = 250 * time.Millisecond

type dialAttempt struct {
	addr scoredAddr
	err  error
}

// happyEyeballs launches candidates one at a time on an eyeballStagger
// tick, running them concurrently once launched; the first to succeed
// wins and every other attempt is canceled, per spec.md §4.13 step 7/§4.14.
func happyEyeballs(ctx context.Context, cl clock.Clock, candidates []scoredAddr, dial func(context.Context, scoredAddr) (network.Conn, error)) (network.Conn, []dialAttempt) {
	if len(candidates) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan struct {
		conn network.Conn
		att  dialAttempt
	}, len(candidates))

	launched := 0
	launch := func(c scoredAddr) {
		launched++
		go func() {
			dctx, dcancel := context.WithTimeout(ctx, c.timeout)
			defer dcancel()
			conn, err := dial(dctx, c)
			results <- struct {
				conn network.Conn
				att  dialAttempt
			}{conn, dialAttempt{addr: c, err: err}}
		}()
	}

	launch(candidates[0])
	next := 1
	ticker := cl.Ticker(eyeballStagger)
	defer ticker.Stop()

	var attempts []dialAttempt
	remaining := 1

	for remaining > 0 || next < len(candidates) {
		select {
		case r := <-results:
			remaining--
			if r.conn != nil {
				return r.conn, attempts
			}
			attempts = append(attempts, r.att)
		case <-ticker.C:
			if next < len(candidates) {
				launch(candidates[next])
				next++
				remaining++
			}
		case <-ctx.Done():
			return nil, attempts
		}
	}
	return nil, attempts
}
