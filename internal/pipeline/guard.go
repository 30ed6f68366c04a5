package pipeline

import (
	"sync"
	"time"
)

// releaseGuard guarantees an externally-owned resource is released exactly
// once: either by the normal control flow or, if that never happens, by a
// safety timer that bounds the resource lifetime independently of the run.
// Whichever fires first wins; the loser is a no-op.
type releaseGuard struct {
	once    sync.Once
	timer   *time.Timer
	release func()
}

func newReleaseGuard(release func(), safety time.Duration) *releaseGuard {
	g := &releaseGuard{release: release}
	if safety > 0 {
		g.timer = time.AfterFunc(safety, g.Release)
	}
	return g
}

// Release runs the release function if it has not run yet.
func (g *releaseGuard) Release() {
	g.once.Do(func() {
		if g.timer != nil {
			g.timer.Stop()
		}
		g.release()
	})
}
