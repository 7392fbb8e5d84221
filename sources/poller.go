package sources

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/onnwee/stream-dock/canonical"
	"github.com/onnwee/stream-dock/registry"
)

// LivenessChecker answers "is this channel live right now" for one platform.
// A nil record with a nil error means confirmed offline.
type LivenessChecker interface {
	CheckLive(ctx context.Context, rawID string) (*registry.Record, error)
}

// pollTarget identifies one (streamer, platform) timer.
type pollTarget struct {
	streamerID string
	platform   string
	rawID      string
}

func (t pollTarget) key() string { return t.streamerID + "|" + t.platform }

// Poller supervises one ticker goroutine per bookmarked (streamer, platform)
// pair. Timers are independent: a slow or failing platform never delays the
// others, and a failed poll is reported as-is for the registry to ignore.
type Poller struct {
	out      chan<- Event
	checkers map[string]LivenessChecker
	interval time.Duration
	ytMult   int

	desired chan []registry.Streamer
}

// NewPoller wires a supervisor over the given per-platform checkers.
// youtubeMultiplier stretches the base interval for YouTube, whose liveness
// lookups are quota-priced.
func NewPoller(out chan<- Event, checkers map[string]LivenessChecker, interval time.Duration, youtubeMultiplier int) *Poller {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if youtubeMultiplier < 1 {
		youtubeMultiplier = 1
	}
	return &Poller{
		out:      out,
		checkers: checkers,
		interval: interval,
		ytMult:   youtubeMultiplier,
		desired:  make(chan []registry.Streamer, 1),
	}
}

// SetStreamers replaces the bookmarked set. The supervisor diffs it against
// the running timers: unchanged pairs keep their tickers and phase.
func (p *Poller) SetStreamers(list []registry.Streamer) {
	// Collapse pending updates; only the latest set matters.
	for {
		select {
		case p.desired <- list:
			return
		case <-p.desired:
		}
	}
}

// Run reconciles timers against the desired streamer set until the context
// is cancelled, then stops every timer.
func (p *Poller) Run(ctx context.Context) {
	running := map[string]context.CancelFunc{}
	defer func() {
		for _, cancel := range running {
			cancel()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case list := <-p.desired:
			p.reconcile(ctx, running, list)
		}
	}
}

func (p *Poller) reconcile(ctx context.Context, running map[string]context.CancelFunc, list []registry.Streamer) {
	want := map[string]pollTarget{}
	for _, s := range list {
		for platform, rawID := range s.Platforms {
			if rawID == "" {
				continue
			}
			if _, ok := p.checkers[platform]; !ok {
				continue
			}
			t := pollTarget{streamerID: s.ID, platform: platform, rawID: rawID}
			want[t.key()] = t
		}
	}

	for key, cancel := range running {
		if _, ok := want[key]; !ok {
			cancel()
			delete(running, key)
		}
	}

	// Deterministic start order keeps logs readable.
	keys := make([]string, 0, len(want))
	for key := range want {
		if _, ok := running[key]; !ok {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	for _, key := range keys {
		t := want[key]
		child, cancel := context.WithCancel(ctx)
		running[key] = cancel
		go p.pollLoop(child, t)
	}
}

func (p *Poller) intervalFor(platform string) time.Duration {
	if platform == canonical.PlatformYouTube {
		return p.interval * time.Duration(p.ytMult)
	}
	return p.interval
}

// pollLoop runs one timer: an immediate poll, then one per interval. Every
// outcome, including errors, is submitted so the registry can account for it.
func (p *Poller) pollLoop(ctx context.Context, t pollTarget) {
	checker := p.checkers[t.platform]
	interval := p.intervalFor(t.platform)
	slog.Debug("poller: timer started",
		slog.String("streamer", t.streamerID),
		slog.String("platform", t.platform),
		slog.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		p.pollOnce(ctx, checker, t)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (p *Poller) pollOnce(ctx context.Context, checker LivenessChecker, t pollTarget) {
	callCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	rec, err := checker.CheckLive(callCtx, t.rawID)
	cancel()
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		slog.Debug("poller: check failed",
			slog.String("streamer", t.streamerID),
			slog.String("platform", t.platform),
			slog.Any("err", err))
	}
	res := registry.PollResult{
		Platform:   t.platform,
		StreamerID: t.streamerID,
		Live:       rec != nil,
		Record:     rec,
		Err:        err,
		At:         time.Now().UTC(),
	}
	select {
	case p.out <- PollEvent{Result: res}:
	case <-ctx.Done():
	}
}
