package registry

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/onnwee/stream-dock/canonical"
	"github.com/onnwee/stream-dock/telemetry"
)

// Registry is the single owner of the merged embed catalog and the selection
// sets. All mutations run under one mutex so a merge cycle is never partially
// visible; readers get deep-copied views.
type Registry struct {
	mu sync.Mutex

	streamers []Streamer
	preferred []string // platform scan order for toggle/auto-open

	// Per-source record shelves. A merge cycle recomputes the catalog from
	// these; it never patches the catalog in place.
	pinned    map[canonical.Key]Record
	poll      map[string]map[canonical.Key]Record // platform -> poll-originated records
	pollOwner map[canonical.Key]string            // resolved-at-poll-time key -> streamer id
	realtime  map[canonical.Key]Record
	banned    map[canonical.Key]string // canonical key -> reason

	catalog  map[canonical.Key]Record
	ghosts   map[canonical.Key]Record
	selVideo map[canonical.Key]struct{}
	selChat  map[canonical.Key]struct{}

	// Selections restored from the store that no source has confirmed yet.
	// They are carried, not dropped as dangling, until the first full
	// realtime snapshot arrives: before that, absence is not evidence.
	restored     map[canonical.Key]struct{}
	realtimeSeen bool

	// visibility of each streamer at the end of the previous cycle, for the
	// 0->1 auto-open transition
	prevVisible map[string]bool

	onChange func(View)
}

// Options seed a registry from persisted state.
type Options struct {
	Streamers          []Streamer
	PreferredPlatforms []string
	Pinned             []Record
	SelectedVideo      []canonical.Key
	SelectedChat       []canonical.Key
	OnChange           func(View)
}

// New constructs a registry. Persisted selections referencing keys with no
// resolvable record yet are carried across merge cycles until the first full
// realtime snapshot: a restart must not wipe selections just because the
// sources have not reported in yet.
func New(opts Options) *Registry {
	r := &Registry{
		streamers:   append([]Streamer(nil), opts.Streamers...),
		preferred:   append([]string(nil), opts.PreferredPlatforms...),
		pinned:      make(map[canonical.Key]Record),
		poll:        make(map[string]map[canonical.Key]Record),
		pollOwner:   make(map[canonical.Key]string),
		realtime:    make(map[canonical.Key]Record),
		banned:      make(map[canonical.Key]string),
		catalog:     make(map[canonical.Key]Record),
		ghosts:      make(map[canonical.Key]Record),
		selVideo:    make(map[canonical.Key]struct{}),
		selChat:     make(map[canonical.Key]struct{}),
		restored:    make(map[canonical.Key]struct{}),
		prevVisible: make(map[string]bool),
		onChange:    opts.OnChange,
	}
	if len(r.preferred) == 0 {
		r.preferred = []string{canonical.PlatformTwitch, canonical.PlatformYouTube, canonical.PlatformKick}
	}
	for _, rec := range opts.Pinned {
		r.pinned[rec.Key] = rec
	}
	for _, k := range opts.SelectedVideo {
		r.selVideo[k] = struct{}{}
		r.restored[k] = struct{}{}
	}
	for _, k := range opts.SelectedChat {
		r.selChat[k] = struct{}{}
		r.restored[k] = struct{}{}
	}
	r.mu.Lock()
	view := r.mergeLocked()
	r.mu.Unlock()
	r.notify(view)
	return r
}

// ApplyRealtime replaces the realtime shelf with a fresh full snapshot and
// runs a merge cycle. Malformed entries are expected to be filtered by the
// source adapter before they get here.
func (r *Registry) ApplyRealtime(batch []Record) {
	r.mu.Lock()
	r.realtime = make(map[canonical.Key]Record, len(batch))
	for _, rec := range batch {
		if rec.Platform == "" || rec.RawID == "" {
			slog.Debug("realtime entry missing platform or id; skipped", slog.String("key", string(rec.Key)))
			continue
		}
		r.realtime[rec.Key] = rec
	}
	r.realtimeSeen = true
	view := r.mergeLocked()
	r.mu.Unlock()
	r.notify(view)
}

// ApplyBanned replaces the banned shelf. Banned keys stay in the catalog;
// matching records are merely annotated on the next merge.
func (r *Registry) ApplyBanned(keys map[canonical.Key]string) {
	r.mu.Lock()
	r.banned = make(map[canonical.Key]string, len(keys))
	for k, reason := range keys {
		r.banned[k] = reason
	}
	view := r.mergeLocked()
	r.mu.Unlock()
	r.notify(view)
}

// ApplyPoll folds one completed poll into the per-platform poll shelf. An
// errored poll changes nothing: absence of a fresh result is not evidence of
// offline. A successful poll replaces only this streamer's entries for this
// platform, leaving other platforms and other streamers untouched.
func (r *Registry) ApplyPoll(res PollResult) {
	if res.Err != nil {
		telemetry.CountPollError(res.Platform)
		slog.Warn("liveness poll failed", slog.String("platform", res.Platform), slog.String("streamer", res.StreamerID), slog.Any("err", res.Err))
		return
	}
	r.mu.Lock()
	shelf := r.poll[res.Platform]
	if shelf == nil {
		shelf = make(map[canonical.Key]Record)
		r.poll[res.Platform] = shelf
	}
	// Drop this streamer's previous entries for the platform before applying
	// the fresh result; ids resolved at poll time (YouTube live video ids)
	// change between streams.
	for k := range shelf {
		if r.pollOwner[k] == res.StreamerID {
			delete(shelf, k)
			delete(r.pollOwner, k)
		}
	}
	if res.Live && res.Record != nil {
		shelf[res.Record.Key] = *res.Record
		r.pollOwner[res.Record.Key] = res.StreamerID
	}
	view := r.mergeLocked()
	r.mu.Unlock()
	r.notify(view)
}

// AddPin pins a record permanently until explicitly removed.
func (r *Registry) AddPin(rec Record) {
	r.mu.Lock()
	r.pinned[rec.Key] = rec
	view := r.mergeLocked()
	r.mu.Unlock()
	r.notify(view)
}

// RemovePin removes an explicit pin. The key may survive as a ghost if a
// selection still references it.
func (r *Registry) RemovePin(k canonical.Key) bool {
	r.mu.Lock()
	if _, ok := r.pinned[k]; !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.pinned, k)
	view := r.mergeLocked()
	r.mu.Unlock()
	r.notify(view)
	return true
}

// SetStreamers replaces the ordered bookmark list, preserving the caller's
// order. Poll ownership for removed streamers decays naturally as their
// timers stop producing results.
func (r *Registry) SetStreamers(list []Streamer) {
	r.mu.Lock()
	r.streamers = append([]Streamer(nil), list...)
	view := r.mergeLocked()
	r.mu.Unlock()
	r.notify(view)
}

// Streamers returns a copy of the ordered bookmark list.
func (r *Registry) Streamers() []Streamer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Streamer(nil), r.streamers...)
}

// SetChatSelected turns chat on or off for a key. Turning chat on for a key
// with no resolvable record is refused, keeping invariant I1.
func (r *Registry) SetChatSelected(k canonical.Key, on bool) bool {
	r.mu.Lock()
	if on {
		if !r.resolvableLocked(k) {
			r.mu.Unlock()
			return false
		}
		r.selChat[k] = struct{}{}
	} else {
		delete(r.selChat, k)
	}
	view := r.mergeLocked()
	r.mu.Unlock()
	r.notify(view)
	return true
}

// SetVideoSelected turns video on or off for a key, same rules as chat.
func (r *Registry) SetVideoSelected(k canonical.Key, on bool) bool {
	r.mu.Lock()
	if on {
		if !r.resolvableLocked(k) {
			r.mu.Unlock()
			return false
		}
		r.selVideo[k] = struct{}{}
	} else {
		delete(r.selVideo, k)
	}
	view := r.mergeLocked()
	r.mu.Unlock()
	r.notify(view)
	return true
}

// ToggleGroup flips a dock group. If any of the group's keys is selected for
// video or chat, every key is cleared from both sets; otherwise exactly one
// key opens for video: the first match in the preferred-platform order,
// falling back to the group's first key.
func (r *Registry) ToggleGroup(keys []canonical.Key) {
	r.mu.Lock()
	any := false
	for _, k := range keys {
		if _, ok := r.selVideo[k]; ok {
			any = true
			break
		}
		if _, ok := r.selChat[k]; ok {
			any = true
			break
		}
	}
	if any {
		for _, k := range keys {
			delete(r.selVideo, k)
			delete(r.selChat, k)
		}
	} else if pick, ok := r.pickPreferredLocked(keys); ok {
		r.selVideo[pick] = struct{}{}
	}
	view := r.mergeLocked()
	r.mu.Unlock()
	r.notify(view)
}

// View returns a deep-copied snapshot: catalog plus ghosts, selections, pins,
// and the dock grouping.
func (r *Registry) View() View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.viewLocked()
}

// SelectedChat returns the chat-on keys, sorted for deterministic diffs.
func (r *Registry) SelectedChat() []canonical.Key {
	r.mu.Lock()
	defer r.mu.Unlock()
	return sortedKeys(r.selChat)
}

// Resolve returns the record for a key from the catalog or the ghost shelf.
func (r *Registry) Resolve(k canonical.Key) (Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.catalog[k]; ok {
		return rec, true
	}
	rec, ok := r.ghosts[k]
	return rec, ok
}

// StreamerFor returns the bookmarked streamer a key resolves to, if any.
func (r *Registry) StreamerFor(k canonical.Key) (Streamer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.streamers {
		for platform, id := range s.Platforms {
			if canonical.New(platform, id) == k {
				return s, true
			}
		}
	}
	if owner, ok := r.pollOwner[k]; ok {
		for _, s := range r.streamers {
			if s.ID == owner {
				return s, true
			}
		}
	}
	return Streamer{}, false
}

// mergeLocked is the one state transition: recompute the catalog from the
// source shelves, migrate and prune selections, retain ghosts, and fire the
// auto-open rule. Callers hold r.mu; the returned view is handed to
// r.notify after the lock is released so the change callback never runs
// inside the critical section.
func (r *Registry) mergeLocked() View {
	next := r.buildNextLocked()

	// Legacy key migration, table-driven, once per cycle.
	keys := make([]canonical.Key, 0, len(next))
	for k := range next {
		keys = append(keys, k)
	}
	migrate := canonical.MigrationMap(keys)
	r.selVideo = migrateSet(r.selVideo, migrate)
	r.selChat = migrateSet(r.selChat, migrate)

	// Retention pass: selected keys missing from the next catalog stay
	// resolvable as ghosts; keys reported again leave the ghost shelf;
	// selections with no record anywhere are dangling and dropped.
	union := make(map[canonical.Key]struct{}, len(r.selVideo)+len(r.selChat))
	for k := range r.selVideo {
		union[k] = struct{}{}
	}
	for k := range r.selChat {
		union[k] = struct{}{}
	}
	for k := range union {
		if _, ok := next[k]; ok {
			delete(r.ghosts, k)
			delete(r.restored, k)
			continue
		}
		if rec, ok := r.catalog[k]; ok {
			r.ghosts[k] = rec
			delete(r.restored, k)
			continue
		}
		if _, ok := r.ghosts[k]; ok {
			continue
		}
		if _, ok := r.restored[k]; ok && !r.realtimeSeen {
			// Restored from the store and no full snapshot yet: carried.
			continue
		}
		slog.Warn("dropping selection with no resolvable record", slog.String("key", string(k)))
		delete(r.selVideo, k)
		delete(r.selChat, k)
		delete(r.restored, k)
		delete(union, k)
	}
	// Deselected ghosts are purged the cycle after deselection.
	for k := range r.ghosts {
		if _, ok := union[k]; !ok {
			delete(r.ghosts, k)
		}
	}

	r.catalog = next
	r.autoOpenLocked()

	telemetry.CountMergeCycle()
	telemetry.SetCatalogSize(len(r.catalog))
	telemetry.SetGhostCount(len(r.ghosts))

	if r.onChange == nil {
		return View{}
	}
	return r.viewLocked()
}

// notify delivers a merge's view to the change callback. It must be called
// without r.mu held: the callback does store writes and adapter syncs, and
// those must never stall readers or other source applications.
func (r *Registry) notify(v View) {
	if r.onChange != nil {
		r.onChange(v)
	}
}

// buildNextLocked computes the merged catalog. Identity precedence is
// pinned > poll > realtime; a realtime viewer count is overlaid onto
// whichever record wins identity. Banned keys are annotated, never removed.
func (r *Registry) buildNextLocked() map[canonical.Key]Record {
	next := make(map[canonical.Key]Record)
	for k, rec := range r.realtime {
		next[k] = rec
	}
	for _, shelf := range r.poll {
		for k, rec := range shelf {
			merged := rec
			if rt, ok := r.realtime[k]; ok && rt.HasViewers {
				merged.Viewers, merged.HasViewers = rt.Viewers, true
			}
			next[k] = merged
		}
	}
	for k, rec := range r.pinned {
		merged := rec
		if rt, ok := r.realtime[k]; ok && rt.HasViewers {
			merged.Viewers, merged.HasViewers = rt.Viewers, true
		}
		next[k] = merged
	}
	for k := range next {
		reason, ok := r.banned[k]
		if !ok {
			reason, ok = r.banned[k.Legacy()]
		}
		if ok {
			rec := next[k]
			rec.Banned, rec.BanReason = true, reason
			next[k] = rec
		}
	}
	return next
}

// autoOpenLocked opens video for streamers that just transitioned from no
// visible key to at least one. The guard is the current selection state, not
// a one-shot flag: re-opening after a manual deselect happens only on the
// next fresh 0->1 transition.
func (r *Registry) autoOpenLocked() {
	resolved := r.resolveStreamersLocked()
	visible := make(map[string]bool, len(r.streamers))
	for _, s := range r.streamers {
		visible[s.ID] = len(resolved[s.ID]) > 0
	}
	for _, s := range r.streamers {
		if !s.AutoOpen || !visible[s.ID] || r.prevVisible[s.ID] {
			continue
		}
		keys := resolved[s.ID]
		selected := false
		for _, k := range keys {
			if _, ok := r.selVideo[k]; ok {
				selected = true
				break
			}
		}
		if selected {
			continue
		}
		if pick, ok := r.pickPreferredLocked(keys); ok {
			slog.Info("auto-opening streamer", slog.String("streamer", s.Nickname), slog.String("key", string(pick)))
			r.selVideo[pick] = struct{}{}
		}
	}
	r.prevVisible = visible
}

// pickPreferredLocked scans the preferred-platform order and returns the
// first key on a matching platform, else the first key.
func (r *Registry) pickPreferredLocked(keys []canonical.Key) (canonical.Key, bool) {
	if len(keys) == 0 {
		return "", false
	}
	for _, platform := range r.preferred {
		for _, k := range keys {
			if k.Platform() == platform {
				return k, true
			}
		}
	}
	return keys[0], true
}

// resolvableLocked reports whether a key has a record anywhere.
func (r *Registry) resolvableLocked(k canonical.Key) bool {
	if _, ok := r.catalog[k]; ok {
		return true
	}
	_, ok := r.ghosts[k]
	return ok
}

func (r *Registry) viewLocked() View {
	v := View{
		Catalog:       make(map[canonical.Key]Record, len(r.catalog)+len(r.ghosts)),
		SelectedVideo: sortedKeys(r.selVideo),
		SelectedChat:  sortedKeys(r.selChat),
		Groups:        r.dockGroupsLocked(),
	}
	for k, rec := range r.catalog {
		v.Catalog[k] = rec
	}
	for k, rec := range r.ghosts {
		v.Catalog[k] = rec
		v.Ghosts = append(v.Ghosts, k)
	}
	sort.Slice(v.Ghosts, func(i, j int) bool { return v.Ghosts[i] < v.Ghosts[j] })
	for k := range r.pinned {
		v.Pinned = append(v.Pinned, k)
	}
	sort.Slice(v.Pinned, func(i, j int) bool { return v.Pinned[i] < v.Pinned[j] })
	return v
}

func migrateSet(set map[canonical.Key]struct{}, migrate map[canonical.Key]canonical.Key) map[canonical.Key]struct{} {
	if len(migrate) == 0 {
		return set
	}
	out := make(map[canonical.Key]struct{}, len(set))
	for k := range set {
		if c, ok := migrate[k]; ok {
			out[c] = struct{}{}
		} else {
			out[k] = struct{}{}
		}
	}
	return out
}

func sortedKeys(set map[canonical.Key]struct{}) []canonical.Key {
	out := make([]canonical.Key, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
