package registry

import (
	"sort"
	"strings"

	"github.com/onnwee/stream-dock/canonical"
)

// DockGroup is one button in the dock: either the cluster of keys resolved to
// one or more bookmarked streamers, or a standalone catalog entry nobody has
// bookmarked.
type DockGroup struct {
	Label      string          `json:"label"`
	Keys       []canonical.Key `json:"keys"`
	Streamers  []string        `json:"streamers,omitempty"` // streamer ids, bookmark order
	Standalone bool            `json:"standalone,omitempty"`
	Viewers    int             `json:"viewers,omitempty"`
	Color      string          `json:"color,omitempty"`
	HideLabel  bool            `json:"hide_label,omitempty"`
	Selected   bool            `json:"selected"`
}

// resolveStreamersLocked maps each streamer id to the catalog/ghost keys it
// resolves to: direct platform-id matches plus keys the platform pollers
// attributed to it (ephemeral live-video ids). Keys are returned sorted so
// two streamers pointing at the same streams produce identical lists.
func (r *Registry) resolveStreamersLocked() map[string][]canonical.Key {
	present := func(k canonical.Key) bool {
		if _, ok := r.catalog[k]; ok {
			return true
		}
		_, ok := r.ghosts[k]
		return ok
	}
	out := make(map[string][]canonical.Key, len(r.streamers))
	for _, s := range r.streamers {
		var keys []canonical.Key
		for platform, id := range s.Platforms {
			if k := canonical.New(platform, id); present(k) {
				keys = append(keys, k)
			}
		}
		for k, owner := range r.pollOwner {
			if owner == s.ID && present(k) {
				keys = append(keys, k)
			}
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
		out[s.ID] = dedupeKeys(keys)
	}
	return out
}

// dockGroupsLocked builds the dock: streamers with identical resolved
// key-sets collapse into one entry with concatenated nicknames, ordered by
// the first streamer's bookmark position; unclaimed catalog keys follow as
// standalone entries sorted by descending viewer count.
func (r *Registry) dockGroupsLocked() []DockGroup {
	resolved := r.resolveStreamersLocked()

	type cluster struct {
		keys      []canonical.Key
		streamers []Streamer
	}
	order := []string{}
	clusters := map[string]*cluster{}
	claimed := map[canonical.Key]struct{}{}
	for _, s := range r.streamers {
		keys := resolved[s.ID]
		if len(keys) == 0 {
			continue
		}
		sig := keySignature(keys)
		c, ok := clusters[sig]
		if !ok {
			c = &cluster{keys: keys}
			clusters[sig] = c
			order = append(order, sig)
		}
		c.streamers = append(c.streamers, s)
		for _, k := range keys {
			claimed[k] = struct{}{}
		}
	}

	groups := make([]DockGroup, 0, len(order))
	for _, sig := range order {
		c := clusters[sig]
		names := make([]string, 0, len(c.streamers))
		hide := true
		for _, s := range c.streamers {
			names = append(names, s.Nickname)
			if !s.HideLabel {
				hide = false
			}
		}
		g := DockGroup{
			Label:     strings.Join(names, " & "),
			Keys:      c.keys,
			Color:     c.streamers[0].Color,
			HideLabel: hide,
			Selected:  r.anySelectedLocked(c.keys),
		}
		for _, s := range c.streamers {
			g.Streamers = append(g.Streamers, s.ID)
		}
		for _, k := range c.keys {
			if rec, ok := r.catalog[k]; ok && rec.HasViewers && rec.Viewers > g.Viewers {
				g.Viewers = rec.Viewers
			}
		}
		groups = append(groups, g)
	}

	var loose []DockGroup
	standalone := func(k canonical.Key, rec Record) {
		label := rec.Title
		if label == "" {
			label = rec.RawID
		}
		loose = append(loose, DockGroup{
			Label:      label,
			Keys:       []canonical.Key{k},
			Standalone: true,
			Viewers:    rec.Viewers,
			Selected:   r.anySelectedLocked([]canonical.Key{k}),
		})
	}
	for k, rec := range r.catalog {
		if _, ok := claimed[k]; ok {
			continue
		}
		standalone(k, rec)
	}
	// Ghosts stay in the dock too: a retained selection needs its button to
	// be toggled back off, even though no source reports the key anymore.
	for k, rec := range r.ghosts {
		if _, ok := claimed[k]; ok {
			continue
		}
		if _, ok := r.catalog[k]; ok {
			continue
		}
		standalone(k, rec)
	}
	sort.Slice(loose, func(i, j int) bool {
		if loose[i].Viewers != loose[j].Viewers {
			return loose[i].Viewers > loose[j].Viewers
		}
		return loose[i].Keys[0] < loose[j].Keys[0]
	})
	return append(groups, loose...)
}

func (r *Registry) anySelectedLocked(keys []canonical.Key) bool {
	for _, k := range keys {
		if _, ok := r.selVideo[k]; ok {
			return true
		}
		if _, ok := r.selChat[k]; ok {
			return true
		}
	}
	return false
}

func keySignature(keys []canonical.Key) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = string(k)
	}
	return strings.Join(parts, "|")
}

func dedupeKeys(keys []canonical.Key) []canonical.Key {
	out := keys[:0]
	var prev canonical.Key
	for i, k := range keys {
		if i > 0 && k == prev {
			continue
		}
		out = append(out, k)
		prev = k
	}
	return out
}
