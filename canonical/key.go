// Package canonical defines the platform:id key that identifies a live embed
// across every source. Merging, selection sets, and chat routing all compare
// these keys by value; nothing else is used as identity.
package canonical

import "strings"

// Key is an immutable platform:id identifier.
type Key string

// Platform names recognized by the dock. The list is closed: pollers, chat
// adapters, and the preferred-platform ordering are all keyed off these.
const (
	PlatformTwitch  = "twitch"
	PlatformYouTube = "youtube"
	PlatformKick    = "kick"
	PlatformHouse   = "house"
)

// HouseKey is the sentinel for the always-on community chat source. It never
// appears in the embed catalog.
const HouseKey = Key("house:main")

// New builds a canonical key. The platform segment is always lower-cased.
// The id segment is lower-cased for every platform except YouTube, whose
// video ids are case-sensitive and kept byte-for-byte.
func New(platform, id string) Key {
	p := strings.ToLower(strings.TrimSpace(platform))
	i := strings.TrimSpace(id)
	if p != PlatformYouTube {
		i = strings.ToLower(i)
	}
	return Key(p + ":" + i)
}

// Parse splits a raw key string and re-canonicalizes it. Returns false when
// the string has no platform or no id segment.
func Parse(s string) (Key, bool) {
	idx := strings.Index(s, ":")
	if idx <= 0 || idx == len(s)-1 {
		return "", false
	}
	return New(s[:idx], s[idx+1:]), true
}

// Platform returns the platform segment.
func (k Key) Platform() string {
	if idx := strings.Index(string(k), ":"); idx > 0 {
		return string(k[:idx])
	}
	return ""
}

// ID returns the id segment.
func (k Key) ID() string {
	if idx := strings.Index(string(k), ":"); idx >= 0 {
		return string(k[idx+1:])
	}
	return string(k)
}

// Legacy returns the all-lower form of the key, the shape older clients and
// feeds used before case-sensitive ids were preserved. For most platforms it
// equals the key itself.
func (k Key) Legacy() Key {
	return Key(strings.ToLower(string(k)))
}

// MigrationMap builds a legacy→canonical map for the given keys. Only keys
// whose legacy form differs are included, so callers can treat an empty map
// as "nothing to migrate". Run once per merge cycle.
func MigrationMap(keys []Key) map[Key]Key {
	var m map[Key]Key
	for _, k := range keys {
		if legacy := k.Legacy(); legacy != k {
			if m == nil {
				m = make(map[Key]Key)
			}
			m[legacy] = k
		}
	}
	return m
}
