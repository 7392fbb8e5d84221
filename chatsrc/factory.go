package chatsrc

import "github.com/onnwee/stream-dock/canonical"

// NewFactory builds the standard adapter factory: Twitch over anonymous IRC,
// Kick through the chat gateway, the house feed for its sentinel key.
// YouTube keys report unsupported — live chat there needs user OAuth.
func NewFactory(kickGatewayURL, houseChatURL string) Factory {
	return func(k canonical.Key, sink Sink) (Adapter, bool) {
		switch {
		case k == canonical.HouseKey:
			if houseChatURL == "" {
				return nil, false
			}
			return NewHouseAdapter(houseChatURL, sink), true
		case k.Platform() == canonical.PlatformTwitch:
			return NewTwitchAdapter(k, sink), true
		case k.Platform() == canonical.PlatformKick:
			if kickGatewayURL == "" {
				return nil, false
			}
			return NewKickAdapter(k, kickGatewayURL, sink), true
		}
		return nil, false
	}
}
