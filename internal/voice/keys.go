package voice

import "strings"

// Cache key layout. Every key is namespaced under "voice:" and carries the
// guild, user and day so that flushes can enumerate by prefix.
const (
	sessionPrefix  = "voice:session:"
	durationPrefix = "voice:duration:"
)

func sessionKey(guildID, userID string) string {
	return sessionPrefix + guildID + ":" + userID
}

func channelDurationKey(guildID, userID, day, channelID string) string {
	return durationPrefix + "channel:" + guildID + ":" + userID + ":" + day + ":" + channelID
}

func channelDurationPattern(guildID, userID, day string) string {
	return durationPrefix + "channel:" + guildID + ":" + userID + ":" + day + ":*"
}

func micDurationKey(guildID, userID, day, state string) string {
	return durationPrefix + "mic:" + guildID + ":" + userID + ":" + day + ":" + state
}

func aloneDurationKey(guildID, userID, day string) string {
	return durationPrefix + "alone:" + guildID + ":" + userID + ":" + day
}

func channelNameKey(guildID, channelID string) string {
	return "voice:name:channel:" + guildID + ":" + channelID
}

func userNameKey(guildID, userID string) string {
	return "voice:name:user:" + guildID + ":" + userID
}

func tempChannelsKey(guildID string) string {
	return "voice:temp:channels:" + guildID
}

func tempMembersKey(channelID string) string {
	return "voice:temp:channel:" + channelID + ":members"
}

// channelIDFromKey extracts the trailing channel id from a channel duration key.
func channelIDFromKey(key string) string {
	idx := strings.LastIndex(key, ":")
	if idx < 0 {
		return ""
	}
	return key[idx+1:]
}

// parseDurationKey splits any duration key into its guild, user and day
// parts. Returns ok=false for keys that do not fit the layout.
func parseDurationKey(key string) (guildID, userID, day string, ok bool) {
	rest, found := strings.CutPrefix(key, durationPrefix)
	if !found {
		return "", "", "", false
	}
	parts := strings.Split(rest, ":")
	// channel/mic keys carry a trailing discriminator, alone keys do not.
	if len(parts) < 4 {
		return "", "", "", false
	}
	return parts[1], parts[2], parts[3], true
}
