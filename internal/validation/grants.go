package validation

import (
	"context"
	"slices"
)

// AllCapabilities in a grant list matches every capability.
const AllCapabilities = "*"

// StaticGrants is a PermissionLookup backed by a fixed grant table. Keys are an
// actor id, which applies in every guild, or "<guildID>/<actorID>".
type StaticGrants map[string][]string

func (g StaticGrants) HasCapability(_ context.Context, actorID, guildID, capability string) (bool, error) {
	for _, key := range []string{guildID + "/" + actorID, actorID} {
		caps := g[key]
		if slices.Contains(caps, capability) || slices.Contains(caps, AllCapabilities) {
			return true, nil
		}
	}
	return false, nil
}
