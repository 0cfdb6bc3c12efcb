package validation

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks PermissionLookup

import "context"

// PermissionLookup answers whether an actor holds a capability in a guild.
type PermissionLookup interface {
	HasCapability(ctx context.Context, actorID, guildID, capability string) (bool, error)
}

// PermissionFunc adapts a plain function to PermissionLookup.
type PermissionFunc func(ctx context.Context, actorID, guildID, capability string) (bool, error)

func (f PermissionFunc) HasCapability(ctx context.Context, actorID, guildID, capability string) (bool, error) {
	return f(ctx, actorID, guildID, capability)
}
