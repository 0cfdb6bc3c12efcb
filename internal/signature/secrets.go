package signature

import (
	"context"

	"warden/pkg/platform/sentinel"
)

// StaticSecrets is a SecretProvider backed by a fixed map, typically loaded
// from configuration.
type StaticSecrets map[string][]byte

// NewStaticSecrets copies string secrets, skipping empty ones.
func NewStaticSecrets(secrets map[string]string) StaticSecrets {
	out := make(StaticSecrets, len(secrets))
	for source, secret := range secrets {
		if secret != "" {
			out[source] = []byte(secret)
		}
	}
	return out
}

func (s StaticSecrets) Secret(_ context.Context, source string) ([]byte, error) {
	secret, ok := s[source]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return secret, nil
}
