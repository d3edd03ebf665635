package recipient

import "strings"

// Resolver maps a remote customer name or identifier to an email address.
// Resolution has no side effects.
type Resolver interface {
	Resolve(nameOrID string) (string, bool)
}

// FallbackResolver is a static lookup consulted when the remote data carries
// no recipient. Keys are matched case-insensitively after trimming.
type FallbackResolver struct {
	byName map[string]string
}

// NewFallbackResolver builds a resolver from a name-to-email mapping.
func NewFallbackResolver(mapping map[string]string) *FallbackResolver {
	byName := make(map[string]string, len(mapping))
	for name, email := range mapping {
		byName[normalize(name)] = email
	}
	return &FallbackResolver{byName: byName}
}

func (r *FallbackResolver) Resolve(nameOrID string) (string, bool) {
	email, ok := r.byName[normalize(nameOrID)]
	return email, ok
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
