package cluster

import "strings"

// Grouper extracts the group a key belongs to. Keys of the same group share owners.
type Grouper func(key string) (group string, ok bool)

// HashTagGrouper groups keys by the first non-empty {tag} they contain,
// so "user:{42}:name" and "user:{42}:mail" land on the same owners.
func HashTagGrouper(key string) (string, bool) {
	start := strings.IndexByte(key, '{')
	if start < 0 {
		return "", false
	}

	end := strings.IndexByte(key[start+1:], '}')
	if end <= 0 {
		return "", false
	}

	return key[start+1 : start+1+end], true
}

// GroupOf reports whether key belongs to group under grouper g.
func GroupOf(g Grouper, key, group string) bool {
	if g == nil {
		return false
	}

	kg, ok := g(key)

	return ok && kg == group
}
