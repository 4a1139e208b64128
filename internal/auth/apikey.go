package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
)

// APIKeys maps hashed static keys to their owners. Only hashes are kept in
// memory.
type APIKeys struct {
	header string
	owners map[string]string
}

// ParseAPIKeys reads "owner:key" pairs.
func ParseAPIKeys(header string, pairs []string) (*APIKeys, error) {
	if header == "" {
		header = "X-API-Key"
	}
	k := &APIKeys{header: header, owners: make(map[string]string, len(pairs))}
	for _, p := range pairs {
		owner, key, ok := strings.Cut(p, ":")
		owner, key = strings.TrimSpace(owner), strings.TrimSpace(key)
		if !ok || owner == "" || key == "" {
			return nil, fmt.Errorf("invalid API key entry %q: want owner:key", p)
		}
		k.owners[HashAPIKey(key)] = owner
	}
	return k, nil
}

func (k *APIKeys) Len() int { return len(k.owners) }

// Lookup reports the owner of the request's API key. ok is false when the
// request carries no key; err is set when it carries an unknown one.
func (k *APIKeys) Lookup(r *http.Request) (owner string, ok bool, err error) {
	key := r.Header.Get(k.header)
	if key == "" {
		return "", false, nil
	}

	hash := HashAPIKey(key)
	for h, o := range k.owners {
		if subtle.ConstantTimeCompare([]byte(h), []byte(hash)) == 1 {
			return o, true, nil
		}
	}
	return "", false, fmt.Errorf("unknown API key")
}

func HashAPIKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:])
}
