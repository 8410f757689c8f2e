package ir

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/cockroachdb/errors"
)

// Domain prefixes for content-addressed identity.
// The version suffix leaves room for algorithm migration.
const (
	DomainState   = "swarmsync/state/v1"
	DomainMessage = "swarmsync/message/v1"
)

// hashWithDomain computes SHA256(domain || 0x00 || data) as hex.
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// StateDigest is a stable fingerprint of a config state object.
func StateDigest(state IRObject) (string, error) {
	canonical, err := MarshalCanonical(state)
	if err != nil {
		return "", errors.Wrap(err, "StateDigest")
	}
	return hashWithDomain(DomainState, canonical), nil
}

// MessageHash derives a relay-style identifier for an uploaded blob.
// Real relays assign their own hashes; this is used by the in-memory relay
// in scenarios and tests.
func MessageHash(data []byte) string {
	return hashWithDomain(DomainMessage, data)
}
