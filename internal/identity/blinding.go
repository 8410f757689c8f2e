package identity

import (
	"crypto/ed25519"
	"encoding/hex"
	"strconv"

	"github.com/cockroachdb/errors"
	"golang.org/x/crypto/blake2b"
)

// PrefixBlindedVersion marks a version-check blinded key.
const PrefixBlindedVersion = "07"

const versionBlindingKey = "VersionCheckKey_sig"

// Platform selects the version-check endpoint a signature is bound to.
type Platform string

const (
	PlatformDesktop Platform = "desktop"
	PlatformAndroid Platform = "android"
	PlatformIOS     Platform = "ios"
)

// BlindVersionKeyPair derives the key pair used to sign version checks, so
// the check cannot be linked to the account. secret is a 32-byte seed or a
// 64-byte ed25519 private key.
func BlindVersionKeyPair(secret []byte) (ed25519.PublicKey, ed25519.PrivateKey, error) {
	if len(secret) != ed25519.SeedSize && len(secret) != ed25519.PrivateKeySize {
		return nil, nil, errors.Newf("ed25519 secret key must be %d or %d bytes, got %d",
			ed25519.SeedSize, ed25519.PrivateKeySize, len(secret))
	}
	h, err := blake2b.New256([]byte(versionBlindingKey))
	if err != nil {
		return nil, nil, errors.Wrap(err, "init blinding hash")
	}
	h.Write(secret[:ed25519.SeedSize])
	sk := ed25519.NewKeyFromSeed(h.Sum(nil))
	return sk.Public().(ed25519.PublicKey), sk, nil
}

// BlindVersionPubkey returns the "07"-prefixed hex blinded version key.
func BlindVersionPubkey(secret []byte) (string, error) {
	pub, _, err := BlindVersionKeyPair(secret)
	if err != nil {
		return "", err
	}
	return PrefixBlindedVersion + hex.EncodeToString(pub), nil
}

// BlindVersionSign signs a version-check request made at timestamp (unix
// seconds) with the blinded version key.
func BlindVersionSign(secret []byte, platform Platform, timestamp int64) ([]byte, error) {
	_, sk, err := BlindVersionKeyPair(secret)
	if err != nil {
		return nil, err
	}
	return ed25519.Sign(sk, versionRequest(platform, timestamp)), nil
}

// VerifyBlindedVersion checks a BlindVersionSign signature against the
// hex key from BlindVersionPubkey.
func VerifyBlindedVersion(pubkeyHex string, platform Platform, timestamp int64, sig []byte) bool {
	raw, err := parsePrefixed(pubkeyHex, PrefixBlindedVersion)
	if err != nil {
		return false
	}
	return ed25519.Verify(raw[:], versionRequest(platform, timestamp), sig)
}

// versionRequest is the signed text: timestamp, method, then path.
func versionRequest(platform Platform, timestamp int64) []byte {
	return []byte(strconv.FormatInt(timestamp, 10) + "GET" + "/session_version?platform=" + string(platform))
}
