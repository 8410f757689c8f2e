package identity

import "crypto/ed25519"

// Ownership says whether this device holds a group's admin secret key.
// It is one of Owned or NotOwned.
type Ownership interface {
	adminSecret() (ed25519.PrivateKey, bool)
}

// Owned carries the group's 64-byte ed25519 secret key.
type Owned struct {
	Secret ed25519.PrivateKey
}

func (o Owned) adminSecret() (ed25519.PrivateKey, bool) {
	return o.Secret, len(o.Secret) == ed25519.PrivateKeySize
}

// NotOwned marks a regular, non-admin member.
type NotOwned struct{}

func (NotOwned) adminSecret() (ed25519.PrivateKey, bool) {
	return nil, false
}

// AdminSecret returns the admin key when o is Owned.
func AdminSecret(o Ownership) (ed25519.PrivateKey, bool) {
	if o == nil {
		return nil, false
	}
	return o.adminSecret()
}
