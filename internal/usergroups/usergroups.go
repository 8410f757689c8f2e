// Package usergroups is the config listing every group and community the
// user has joined.
//
// Three kinds of entry share the namespace:
//   - communities, keyed by normalized base URL and case-folded room
//   - legacy groups, keyed by their "05" id, with an inline member list
//   - groups, keyed by their "03" id, optionally holding the admin key
package usergroups

import (
	"crypto/ed25519"
	"encoding/hex"

	"github.com/roach88/swarmsync/internal/engine"
	"github.com/roach88/swarmsync/internal/settings"
)

// UserGroups is the UserGroups config.
type UserGroups struct {
	engine.Base
	cfg *engine.Config
}

func schema(l settings.Limits) engine.Schema {
	return engine.NewSchema(engine.NamespaceUserGroups,
		engine.Field{Path: "o/*/pubkey", Kind: engine.KindBytes, Len: 32},
		engine.Field{Path: "o/*/r/*/room", Kind: engine.KindString, MaxLen: 64},
		engine.Field{Path: "o/*/r/*/priority", Kind: engine.KindInt},

		engine.Field{Path: "l/*/exists", Kind: engine.KindBool},
		engine.Field{Path: "l/*/name", Kind: engine.KindString, MaxLen: l.MaxNameLength},
		engine.Field{Path: "l/*/enc_pub", Kind: engine.KindBytes, Len: 32},
		engine.Field{Path: "l/*/enc_sec", Kind: engine.KindBytes, Len: 32},
		engine.Field{Path: "l/*/priority", Kind: engine.KindInt},
		engine.Field{Path: "l/*/joined", Policy: engine.MaxValue, Kind: engine.KindInt},
		engine.Field{Path: "l/*/disappear", Kind: engine.KindInt},
		engine.Field{Path: "l/*/m/*", Kind: engine.KindBool},

		engine.Field{Path: "g/*/exists", Kind: engine.KindBool},
		engine.Field{Path: "g/*/secret", Kind: engine.KindBytes, Len: ed25519.PrivateKeySize},
		engine.Field{Path: "g/*/auth", Kind: engine.KindBytes, Len: 100},
		engine.Field{Path: "g/*/name", Kind: engine.KindString, MaxLen: l.MaxNameLength},
		engine.Field{Path: "g/*/priority", Kind: engine.KindInt},
		engine.Field{Path: "g/*/joined", Kind: engine.KindInt},
		engine.Field{Path: "g/*/invited", Kind: engine.KindBool},
		engine.Field{Path: "g/*/kicked", Kind: engine.KindBool},
	)
}

// New opens the group list owned by secret.
func New(secret ed25519.PrivateKey, dump []byte, limits settings.Limits, opts ...engine.Option) (*UserGroups, error) {
	sealer, err := engine.NewSecretboxSealer(secret, engine.NamespaceUserGroups)
	if err != nil {
		return nil, err
	}
	opts = append(opts, engine.WithLimits(limits))
	cfg, err := engine.New(schema(limits), sealer, dump, opts...)
	if err != nil {
		return nil, err
	}
	return &UserGroups{Base: engine.NewBase(cfg), cfg: cfg}, nil
}

// StateDigest fingerprints the group list values.
func (u *UserGroups) StateDigest() (string, error) {
	return u.cfg.StateDigest()
}

func hexSegment(s string) string {
	return hex.EncodeToString([]byte(s))
}

func deleteAll(cfg *engine.Config, keys []string) error {
	for _, k := range keys {
		if err := cfg.Delete(k); err != nil {
			return err
		}
	}
	return nil
}
