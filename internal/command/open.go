package command

import (
	"crypto/ed25519"

	"github.com/roach88/swarmsync/internal/contacts"
	"github.com/roach88/swarmsync/internal/convo"
	"github.com/roach88/swarmsync/internal/engine"
	"github.com/roach88/swarmsync/internal/profile"
	"github.com/roach88/swarmsync/internal/settings"
	"github.com/roach88/swarmsync/internal/usergroups"
)

// UserTargets names the per-account configs every device holds, in
// namespace order.
var UserTargets = []string{"profile", "contacts", "convo", "user_groups"}

// OpenConfig builds the user config named by target from an optional dump.
func OpenConfig(target string, secret ed25519.PrivateKey, dump []byte, limits settings.Limits, opts ...engine.Option) (Config, error) {
	var (
		cfg Config
		err error
	)
	switch target {
	case "profile":
		cfg, err = profile.New(secret, dump, limits, opts...)
	case "contacts":
		cfg, err = contacts.New(secret, dump, limits, opts...)
	case "user_groups":
		cfg, err = usergroups.New(secret, dump, limits, opts...)
	case "convo":
		cfg, err = convo.New(secret, dump, limits, opts...)
	default:
		return nil, engine.NewInvalidInputError("open config", "unknown target %q", target)
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}
