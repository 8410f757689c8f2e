// Package community parses and builds open-group URLs of the form
//
//	https://example.org/room?public_key=<64 hex>
//
// Base URLs are normalized (lowercase scheme and host, default port and
// trailing slash dropped). Room tokens keep their case for display but
// compare case-insensitively.
package community

import (
	"encoding/hex"
	"net/url"
	"regexp"
	"strings"

	"github.com/cockroachdb/errors"
)

// PubkeySize is the length of a community server key.
const PubkeySize = 32

// ErrInvalidURL marks malformed community URLs.
var ErrInvalidURL = errors.New("invalid community url")

var roomPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Details identifies one room.
type Details struct {
	BaseURL string
	Room    string
	Pubkey  []byte
}

// FullURL formats d with its pubkey.
func (d Details) FullURL() string {
	return BuildFullURL(d.BaseURL, d.Room, d.Pubkey)
}

// RoomKey is the case-folded room token used for lookups.
func RoomKey(room string) string {
	return strings.ToLower(room)
}

// BuildFullURL joins a normalized base, a room, and a server key.
func BuildFullURL(base, room string, pubkey []byte) string {
	return base + "/" + room + "?public_key=" + hex.EncodeToString(pubkey)
}

// NormalizeBase lowercases scheme and host and strips a default port,
// any path, and any trailing slash.
func NormalizeBase(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", errors.Mark(errors.Wrapf(err, "parse %q", raw), ErrInvalidURL)
	}
	return normalize(u, raw)
}

func normalize(u *url.URL, raw string) (string, error) {
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", errors.Mark(errors.Newf("%q: scheme must be http or https", raw), ErrInvalidURL)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", errors.Mark(errors.Newf("%q: missing host", raw), ErrInvalidURL)
	}
	port := u.Port()
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		host += ":" + port
	}
	return scheme + "://" + host, nil
}

// ParseFullURL splits a community URL into base, room, and pubkey. The
// pubkey is nil when the URL carries none. Rooms may be given as /room or
// /r/room.
func ParseFullURL(full string) (Details, error) {
	u, err := url.Parse(strings.TrimSpace(full))
	if err != nil {
		return Details{}, errors.Mark(errors.Wrapf(err, "parse %q", full), ErrInvalidURL)
	}
	base, err := normalize(u, full)
	if err != nil {
		return Details{}, err
	}

	path := strings.Trim(u.Path, "/")
	path = strings.TrimPrefix(path, "r/")
	if !roomPattern.MatchString(path) {
		return Details{}, errors.Mark(errors.Newf("%q: invalid room token %q", full, path), ErrInvalidURL)
	}

	d := Details{BaseURL: base, Room: path}
	if pk := u.Query().Get("public_key"); pk != "" {
		b, err := hex.DecodeString(pk)
		if err != nil || len(b) != PubkeySize {
			return Details{}, errors.Mark(errors.Newf("%q: public_key must be %d hex bytes", full, PubkeySize), ErrInvalidURL)
		}
		d.Pubkey = b
	}
	return d, nil
}
