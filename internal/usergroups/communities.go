package usergroups

import (
	"encoding/hex"
	"slices"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/roach88/swarmsync/internal/community"
	"github.com/roach88/swarmsync/internal/engine"
	"github.com/roach88/swarmsync/internal/ir"
)

// CommunityInfo is one joined community room.
type CommunityInfo struct {
	community.Details
	FullURL  string
	Priority int64
}

func baseKey(base string) string {
	return "o/" + hexSegment(base)
}

func roomKey(base, room string) string {
	return baseKey(base) + "/r/" + community.RoomKey(room)
}

func parseURL(op, full string) (community.Details, error) {
	d, err := community.ParseFullURL(full)
	if err != nil {
		return d, engine.NewInvalidInputError(op, "%v", err)
	}
	return d, nil
}

// BuildFullURL formats a community URL from its parts.
func BuildFullURL(base, room, pubkeyHex string) (string, error) {
	pk, err := hex.DecodeString(pubkeyHex)
	if err != nil || len(pk) != community.PubkeySize {
		return "", engine.NewInvalidInputError("build community url", "pubkey must be %d hex bytes", community.PubkeySize)
	}
	norm, err := community.NormalizeBase(base)
	if err != nil {
		return "", engine.NewInvalidInputError("build community url", "%v", err)
	}
	return community.BuildFullURL(norm, room, pk), nil
}

// ParseFullURL splits a community URL. The pubkey may be absent.
func ParseFullURL(full string) (community.Details, error) {
	return parseURL("parse community url", full)
}

// SetCommunityByFullURL joins a community, or updates the priority of one
// already joined. The URL must carry the server pubkey. An existing entry
// keeps the room capitalization it was first stored with.
func (u *UserGroups) SetCommunityByFullURL(full string, priority int64) error {
	const op = "set community"
	d, err := parseURL(op, full)
	if err != nil {
		return err
	}
	if d.Pubkey == nil {
		return engine.NewInvalidInputError(op, "%q has no public_key", full)
	}
	if n, max := len(d.FullURL()), u.cfg.Limits().MaxCommunityURLLength; n > max {
		return engine.NewInvalidInputError(op, "community URL is %d bytes, limit is %d", n, max)
	}

	rk := roomKey(d.BaseURL, d.Room)
	if err := u.cfg.Set(baseKey(d.BaseURL)+"/pubkey", ir.Bytes(d.Pubkey)); err != nil {
		return err
	}
	if _, ok := u.cfg.Get(rk + "/room"); !ok {
		if err := u.cfg.Set(rk+"/room", ir.IRString(d.Room)); err != nil {
			return err
		}
	}
	return u.cfg.Set(rk+"/priority", ir.IRInt(priority))
}

// GetCommunityByFullURL looks a room up by URL, with or without pubkey.
func (u *UserGroups) GetCommunityByFullURL(full string) (*CommunityInfo, error) {
	d, err := parseURL("get community", full)
	if err != nil {
		return nil, err
	}
	info, ok := u.readCommunity(d.BaseURL, community.RoomKey(d.Room))
	if !ok {
		return nil, nil
	}
	return &info, nil
}

func (u *UserGroups) readCommunity(base, room string) (CommunityInfo, bool) {
	rk := baseKey(base) + "/r/" + room
	rv, ok := u.cfg.Get(rk + "/room")
	if !ok {
		return CommunityInfo{}, false
	}
	name, _ := ir.AsString(rv)
	pk, _ := u.cfg.Get(baseKey(base) + "/pubkey")
	pubkey, _ := ir.AsBytes(pk)
	d := community.Details{BaseURL: base, Room: name, Pubkey: pubkey}
	return CommunityInfo{
		Details:  d,
		FullURL:  d.FullURL(),
		Priority: u.cfg.GetInt(rk + "/priority"),
	}, true
}

// GetAllCommunities lists joined rooms ordered by base URL then room.
func (u *UserGroups) GetAllCommunities() []CommunityInfo {
	var out []CommunityInfo
	for _, k := range u.cfg.Keys("o/") {
		// o/<hexbase>/r/<room>/room
		parts := strings.Split(k, "/")
		if len(parts) != 5 || parts[4] != "room" {
			continue
		}
		base, err := hex.DecodeString(parts[1])
		if err != nil {
			continue
		}
		if info, ok := u.readCommunity(string(base), parts[3]); ok {
			out = append(out, info)
		}
	}
	slices.SortFunc(out, func(a, b CommunityInfo) int {
		if c := strings.Compare(a.BaseURL, b.BaseURL); c != 0 {
			return c
		}
		return strings.Compare(community.RoomKey(a.Room), community.RoomKey(b.Room))
	})
	return out
}

// EraseCommunityByFullURL leaves a room. The server pubkey is dropped with
// the last room on that server. It reports whether the room was joined.
func (u *UserGroups) EraseCommunityByFullURL(full string) (bool, error) {
	d, err := parseURL("erase community", full)
	if err != nil {
		return false, err
	}
	rk := roomKey(d.BaseURL, d.Room)
	if _, ok := u.cfg.Get(rk + "/room"); !ok {
		return false, nil
	}
	if err := deleteAll(u.cfg, []string{rk + "/room", rk + "/priority"}); err != nil {
		return false, err
	}
	remaining := u.cfg.Keys(baseKey(d.BaseURL) + "/r/")
	if len(remaining) == 0 {
		if err := u.cfg.Delete(baseKey(d.BaseURL) + "/pubkey"); err != nil {
			return false, errors.Wrap(err, "drop server pubkey")
		}
	}
	return true, nil
}
