package command

import (
	"crypto/ed25519"
	"encoding/hex"
	"time"

	"github.com/roach88/swarmsync/internal/contacts"
	"github.com/roach88/swarmsync/internal/convo"
	"github.com/roach88/swarmsync/internal/engine"
	"github.com/roach88/swarmsync/internal/groupinfo"
	"github.com/roach88/swarmsync/internal/metagroup"
	"github.com/roach88/swarmsync/internal/profile"
	"github.com/roach88/swarmsync/internal/subaccount"
	"github.com/roach88/swarmsync/internal/usergroups"
)

// Config is a user config instance: the sync surface plus a digest.
type Config interface {
	engine.Syncer
	StateDigest() (string, error)
}

var (
	_ Config = (*profile.Profile)(nil)
	_ Config = (*contacts.Contacts)(nil)
	_ Config = (*usergroups.UserGroups)(nil)
	_ Config = (*convo.Convo)(nil)
)

// Decrypted is the result of group.decrypt.
type Decrypted struct {
	OK        bool   `json:"ok"`
	SenderID  string `json:"sender_id,omitempty"`
	Plaintext string `json:"plaintext,omitempty"`
}

// Generation is the result of group.current_generation.
type Generation struct {
	Generation uint64 `json:"generation"`
	OK         bool   `json:"ok"`
}

// Dispatch applies cmd to target, which is a Config or a *metagroup.Group.
// The result type depends on the command; commands with nothing to report
// return nil. A command that does not apply to target is a misuse error.
func Dispatch(target any, cmd Command) (any, error) {
	if _, ok := cmd.(Digest); ok {
		return digest(target)
	}
	switch t := target.(type) {
	case *metagroup.Group:
		return dispatchGroup(t, cmd)
	case Config:
		if res, handled, err := dispatchConfig(t, cmd); handled {
			return res, err
		}
		return dispatchDomain(t, cmd)
	}
	return nil, mismatch(target, cmd)
}

func mismatch(target any, cmd Command) error {
	return engine.NewMisuseError("dispatch", "%s does not apply to %T", cmd.Kind(), target)
}

func digest(target any) (any, error) {
	switch t := target.(type) {
	case *metagroup.Group:
		info, err := t.Info().StateDigest()
		if err != nil {
			return nil, err
		}
		mem, err := t.Members().StateDigest()
		if err != nil {
			return nil, err
		}
		return info + "/" + mem, nil
	case Config:
		return t.StateDigest()
	}
	return nil, mismatch(target, Digest{})
}

func dispatchConfig(c Config, cmd Command) (any, bool, error) {
	switch cmd := cmd.(type) {
	case NeedsPush:
		return c.NeedsPush(), true, nil
	case Push:
		res, err := c.Push()
		return res, true, err
	case Confirm:
		c.ConfirmPushed(cmd.Seqno, cmd.Hash)
		return nil, true, nil
	case Merge:
		return c.Merge(mergeRecords(cmd.Records)), true, nil
	case Dump:
		res, err := c.Dump()
		return res, true, err
	case Hashes:
		return c.CurrentHashes(), true, nil
	}
	return nil, false, nil
}

func dispatchDomain(c Config, cmd Command) (any, error) {
	switch t := c.(type) {
	case *profile.Profile:
		return dispatchProfile(t, cmd)
	case *contacts.Contacts:
		return dispatchContacts(t, cmd)
	case *usergroups.UserGroups:
		return dispatchUserGroups(t, cmd)
	case *convo.Convo:
		return dispatchConvo(t, cmd)
	}
	return nil, mismatch(c, cmd)
}

func dispatchProfile(p *profile.Profile, cmd Command) (any, error) {
	switch cmd := cmd.(type) {
	case SetProfile:
		pic, err := cmd.Pic.decode("set profile")
		if err != nil {
			return nil, err
		}
		return nil, p.SetUserInfo(cmd.Name, cmd.Priority, pic)
	case SetBlindedRequests:
		return nil, p.SetEnableBlindedMsgRequest(cmd.Enabled)
	case GetProfile:
		return p.GetUserInfo(), nil
	}
	return nil, mismatch(p, cmd)
}

func dispatchContacts(c *contacts.Contacts, cmd Command) (any, error) {
	switch cmd := cmd.(type) {
	case SetContact:
		pic, err := cmd.Pic.decode("set contact")
		if err != nil {
			return nil, err
		}
		return nil, c.Set(contacts.ContactInfo{
			ID:               cmd.ID,
			Name:             cmd.Name,
			Nickname:         cmd.Nickname,
			Approved:         cmd.Approved,
			ApprovedMe:       cmd.ApprovedMe,
			Blocked:          cmd.Blocked,
			Priority:         cmd.Priority,
			CreatedAtSeconds: cmd.CreatedAtSeconds,
			Pic:              pic,
			ExpirationMode:   contacts.ExpirationMode(cmd.ExpirationMode),
			ExpirationTimer:  time.Duration(cmd.ExpirationTimerSeconds) * time.Second,
		})
	case GetContact:
		return c.Get(cmd.ID)
	case EraseContact:
		return c.Erase(cmd.ID)
	case GetAllContacts:
		return c.GetAll(), nil
	}
	return nil, mismatch(c, cmd)
}

func dispatchUserGroups(u *usergroups.UserGroups, cmd Command) (any, error) {
	switch cmd := cmd.(type) {
	case SetCommunity:
		return nil, u.SetCommunityByFullURL(cmd.FullURL, cmd.Priority)
	case EraseCommunity:
		return u.EraseCommunityByFullURL(cmd.FullURL)
	case GetCommunity:
		return u.GetCommunityByFullURL(cmd.FullURL)
	case GetAllCommunities:
		return u.GetAllCommunities(), nil
	case CreateGroup:
		return u.CreateGroup()
	case GetUserGroup:
		return u.GetGroup(cmd.ID)
	case GetAllUserGroups:
		return u.GetAllGroups(), nil
	case SetUserGroup:
		up := usergroups.GroupUpdate{
			PubkeyHex:       cmd.ID,
			AuthData:        cmd.AuthData,
			Name:            cmd.Name,
			Priority:        cmd.Priority,
			JoinedAtSeconds: cmd.JoinedAtSeconds,
			Invited:         cmd.Invited,
			Kicked:          cmd.Kicked,
		}
		if cmd.Secret != "" {
			secret, err := parseSecret("set group", cmd.Secret)
			if err != nil {
				return nil, err
			}
			up.SecretKey = secret
		}
		return u.SetGroup(up)
	case EraseGroup:
		return u.EraseGroup(cmd.ID)
	case SetLegacyGroup:
		info := usergroups.LegacyGroupInfo{
			PubkeyHex:         cmd.ID,
			Name:              cmd.Name,
			EncPubkey:         cmd.EncPubkey,
			EncSeckey:         cmd.EncSeckey,
			Priority:          cmd.Priority,
			JoinedAtSeconds:   cmd.JoinedAtSeconds,
			DisappearingTimer: time.Duration(cmd.DisappearingTimerSeconds) * time.Second,
		}
		for _, m := range cmd.Members {
			info.Members = append(info.Members, usergroups.LegacyGroupMember{PubkeyHex: m.ID, IsAdmin: m.Admin})
		}
		return nil, u.SetLegacyGroup(info)
	case GetLegacyGroup:
		return u.GetLegacyGroup(cmd.ID)
	case GetAllLegacyGroups:
		return u.GetAllLegacyGroups(), nil
	case EraseLegacyGroup:
		return u.EraseLegacyGroup(cmd.ID)
	}
	return nil, mismatch(u, cmd)
}

func dispatchConvo(c *convo.Convo, cmd Command) (any, error) {
	switch cmd := cmd.(type) {
	case SetConvo:
		if convo.Kind(cmd.Convo) == convo.KindCommunity {
			return nil, c.SetCommunityByFullURL(cmd.ID, cmd.LastRead, cmd.Unread)
		}
		return nil, c.Set(convo.Kind(cmd.Convo), cmd.ID, cmd.LastRead, cmd.Unread)
	case EraseConvo:
		if convo.Kind(cmd.Convo) == convo.KindCommunity {
			return c.EraseCommunityByFullURL(cmd.ID)
		}
		return c.Erase(convo.Kind(cmd.Convo), cmd.ID)
	case GetConvo:
		if convo.Kind(cmd.Convo) == convo.KindCommunity {
			return c.GetCommunity(cmd.ID)
		}
		return c.Get(convo.Kind(cmd.Convo), cmd.ID)
	case GetAllConvos:
		if convo.Kind(cmd.Convo) == convo.KindCommunity {
			return c.GetAllCommunities(), nil
		}
		return c.GetAll(convo.Kind(cmd.Convo))
	}
	return nil, mismatch(c, cmd)
}

func dispatchGroup(g *metagroup.Group, cmd Command) (any, error) {
	m := g.Members()
	switch cmd := cmd.(type) {
	case SetGroupInfo:
		pic, err := cmd.Pic.decode("set group info")
		if err != nil {
			return nil, err
		}
		return nil, g.Info().Set(groupinfo.Update{
			Name:                      cmd.Name,
			Description:               cmd.Description,
			CreatedAtSeconds:          cmd.CreatedAtSeconds,
			DeleteBeforeSeconds:       cmd.DeleteBeforeSeconds,
			DeleteAttachBeforeSeconds: cmd.DeleteAttachBeforeSeconds,
			ExpirySeconds:             cmd.ExpirySeconds,
			Pic:                       pic,
			ClearPic:                  cmd.ClearPic,
		})
	case DestroyGroup:
		return nil, g.Info().Destroy()
	case GetGroupInfo:
		return g.Info().Get(), nil
	case GetMember:
		return m.Get(cmd.ID)
	case GetAllMembers:
		return m.GetAll(), nil
	case GetPendingRemovals:
		return m.GetAllPendingRemovals(), nil
	case SetMemberName:
		return nil, m.SetName(cmd.ID, cmd.Name)
	case MemberInvited:
		return nil, m.SetInvited(cmd.ID, cmd.Failed)
	case MemberAccepted:
		return nil, m.SetAccepted(cmd.ID)
	case MemberPromoted:
		return nil, m.SetPromoted(cmd.ID, cmd.Failed)
	case SetMemberAdmin:
		return nil, m.SetAdmin(cmd.ID, cmd.Admin)
	case RemoveMembers:
		return nil, m.MarkPendingRemoval(cmd.IDs, cmd.WithMessages)
	case EraseMembers:
		return g.MemberEraseAndRekey(cmd.IDs)
	case Rekey:
		return g.Rekey()
	case NeedsRekey:
		return g.NeedsRekey(), nil
	case GetKeys:
		return g.Keys().GetAll(), nil
	case CurrentGeneration:
		gen, ok := g.Keys().CurrentGeneration()
		return Generation{Generation: gen, OK: ok}, nil
	case SupplementKeys:
		return g.GenerateSupplementKeys(cmd.IDs)
	case GroupPush:
		return g.Push()
	case GroupConfirm:
		g.MetaConfirmPushed(confirmation(cmd.Info), confirmation(cmd.Members))
		if cmd.KeysHash != "" {
			g.KeysConfirmPushed(cmd.KeysHash)
		}
		return nil, nil
	case GroupMerge:
		in := metagroup.MergeInput{
			Info:    mergeRecords(cmd.Info),
			Members: mergeRecords(cmd.Members),
		}
		for _, k := range cmd.Keys {
			in.Keys = append(in.Keys, metagroup.KeyRecord{Hash: k.Hash, Data: k.Data, TimestampMs: k.TimestampMs})
		}
		return g.MetaMerge(in)
	case Encrypt:
		plain := make([][]byte, len(cmd.Messages))
		for i, s := range cmd.Messages {
			plain[i] = []byte(s)
		}
		return g.EncryptMessages(plain)
	case Decrypt:
		d, ok := g.DecryptMessage(cmd.Ciphertext)
		if !ok {
			return Decrypted{}, nil
		}
		return Decrypted{OK: true, SenderID: d.SenderID, Plaintext: string(d.Plaintext)}, nil
	case Broadcast:
		return g.Broadcast(cmd.Domain, []byte(cmd.Text))
	case OpenBroadcast:
		plain, ok := g.OpenBroadcast(cmd.Data, cmd.Domain)
		if !ok {
			return Decrypted{}, nil
		}
		return Decrypted{OK: true, Plaintext: string(plain)}, nil
	case SubaccountToken:
		return g.Subaccounts().SwarmSubAccountToken(cmd.MemberID)
	case MakeSubaccount:
		flags := subaccount.Flags(cmd.Flags)
		if flags == 0 {
			flags = subaccount.DefaultFlags
		}
		return g.Subaccounts().MakeSwarmSubAccount(cmd.MemberID, flags)
	case SubaccountSign:
		return g.Subaccounts().SwarmSubaccountSign(cmd.Message, cmd.AuthData)
	case VerifySubaccount:
		return g.Subaccounts().SwarmVerifySubAccount(cmd.AuthData), nil
	case LoadAdminKeys:
		secret, err := parseSecret("load admin keys", cmd.Secret)
		if err != nil {
			return nil, err
		}
		return nil, g.LoadAdminKeys(secret)
	case NeedsPush:
		return g.NeedsPush(), nil
	case Hashes:
		return g.CurrentHashes(), nil
	case Dump:
		return g.MetaDump()
	}
	return nil, mismatch(g, cmd)
}

func mergeRecords(in []Record) []engine.MergeRecord {
	out := make([]engine.MergeRecord, len(in))
	for i, r := range in {
		out[i] = engine.MergeRecord{Hash: r.Hash, Data: r.Data}
	}
	return out
}

func confirmation(ref *ConfirmRef) *metagroup.Confirmation {
	if ref == nil {
		return nil
	}
	return &metagroup.Confirmation{Seqno: ref.Seqno, Hash: ref.Hash}
}

// parseSecret accepts a 32-byte seed or a 64-byte ed25519 private key.
func parseSecret(op, s string) (ed25519.PrivateKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, engine.NewInvalidInputError(op, "secret: %v", err)
	}
	switch len(b) {
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(b), nil
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(b), nil
	}
	return nil, engine.NewInvalidInputError(op, "secret must be %d or %d bytes, got %d",
		ed25519.SeedSize, ed25519.PrivateKeySize, len(b))
}
