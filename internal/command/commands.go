package command

import (
	"encoding/hex"

	"github.com/roach88/swarmsync/internal/engine"
	"github.com/roach88/swarmsync/internal/profilepic"
)

func init() {
	register[NeedsPush]()
	register[Push]()
	register[Confirm]()
	register[Merge]()
	register[Dump]()
	register[Digest]()
	register[Hashes]()

	register[SetProfile]()
	register[SetBlindedRequests]()
	register[GetProfile]()

	register[SetContact]()
	register[GetContact]()
	register[EraseContact]()
	register[GetAllContacts]()

	register[SetCommunity]()
	register[EraseCommunity]()
	register[GetCommunity]()
	register[GetAllCommunities]()
	register[CreateGroup]()
	register[GetUserGroup]()
	register[GetAllUserGroups]()
	register[SetUserGroup]()
	register[EraseGroup]()
	register[SetLegacyGroup]()
	register[GetLegacyGroup]()
	register[GetAllLegacyGroups]()
	register[EraseLegacyGroup]()

	register[SetConvo]()
	register[EraseConvo]()
	register[GetConvo]()
	register[GetAllConvos]()

	register[SetGroupInfo]()
	register[DestroyGroup]()
	register[GetGroupInfo]()
	register[GetMember]()
	register[GetAllMembers]()
	register[GetPendingRemovals]()
	register[SetMemberName]()
	register[MemberInvited]()
	register[MemberAccepted]()
	register[MemberPromoted]()
	register[SetMemberAdmin]()
	register[RemoveMembers]()
	register[EraseMembers]()
	register[Rekey]()
	register[NeedsRekey]()
	register[GetKeys]()
	register[CurrentGeneration]()
	register[SupplementKeys]()
	register[GroupPush]()
	register[GroupConfirm]()
	register[GroupMerge]()
	register[Encrypt]()
	register[Decrypt]()
	register[SubaccountToken]()
	register[MakeSubaccount]()
	register[SubaccountSign]()
	register[VerifySubaccount]()
	register[LoadAdminKeys]()
	register[Broadcast]()
	register[OpenBroadcast]()
}

// Pic is a profile picture with a hex-encoded key.
type Pic struct {
	URL string `json:"url"`
	Key string `json:"key"`
}

func (p *Pic) decode(op string) (*profilepic.Pic, error) {
	if p == nil {
		return nil, nil
	}
	key, err := hex.DecodeString(p.Key)
	if err != nil {
		return nil, engine.NewInvalidInputError(op, "picture key: %v", err)
	}
	return &profilepic.Pic{URL: p.URL, Key: key}, nil
}

// Record is one fetched config message.
type Record struct {
	Hash string `json:"hash"`
	Data []byte `json:"data"`
}

// KeyRecord is one fetched key-rotation message.
type KeyRecord struct {
	Hash        string `json:"hash"`
	Data        []byte `json:"data"`
	TimestampMs int64  `json:"timestamp_ms"`
}

// ConfirmRef acknowledges one uploaded group config push.
type ConfirmRef struct {
	Seqno int64  `json:"seqno"`
	Hash  string `json:"hash"`
}

// Config sync. These apply to every user config. NeedsPush, Digest, Dump
// and Hashes also apply to groups.

type NeedsPush struct{}

type Push struct{}

type Confirm struct {
	Seqno int64  `json:"seqno"`
	Hash  string `json:"hash"`
}

type Merge struct {
	Records []Record `json:"records"`
}

type Dump struct{}

type Digest struct{}

type Hashes struct{}

// Profile.

type SetProfile struct {
	Name     string `json:"name"`
	Priority int64  `json:"priority"`
	Pic      *Pic   `json:"pic,omitempty"`
}

type SetBlindedRequests struct {
	Enabled bool `json:"enabled"`
}

type GetProfile struct{}

// Contacts.

type SetContact struct {
	ID                     string `json:"id"`
	Name                   string `json:"name,omitempty"`
	Nickname               string `json:"nickname,omitempty"`
	Approved               bool   `json:"approved,omitempty"`
	ApprovedMe             bool   `json:"approved_me,omitempty"`
	Blocked                bool   `json:"blocked,omitempty"`
	Priority               int64  `json:"priority,omitempty"`
	CreatedAtSeconds       int64  `json:"created_at_seconds,omitempty"`
	Pic                    *Pic   `json:"pic,omitempty"`
	ExpirationMode         string `json:"expiration_mode,omitempty"`
	ExpirationTimerSeconds int64  `json:"expiration_timer_seconds,omitempty"`
}

type GetContact struct {
	ID string `json:"id"`
}

type EraseContact struct {
	ID string `json:"id"`
}

type GetAllContacts struct{}

// User groups.

type SetCommunity struct {
	FullURL  string `json:"full_url"`
	Priority int64  `json:"priority"`
}

type EraseCommunity struct {
	FullURL string `json:"full_url"`
}

type GetCommunity struct {
	FullURL string `json:"full_url"`
}

type GetAllCommunities struct{}

type CreateGroup struct{}

type GetUserGroup struct {
	ID string `json:"id"`
}

type GetAllUserGroups struct{}

// SetUserGroup updates a joined group. Secret is a hex seed or private key.
type SetUserGroup struct {
	ID              string  `json:"id"`
	Secret          string  `json:"secret,omitempty"`
	AuthData        []byte  `json:"auth_data,omitempty"`
	Name            *string `json:"name,omitempty"`
	Priority        *int64  `json:"priority,omitempty"`
	JoinedAtSeconds *int64  `json:"joined_at_seconds,omitempty"`
	Invited         *bool   `json:"invited,omitempty"`
	Kicked          *bool   `json:"kicked,omitempty"`
}

type EraseGroup struct {
	ID string `json:"id"`
}

type LegacyMember struct {
	ID    string `json:"id"`
	Admin bool   `json:"admin,omitempty"`
}

type SetLegacyGroup struct {
	ID                       string         `json:"id"`
	Name                     string         `json:"name,omitempty"`
	EncPubkey                []byte         `json:"enc_pubkey,omitempty"`
	EncSeckey                []byte         `json:"enc_seckey,omitempty"`
	Priority                 int64          `json:"priority,omitempty"`
	JoinedAtSeconds          int64          `json:"joined_at_seconds,omitempty"`
	DisappearingTimerSeconds int64          `json:"disappearing_timer_seconds,omitempty"`
	Members                  []LegacyMember `json:"members,omitempty"`
}

type GetLegacyGroup struct {
	ID string `json:"id"`
}

type GetAllLegacyGroups struct{}

type EraseLegacyGroup struct {
	ID string `json:"id"`
}

// Conversation read state. For communities ID is the full URL.

type SetConvo struct {
	Convo    string `json:"kind"`
	ID       string `json:"id"`
	LastRead int64  `json:"last_read"`
	Unread   bool   `json:"unread"`
}

type EraseConvo struct {
	Convo string `json:"kind"`
	ID    string `json:"id"`
}

type GetConvo struct {
	Convo string `json:"kind"`
	ID    string `json:"id"`
}

// GetAllConvos lists one kind of conversation.
type GetAllConvos struct {
	Convo string `json:"kind"`
}

// Groups.

type SetGroupInfo struct {
	Name                      *string `json:"name,omitempty"`
	Description               *string `json:"description,omitempty"`
	CreatedAtSeconds          *int64  `json:"created_at_seconds,omitempty"`
	DeleteBeforeSeconds       *int64  `json:"delete_before_seconds,omitempty"`
	DeleteAttachBeforeSeconds *int64  `json:"delete_attach_before_seconds,omitempty"`
	ExpirySeconds             *int64  `json:"expiry_seconds,omitempty"`
	Pic                       *Pic    `json:"pic,omitempty"`
	ClearPic                  bool    `json:"clear_pic,omitempty"`
}

type DestroyGroup struct{}

type GetGroupInfo struct{}

type GetMember struct {
	ID string `json:"id"`
}

type GetAllMembers struct{}

type GetPendingRemovals struct{}

type SetMemberName struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type MemberInvited struct {
	ID     string `json:"id"`
	Failed bool   `json:"failed,omitempty"`
}

type MemberAccepted struct {
	ID string `json:"id"`
}

type MemberPromoted struct {
	ID     string `json:"id"`
	Failed bool   `json:"failed,omitempty"`
}

type SetMemberAdmin struct {
	ID    string `json:"id"`
	Admin bool   `json:"admin"`
}

type RemoveMembers struct {
	IDs          []string `json:"ids"`
	WithMessages bool     `json:"with_messages,omitempty"`
}

// EraseMembers erases the members and rekeys when any existed.
type EraseMembers struct {
	IDs []string `json:"ids"`
}

type Rekey struct{}

type NeedsRekey struct{}

type GetKeys struct{}

type CurrentGeneration struct{}

type SupplementKeys struct {
	IDs []string `json:"ids"`
}

type GroupPush struct{}

type GroupConfirm struct {
	Info     *ConfirmRef `json:"info,omitempty"`
	Members  *ConfirmRef `json:"members,omitempty"`
	KeysHash string      `json:"keys_hash,omitempty"`
}

type GroupMerge struct {
	Keys    []KeyRecord `json:"keys,omitempty"`
	Info    []Record    `json:"info,omitempty"`
	Members []Record    `json:"members,omitempty"`
}

type Encrypt struct {
	Messages []string `json:"messages"`
}

type Decrypt struct {
	Ciphertext []byte `json:"ciphertext"`
}

type SubaccountToken struct {
	MemberID string `json:"member_id"`
}

// MakeSubaccount issues auth data for a member. Zero flags mean read and
// write.
type MakeSubaccount struct {
	MemberID string `json:"member_id"`
	Flags    uint8  `json:"flags,omitempty"`
}

type SubaccountSign struct {
	Message  []byte `json:"message"`
	AuthData []byte `json:"auth_data"`
}

type VerifySubaccount struct {
	AuthData []byte `json:"auth_data"`
}

// Broadcast seals text from the group key to every active member.
type Broadcast struct {
	Domain string `json:"domain"`
	Text   string `json:"text"`
}

type OpenBroadcast struct {
	Domain string `json:"domain"`
	Data   []byte `json:"data"`
}

// LoadAdminKeys installs the group's hex-encoded ed25519 seed or private key.
type LoadAdminKeys struct {
	Secret string `json:"secret"`
}

func (NeedsPush) Kind() string          { return "config.needs_push" }
func (Push) Kind() string               { return "config.push" }
func (Confirm) Kind() string            { return "config.confirm" }
func (Merge) Kind() string              { return "config.merge" }
func (Dump) Kind() string               { return "config.dump" }
func (Digest) Kind() string             { return "config.digest" }
func (Hashes) Kind() string             { return "config.hashes" }
func (SetProfile) Kind() string         { return "profile.set" }
func (SetBlindedRequests) Kind() string { return "profile.set_blinded_requests" }
func (GetProfile) Kind() string         { return "profile.get" }
func (SetContact) Kind() string         { return "contacts.set" }
func (GetContact) Kind() string         { return "contacts.get" }
func (EraseContact) Kind() string       { return "contacts.erase" }
func (SetCommunity) Kind() string       { return "user_groups.set_community" }
func (EraseCommunity) Kind() string     { return "user_groups.erase_community" }
func (CreateGroup) Kind() string        { return "user_groups.create_group" }
func (EraseGroup) Kind() string         { return "user_groups.erase_group" }
func (SetConvo) Kind() string           { return "convo.set" }
func (EraseConvo) Kind() string         { return "convo.erase" }
func (SetGroupInfo) Kind() string       { return "group.set_info" }
func (DestroyGroup) Kind() string       { return "group.destroy" }
func (GetGroupInfo) Kind() string       { return "group.info" }
func (GetMember) Kind() string          { return "group.member.get" }
func (SetMemberName) Kind() string      { return "group.member.set_name" }
func (MemberInvited) Kind() string      { return "group.member.invited" }
func (MemberAccepted) Kind() string     { return "group.member.accepted" }
func (MemberPromoted) Kind() string     { return "group.member.promoted" }
func (SetMemberAdmin) Kind() string     { return "group.member.set_admin" }
func (RemoveMembers) Kind() string      { return "group.member.remove" }
func (EraseMembers) Kind() string       { return "group.member.erase" }
func (Rekey) Kind() string              { return "group.rekey" }
func (SupplementKeys) Kind() string     { return "group.supplement_keys" }
func (GroupPush) Kind() string          { return "group.push" }
func (GroupConfirm) Kind() string       { return "group.confirm" }
func (GroupMerge) Kind() string         { return "group.merge" }
func (Encrypt) Kind() string            { return "group.encrypt" }
func (Decrypt) Kind() string            { return "group.decrypt" }
func (SubaccountToken) Kind() string    { return "group.subaccount_token" }
func (LoadAdminKeys) Kind() string      { return "group.load_admin_keys" }
func (Broadcast) Kind() string          { return "group.broadcast" }
func (OpenBroadcast) Kind() string      { return "group.open_broadcast" }
func (GetAllContacts) Kind() string     { return "contacts.get_all" }
func (GetCommunity) Kind() string       { return "user_groups.get_community" }
func (GetAllCommunities) Kind() string  { return "user_groups.get_all_communities" }
func (GetUserGroup) Kind() string       { return "user_groups.get_group" }
func (GetAllUserGroups) Kind() string   { return "user_groups.get_all_groups" }
func (SetUserGroup) Kind() string       { return "user_groups.set_group" }
func (SetLegacyGroup) Kind() string     { return "user_groups.set_legacy" }
func (GetLegacyGroup) Kind() string     { return "user_groups.get_legacy" }
func (GetAllLegacyGroups) Kind() string { return "user_groups.get_all_legacy" }
func (EraseLegacyGroup) Kind() string   { return "user_groups.erase_legacy" }
func (GetConvo) Kind() string           { return "convo.get" }
func (GetAllConvos) Kind() string       { return "convo.get_all" }
func (GetAllMembers) Kind() string      { return "group.member.get_all" }
func (GetPendingRemovals) Kind() string { return "group.member.pending_removals" }
func (NeedsRekey) Kind() string         { return "group.needs_rekey" }
func (GetKeys) Kind() string            { return "group.keys" }
func (CurrentGeneration) Kind() string  { return "group.current_generation" }
func (MakeSubaccount) Kind() string     { return "group.subaccount.make" }
func (SubaccountSign) Kind() string     { return "group.subaccount.sign" }
func (VerifySubaccount) Kind() string   { return "group.subaccount.verify" }

func (NeedsPush) command()          {}
func (Push) command()               {}
func (Confirm) command()            {}
func (Merge) command()              {}
func (Dump) command()               {}
func (Digest) command()             {}
func (Hashes) command()             {}
func (SetProfile) command()         {}
func (SetBlindedRequests) command() {}
func (GetProfile) command()         {}
func (SetContact) command()         {}
func (GetContact) command()         {}
func (EraseContact) command()       {}
func (SetCommunity) command()       {}
func (EraseCommunity) command()     {}
func (CreateGroup) command()        {}
func (EraseGroup) command()         {}
func (SetConvo) command()           {}
func (EraseConvo) command()         {}
func (SetGroupInfo) command()       {}
func (DestroyGroup) command()       {}
func (GetGroupInfo) command()       {}
func (GetMember) command()          {}
func (SetMemberName) command()      {}
func (MemberInvited) command()      {}
func (MemberAccepted) command()     {}
func (MemberPromoted) command()     {}
func (SetMemberAdmin) command()     {}
func (RemoveMembers) command()      {}
func (EraseMembers) command()       {}
func (Rekey) command()              {}
func (SupplementKeys) command()     {}
func (GroupPush) command()          {}
func (GroupConfirm) command()       {}
func (GroupMerge) command()         {}
func (Encrypt) command()            {}
func (Decrypt) command()            {}
func (SubaccountToken) command()    {}
func (LoadAdminKeys) command()      {}
func (Broadcast) command()          {}
func (OpenBroadcast) command()      {}
func (GetAllContacts) command()     {}
func (GetCommunity) command()       {}
func (GetAllCommunities) command()  {}
func (GetUserGroup) command()       {}
func (GetAllUserGroups) command()   {}
func (SetUserGroup) command()       {}
func (SetLegacyGroup) command()     {}
func (GetLegacyGroup) command()     {}
func (GetAllLegacyGroups) command() {}
func (EraseLegacyGroup) command()   {}
func (GetConvo) command()           {}
func (GetAllConvos) command()       {}
func (GetAllMembers) command()      {}
func (GetPendingRemovals) command() {}
func (NeedsRekey) command()         {}
func (GetKeys) command()            {}
func (CurrentGeneration) command()  {}
func (MakeSubaccount) command()     {}
func (SubaccountSign) command()     {}
func (VerifySubaccount) command()   {}
