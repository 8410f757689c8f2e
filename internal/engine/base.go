package engine

// Syncer is the push/merge surface every config domain exposes.
type Syncer interface {
	NeedsPush() bool
	NeedsDump() bool
	Push() (PushResult, error)
	Dump() ([]byte, error)
	ConfirmPushed(seqno int64, hash string)
	Merge(records []MergeRecord) []string
	StorageNamespace() Namespace
	CurrentHashes() []string
}

var _ Syncer = (*Config)(nil)

// Base forwards the Syncer methods to a Config. Domain wrappers embed it so
// the raw key setters stay private to the wrapper.
type Base struct {
	cfg *Config
}

// NewBase wraps cfg.
func NewBase(cfg *Config) Base {
	return Base{cfg: cfg}
}

func (b Base) NeedsPush() bool                        { return b.cfg.NeedsPush() }
func (b Base) NeedsDump() bool                        { return b.cfg.NeedsDump() }
func (b Base) Push() (PushResult, error)              { return b.cfg.Push() }
func (b Base) Dump() ([]byte, error)                  { return b.cfg.Dump() }
func (b Base) ConfirmPushed(seqno int64, hash string) { b.cfg.ConfirmPushed(seqno, hash) }
func (b Base) Merge(records []MergeRecord) []string   { return b.cfg.Merge(records) }
func (b Base) StorageNamespace() Namespace            { return b.cfg.StorageNamespace() }
func (b Base) CurrentHashes() []string                { return b.cfg.CurrentHashes() }
func (b Base) Reseal()                                { b.cfg.Reseal() }
func (b Base) MakeDump() ([]byte, error)              { return b.cfg.MakeDump() }
