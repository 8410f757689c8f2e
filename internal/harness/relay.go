package harness

import (
	"github.com/roach88/swarmsync/internal/ir"
)

// relayMessage is one stored blob in a swarm namespace.
type relayMessage struct {
	Hash        string
	Data        []byte
	TimestampMs int64
	From        string
}

// relay is an in-memory stand-in for the storage swarm. Each namespace is
// an append-only list; readers keep a cursor per namespace.
type relay struct {
	swarms  map[string][]relayMessage
	seen    map[string]map[string]bool
	cursors map[string]int
}

func newRelay() *relay {
	return &relay{
		swarms:  map[string][]relayMessage{},
		seen:    map[string]map[string]bool{},
		cursors: map[string]int{},
	}
}

// store appends data to swarm and returns its hash. Re-uploading the same
// bytes is a no-op, as on the real swarm.
func (r *relay) store(swarm, from string, data []byte, tsMs int64) string {
	hash := ir.MessageHash(data)
	if r.seen[swarm] == nil {
		r.seen[swarm] = map[string]bool{}
	}
	if r.seen[swarm][hash] {
		return hash
	}
	r.seen[swarm][hash] = true
	r.swarms[swarm] = append(r.swarms[swarm], relayMessage{
		Hash:        hash,
		Data:        append([]byte(nil), data...),
		TimestampMs: tsMs,
		From:        from,
	})
	return hash
}

// fetch returns what device has not read from swarm yet, skipping its own
// uploads, and advances its cursor.
func (r *relay) fetch(swarm, device string) []relayMessage {
	key := device + "|" + swarm
	all := r.swarms[swarm]
	var out []relayMessage
	for _, m := range all[r.cursors[key]:] {
		if m.From != device {
			out = append(out, m)
		}
	}
	r.cursors[key] = len(all)
	return out
}
