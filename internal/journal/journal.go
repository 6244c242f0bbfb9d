// Package journal records user mutations of the notification list in an
// append-only, tamper-evident file.
//
// Each line is one JSON record:
//
//	{"seq":1,"ts":"…","action":"pin","ids":["…"],"prev_hash":"000…0","hash":"…"}
//
// where hash is the SHA-256 of the record encoded without its hash field, and
// prev_hash links it to the record before it. The first record links to
// GenesisHash. Opening an existing journal replays and verifies the chain.
package journal

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// GenesisHash is the prev_hash of the first record.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// maxLine bounds a single record while scanning.
const maxLine = 1 << 20

// ErrChainBroken is wrapped by the errors Open and Verify return when a
// record does not match its hash or its predecessor.
var ErrChainBroken = errors.New("journal: hash chain broken")

// Action names a recorded mutation.
type Action string

const (
	ActionRead        Action = "read"
	ActionPin         Action = "pin"
	ActionDismiss     Action = "dismiss"
	ActionReadAll     Action = "read_all"
	ActionClearRead   Action = "clear_read"
	ActionPrune       Action = "prune"
	ActionPreferences Action = "preferences"
	ActionMuteAdd     Action = "mute_add"
	ActionMuteRemove  Action = "mute_remove"
)

// Mutation is what callers record.
type Mutation struct {
	Action Action `json:"action"`
	// IDs are the affected notification or mute-rule ids.
	IDs []string `json:"ids,omitempty"`
	// Detail carries action-specific values, such as the new pin state or
	// the changed preference keys.
	Detail map[string]any `json:"detail,omitempty"`
}

// Record is one verified journal line.
type Record struct {
	Seq       int64     `json:"seq"`
	Timestamp time.Time `json:"ts"`
	Mutation
	PrevHash string `json:"prev_hash"`
	Hash     string `json:"hash,omitempty"`
}

// digest hashes r with its Hash field cleared.
func (r Record) digest() (string, error) {
	r.Hash = ""
	raw, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("journal: marshal record %d: %w", r.Seq, err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// Journal appends records to a file. It is safe for concurrent use.
type Journal struct {
	mu       sync.Mutex
	file     *os.File
	seq      int64
	prevHash string
	now      func() time.Time
}

// Open opens or creates the journal at path, verifying any existing records
// so that new ones continue the chain.
func Open(path string) (*Journal, error) {
	seq, prev := int64(0), GenesisHash

	if f, err := os.Open(path); err == nil {
		err = replay(f, func(r Record) {
			seq, prev = r.Seq, r.Hash
		})
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("journal: open %q: %w", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("journal: open %q: %w", path, err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("journal: open %q for append: %w", path, err)
	}
	return &Journal{file: f, seq: seq, prevHash: prev, now: time.Now}, nil
}

// Record appends m and returns the stored record.
func (j *Journal) Record(m Mutation) (Record, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	r := Record{
		Seq:       j.seq + 1,
		Timestamp: j.now().UTC(),
		Mutation:  m,
		PrevHash:  j.prevHash,
	}
	hash, err := r.digest()
	if err != nil {
		return Record{}, err
	}
	r.Hash = hash

	line, err := json.Marshal(r)
	if err != nil {
		return Record{}, fmt.Errorf("journal: marshal record %d: %w", r.Seq, err)
	}
	if _, err := j.file.Write(append(line, '\n')); err != nil {
		return Record{}, fmt.Errorf("journal: write record %d: %w", r.Seq, err)
	}

	j.seq = r.Seq
	j.prevHash = r.Hash
	return r, nil
}

// Seq returns the sequence number of the last record.
func (j *Journal) Seq() int64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.seq
}

// Close syncs and closes the file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	syncErr := j.file.Sync()
	if err := j.file.Close(); err != nil {
		return fmt.Errorf("journal: close: %w", err)
	}
	if syncErr != nil {
		return fmt.Errorf("journal: sync: %w", syncErr)
	}
	return nil
}

// Verify reads the whole journal at path and returns its records in order,
// or the first chain error.
func Verify(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("journal: verify %q: %w", path, err)
	}
	defer f.Close()

	var out []Record
	if err := replay(f, func(r Record) { out = append(out, r) }); err != nil {
		return nil, fmt.Errorf("journal: verify %q: %w", path, err)
	}
	return out, nil
}

// replay scans records from r, checking each against its hash and its
// predecessor, and calls fn for every valid record.
func replay(r io.Reader, fn func(Record)) error {
	prev := GenesisHash
	var seq int64

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			return fmt.Errorf("malformed record after seq %d: %w", seq, err)
		}
		if rec.PrevHash != prev {
			return fmt.Errorf("%w: seq %d links to %q, want %q", ErrChainBroken, rec.Seq, rec.PrevHash, prev)
		}
		if rec.Seq != seq+1 {
			return fmt.Errorf("%w: seq %d follows %d", ErrChainBroken, rec.Seq, seq)
		}
		want, err := rec.digest()
		if err != nil {
			return err
		}
		if want != rec.Hash {
			return fmt.Errorf("%w: seq %d hash %q, computed %q", ErrChainBroken, rec.Seq, rec.Hash, want)
		}
		fn(rec)
		prev, seq = rec.Hash, rec.Seq
	}
	return scanner.Err()
}
