package zab

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Log is the append-only, zxid-indexed transaction log. It is finite,
// restartable-iterable, and append-only between truncates.
type Log interface {
	// Append requires txn.Zxid > LatestZxid(); it may buffer the write.
	Append(txn *Transaction) error
	// Truncate removes every entry with Zxid > z; z must be ZxidNull or an
	// entry that exists in the log.
	Truncate(z Zxid) error
	// LatestZxid returns the zxid of the last entry, or ZxidNull if empty.
	LatestZxid() Zxid
	// Iterate yields entries in order starting at the first zxid >= from.
	// The returned iterator is restartable: calling Iterate again replays
	// from the log's current state.
	Iterate(from Zxid) LogIterator
	// Entry looks up a single entry by zxid, returning nil if absent.
	Entry(z Zxid) *Transaction
	// Compact discards every entry with Zxid <= through. A peer that later
	// needs history at or before through can no longer be brought up to
	// date with a diff or truncate and must be sent a full snapshot.
	Compact(through Zxid) error
	// Floor returns the newest zxid discarded by Compact (every retained
	// entry is greater than it), or ZxidNull if the log retains its full
	// history from genesis.
	Floor() Zxid
	// Sync guarantees every prior Append is durable before returning.
	Sync() error
	// Close releases the log's file handles.
	Close() error
}

// LogIterator is a restartable, forward-only cursor over a Log snapshot.
type LogIterator interface {
	// Next advances the cursor and reports whether a value is available.
	Next() bool
	// Transaction returns the entry at the current cursor position. Only
	// valid after a call to Next returned true.
	Transaction() *Transaction
}

// memLogIterator iterates over a fixed, already-sliced snapshot of entries;
// fileLog takes its internal lock once per Iterate call and then lets the
// caller range freely over an immutable copy, so a restarted iterator never
// holds the log lock during iteration.
type memLogIterator struct {
	entries []*Transaction
	pos     int
}

func (it *memLogIterator) Next() bool {
	it.pos++
	return it.pos < len(it.entries)
}

func (it *memLogIterator) Transaction() *Transaction {
	if it.pos < 0 || it.pos >= len(it.entries) {
		return nil
	}
	return it.entries[it.pos]
}

// fileLog is a segment-backed Log: a sequence of segment files named by a
// zxid that sorts no later than their first record, each a length-prefixed
// record stream with a trailing checksum (see segment.go). fileLog keeps
// the currently active segment plus an in-memory copy of every entry and an
// index of (zxid -> position in entries) so Entry and Truncate don't need
// to rescan the directory.
type fileLog struct {
	mu      sync.RWMutex
	dir     string
	entries []*Transaction // append-only view of everything on disk, in order
	index   map[Zxid]int   // zxid -> position in entries
	active  *segmentWriter
	segs    []*segmentFile
	floor   Zxid // newest zxid discarded by Compact; ZxidNull means genesis
}

const compactFloorFile = "CompactFloor"

// newFileLog opens (or creates) a log rooted at dir/log, replaying every
// segment file found there.
func newFileLog(dir string) (*fileLog, error) {
	l := &fileLog{dir: dir, index: map[Zxid]int{}}
	segs, err := loadSegments(dir)
	if err != nil {
		return nil, &CorruptionError{Path: dir, Err: err}
	}
	l.segs = segs
	for _, seg := range segs {
		entries, err := seg.readAll()
		if err != nil {
			return nil, &CorruptionError{Path: seg.path, Err: err}
		}
		for _, e := range entries {
			l.index[e.Zxid] = len(l.entries)
			l.entries = append(l.entries, e)
		}
	}
	floor, err := readZxidFile(compactFloorPath(dir))
	if err != nil {
		return nil, &CorruptionError{Path: dir, Err: err}
	}
	l.floor = floor
	w, err := openActiveSegment(dir, l.latestZxidLocked())
	if err != nil {
		return nil, &CorruptionError{Path: dir, Err: err}
	}
	l.active = w
	return l, nil
}

func compactFloorPath(dir string) string {
	return filepath.Join(dir, compactFloorFile)
}

func readZxidFile(path string) (Zxid, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return ZxidNull, nil
	}
	if err != nil {
		return ZxidNull, err
	}
	if len(data) != 12 {
		return ZxidNull, os.ErrInvalid
	}
	return Zxid{Epoch: binary.BigEndian.Uint32(data[0:4]), Counter: binary.BigEndian.Uint64(data[4:12])}, nil
}

func writeZxidFile(dir, name string, z Zxid) error {
	buf := make([]byte, 12)
	binary.BigEndian.PutUint32(buf[0:4], z.Epoch)
	binary.BigEndian.PutUint64(buf[4:12], z.Counter)
	return atomicWriteFile(dir, name, buf)
}

func (l *fileLog) latestZxidLocked() Zxid {
	if len(l.entries) == 0 {
		return ZxidNull
	}
	return l.entries[len(l.entries)-1].Zxid
}

func (l *fileLog) LatestZxid() Zxid {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.latestZxidLocked()
}

func (l *fileLog) Append(txn *Transaction) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	latest := l.latestZxidLocked()
	if !txn.Zxid.Greater(latest) {
		return fmt.Errorf("zab: append zxid %s does not exceed latest %s", txn.Zxid, latest)
	}
	if err := l.active.write(txn); err != nil {
		return err
	}
	l.index[txn.Zxid] = len(l.entries)
	l.entries = append(l.entries, txn.Copy())
	return nil
}

func (l *fileLog) Truncate(z Zxid) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if z.IsNull() {
		l.entries = nil
		l.index = map[Zxid]int{}
		if !l.floor.IsNull() {
			if err := writeZxidFile(l.dir, compactFloorFile, ZxidNull); err != nil {
				return err
			}
			l.floor = ZxidNull
		}
	} else {
		pos, ok := l.index[z]
		if !ok {
			return fmt.Errorf("zab: truncate target %s not present in log", z)
		}
		for _, e := range l.entries[pos+1:] {
			delete(l.index, e.Zxid)
		}
		l.entries = l.entries[:pos+1]
	}
	// Roll a fresh active segment so the on-disk tail matches the in-memory
	// truncation point; the old segment files are superseded, not edited.
	if err := l.active.close(); err != nil {
		return err
	}
	if err := resetSegments(l.dir); err != nil {
		return err
	}
	w, err := openActiveSegment(l.dir, ZxidNull)
	if err != nil {
		return err
	}
	for _, e := range l.entries {
		if err := w.write(e); err != nil {
			return err
		}
	}
	l.active = w
	return nil
}

// Compact discards every entry with Zxid <= through and records through as
// the new retention floor, the same write-tmp-and-replace rewrite Truncate
// uses to keep the on-disk tail consistent with the in-memory view.
func (l *fileLog) Compact(through Zxid) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if through.IsNull() || !through.Greater(l.floor) {
		return nil
	}
	keepFrom := len(l.entries)
	for i, e := range l.entries {
		if e.Zxid.Greater(through) {
			keepFrom = i
			break
		}
	}
	if keepFrom == 0 {
		l.floor = through
		return writeZxidFile(l.dir, compactFloorFile, through)
	}

	kept := append([]*Transaction(nil), l.entries[keepFrom:]...)
	if err := l.active.close(); err != nil {
		return err
	}
	if err := resetSegments(l.dir); err != nil {
		return err
	}
	first := ZxidNull
	if len(kept) > 0 {
		first = kept[0].Zxid
	}
	w, err := openActiveSegment(l.dir, first)
	if err != nil {
		return err
	}
	newIndex := make(map[Zxid]int, len(kept))
	for i, e := range kept {
		if err := w.write(e); err != nil {
			return err
		}
		newIndex[e.Zxid] = i
	}
	if err := writeZxidFile(l.dir, compactFloorFile, through); err != nil {
		return err
	}
	l.entries = kept
	l.index = newIndex
	l.active = w
	l.floor = through
	return nil
}

// Floor reports the oldest zxid the log still guarantees to retain.
func (l *fileLog) Floor() Zxid {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.floor
}

func (l *fileLog) Iterate(from Zxid) LogIterator {
	l.mu.RLock()
	defer l.mu.RUnlock()
	start := 0
	for i, e := range l.entries {
		if e.Zxid.GreaterOrEqual(from) {
			start = i
			break
		}
		start = i + 1
	}
	snapshot := append([]*Transaction(nil), l.entries[start:]...)
	return &memLogIterator{entries: snapshot, pos: -1}
}

func (l *fileLog) Entry(z Zxid) *Transaction {
	l.mu.RLock()
	defer l.mu.RUnlock()
	pos, ok := l.index[z]
	if !ok {
		return nil
	}
	return l.entries[pos].Copy()
}

func (l *fileLog) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active.sync()
}

func (l *fileLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active.close()
}
