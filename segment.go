package zab

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Segment file layout: a sequence of records
//
//	length   uint32  (big-endian; counts epoch, counter, type and body)
//	epoch    uint32
//	counter  uint64
//	type     uint32
//	body     []byte  (length - 16 bytes)
//	crc32    uint32  (over epoch|counter|type|body)
//
// Segment files live under dir/log and are named "<epoch>-<counter>.seg"
// after a zxid that sorts no later than their first record: Compact uses
// the first kept zxid, Truncate uses ZxidNull, and reopening a log starts a
// new segment named after the previous tail.

const segmentDirName = "log"

type segmentFile struct {
	path       string
	firstEpoch uint32
	firstCtr   uint64
}

func segmentDir(dir string) string {
	return filepath.Join(dir, segmentDirName)
}

func loadSegments(dir string) ([]*segmentFile, error) {
	sdir := segmentDir(dir)
	if err := os.MkdirAll(sdir, 0o755); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(sdir)
	if err != nil {
		return nil, err
	}
	var segs []*segmentFile
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".seg") {
			continue
		}
		var epoch uint32
		var ctr uint64
		name := strings.TrimSuffix(e.Name(), ".seg")
		if _, err := fmt.Sscanf(name, "%d-%d", &epoch, &ctr); err != nil {
			continue
		}
		segs = append(segs, &segmentFile{path: filepath.Join(sdir, e.Name()), firstEpoch: epoch, firstCtr: ctr})
	}
	sort.Slice(segs, func(i, j int) bool {
		if segs[i].firstEpoch != segs[j].firstEpoch {
			return segs[i].firstEpoch < segs[j].firstEpoch
		}
		return segs[i].firstCtr < segs[j].firstCtr
	})
	return segs, nil
}

func (s *segmentFile) readAll() ([]*Transaction, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r := bufio.NewReader(f)
	var out []*Transaction
	for {
		txn, err := readRecord(r)
		if err == io.EOF {
			break
		}
		if err == io.ErrUnexpectedEOF {
			// A torn write at the tail of the active segment (crash mid
			// append); stop here rather than fail recovery.
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, txn)
	}
	return out, nil
}

func readRecord(r *bufio.Reader) (*Transaction, error) {
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return nil, err
	}
	if length < 16 {
		return nil, fmt.Errorf("zab: corrupt segment record length %d", length)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, io.ErrUnexpectedEOF
	}
	var crc uint32
	if err := binary.Read(r, binary.BigEndian, &crc); err != nil {
		return nil, io.ErrUnexpectedEOF
	}
	if crc32.ChecksumIEEE(payload) != crc {
		return nil, fmt.Errorf("zab: checksum mismatch in segment record")
	}
	epoch := binary.BigEndian.Uint32(payload[0:4])
	counter := binary.BigEndian.Uint64(payload[4:12])
	typ := binary.BigEndian.Uint32(payload[12:16])
	body := append([]byte(nil), payload[16:]...)
	return &Transaction{Zxid: Zxid{Epoch: epoch, Counter: counter}, Type: typ, Body: body}, nil
}

// segmentWriter owns the single active (growing) segment file. On Truncate
// the fileLog closes the active writer, discards all segment files, and
// opens a fresh one starting at ZxidNull, rewriting the surviving entries.
type segmentWriter struct {
	f *os.File
}

func openActiveSegment(dir string, first Zxid) (*segmentWriter, error) {
	sdir := segmentDir(dir)
	if err := os.MkdirAll(sdir, 0o755); err != nil {
		return nil, err
	}
	name := fmt.Sprintf("%020d-%020d.seg", first.Epoch, first.Counter)
	f, err := os.OpenFile(filepath.Join(sdir, name), os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &segmentWriter{f: f}, nil
}

func (w *segmentWriter) write(txn *Transaction) error {
	payload := make([]byte, 16+len(txn.Body))
	binary.BigEndian.PutUint32(payload[0:4], txn.Zxid.Epoch)
	binary.BigEndian.PutUint64(payload[4:12], txn.Zxid.Counter)
	binary.BigEndian.PutUint32(payload[12:16], txn.Type)
	copy(payload[16:], txn.Body)
	crc := crc32.ChecksumIEEE(payload)

	buf := make([]byte, 4+len(payload)+4)
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(payload)))
	copy(buf[4:], payload)
	binary.BigEndian.PutUint32(buf[4+len(payload):], crc)

	_, err := w.f.Write(buf)
	return err
}

func (w *segmentWriter) sync() error {
	return w.f.Sync()
}

func (w *segmentWriter) close() error {
	if w.f == nil {
		return nil
	}
	return w.f.Close()
}

// resetSegments discards every segment file so a Truncate can rewrite a
// compact replacement. The caller must already hold the log's write lock.
func resetSegments(dir string) error {
	sdir := segmentDir(dir)
	entries, err := os.ReadDir(sdir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".seg") {
			if err := os.Remove(filepath.Join(sdir, e.Name())); err != nil {
				return err
			}
		}
	}
	return fsyncDir(sdir)
}

// fsyncDir fsyncs a directory entry after a rename/remove so the rename
// itself survives a crash, not just the file it points to.
func fsyncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
