// Package wal stores signed payloads whose delivery failed so they can be
// replayed once the uplink is ready again.
package wal

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/ghalamif/QuakeFlow/internal/domain"
	"github.com/ghalamif/QuakeFlow/internal/ports"
)

const (
	recordHeaderLen = 12
	// a signed report is a few hundred bytes of JSON
	maxRecordLen = 64 << 10
)

var errTornRecord = errors.New("torn spool record")

type FileSpool struct {
	mu        sync.Mutex
	path      string
	metaPath  string
	file      *os.File
	writer    *bufio.Writer
	nextID    ports.SpoolEntryID
	committed ports.SpoolEntryID
	sizeBytes int64
}

func NewFileSpool(dir string) (*FileSpool, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, "spool.log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}

	sp := &FileSpool{
		path:     path,
		metaPath: filepath.Join(dir, "spool.meta"),
		file:     f,
		writer:   bufio.NewWriterSize(f, 64<<10),
	}
	if err := sp.bootstrap(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return sp, nil
}

func (w *FileSpool) bootstrap() error {
	if err := w.scanExisting(); err != nil {
		return err
	}
	if err := w.loadCommitted(); err != nil {
		return err
	}
	if w.nextID < w.committed {
		w.nextID = w.committed
	}
	_, err := w.file.Seek(0, io.SeekEnd)
	return err
}

// scanExisting walks the log, truncating a torn tail left by a reset mid-write.
func (w *FileSpool) scanExisting() error {
	stat, err := os.Stat(w.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if err != nil || stat.Size() == 0 {
		return nil
	}

	rf, err := os.Open(w.path)
	if err != nil {
		return err
	}
	defer rf.Close()

	r := bufio.NewReader(rf)
	var (
		end    int64
		lastID ports.SpoolEntryID
	)
	for {
		id, body, err := readRecord(r)
		if errors.Is(err, io.EOF) || errors.Is(err, errTornRecord) {
			break
		}
		if err != nil {
			return fmt.Errorf("spool scan: %w", err)
		}
		end += recordHeaderLen + int64(len(body))
		lastID = id
	}

	if end < stat.Size() {
		if err := w.file.Truncate(end); err != nil {
			return err
		}
	}
	w.sizeBytes = end
	w.nextID = lastID
	return nil
}

func (w *FileSpool) loadCommitted() error {
	data, err := os.ReadFile(w.metaPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	val := strings.TrimSpace(string(data))
	if val == "" {
		return nil
	}
	u, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return fmt.Errorf("spool meta parse: %w", err)
	}
	w.committed = ports.SpoolEntryID(u)
	return nil
}

func (w *FileSpool) Append(p *domain.SignedPayload) (ports.SpoolEntryID, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	id := w.nextID + 1

	b, err := json.Marshal(p)
	if err != nil {
		return 0, err
	}

	// entry format: [8 bytes id][4 bytes len][len bytes json]
	var hdr [recordHeaderLen]byte
	binary.BigEndian.PutUint64(hdr[0:8], uint64(id))
	binary.BigEndian.PutUint32(hdr[8:12], uint32(len(b)))

	if _, err := w.writer.Write(hdr[:]); err != nil {
		return 0, err
	}
	if _, err := w.writer.Write(b); err != nil {
		return 0, err
	}
	// spooled reports are rare; make each one durable before acknowledging
	if err := w.writer.Flush(); err != nil {
		return 0, err
	}
	if err := w.file.Sync(); err != nil {
		return 0, err
	}

	w.nextID = id
	w.sizeBytes += int64(len(b) + len(hdr))
	return id, nil
}

func (w *FileSpool) Iterate(from ports.SpoolEntryID, fn func(id ports.SpoolEntryID, p *domain.SignedPayload) error) error {
	w.mu.Lock()
	if err := w.writer.Flush(); err != nil {
		w.mu.Unlock()
		return err
	}
	w.mu.Unlock()

	f, err := os.Open(w.path)
	if err != nil {
		return err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	for {
		id, body, err := readRecord(r)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("corrupt spool: %w", err)
		}
		if id < from {
			continue
		}

		var p domain.SignedPayload
		if err := json.Unmarshal(body, &p); err != nil {
			return fmt.Errorf("corrupt spool entry %d: %w", id, err)
		}
		if err := fn(id, &p); err != nil {
			return err
		}
	}
}

// readRecord decodes one [8 bytes id][4 bytes len][len bytes json] record.
// It returns io.EOF at a clean end of log and errTornRecord when the record
// is cut short or its length is implausible.
func readRecord(r *bufio.Reader) (ports.SpoolEntryID, []byte, error) {
	var hdr [recordHeaderLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return 0, nil, errTornRecord
		}
		return 0, nil, err
	}
	id := ports.SpoolEntryID(binary.BigEndian.Uint64(hdr[0:8]))
	n := binary.BigEndian.Uint32(hdr[8:12])
	if n > maxRecordLen {
		return 0, nil, errTornRecord
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return 0, nil, errTornRecord
		}
		return 0, nil, err
	}
	return id, body, nil
}

// Commit marks everything up to upto as delivered. Once nothing is pending
// the log file is emptied.
func (w *FileSpool) Commit(upto ports.SpoolEntryID) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if upto > w.committed {
		w.committed = upto
	}
	if err := w.persistMetaLocked(); err != nil {
		return err
	}
	if w.committed >= w.nextID && w.sizeBytes > 0 {
		if err := w.writer.Flush(); err != nil {
			return err
		}
		if err := w.file.Truncate(0); err != nil {
			return err
		}
		w.sizeBytes = 0
	}
	return nil
}

func (w *FileSpool) Stats() ports.SpoolStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return ports.SpoolStats{
		OldestUncommitted: w.committed + 1,
		LatestAppended:    w.nextID,
		SizeBytes:         w.sizeBytes,
	}
}

func (w *FileSpool) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.writer.Flush(); err != nil {
		_ = w.file.Close()
		return err
	}
	return w.file.Close()
}

func (w *FileSpool) persistMetaLocked() error {
	data := []byte(fmt.Sprintf("%d\n", w.committed))
	return os.WriteFile(w.metaPath, data, 0o644)
}

var _ ports.Spool = (*FileSpool)(nil)
