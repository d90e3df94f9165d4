package wal

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ghalamif/QuakeFlow/internal/domain"
	"github.com/ghalamif/QuakeFlow/internal/ports"
)

func payload(v int) *domain.SignedPayload {
	return &domain.SignedPayload{Value: v, MisuratorID: 101, DeviceTimestamp: 1700000000 + int64(v), SignatureHex: "abcd"}
}

func TestFileSpoolAppendIterateAndReplay(t *testing.T) {
	dir := t.TempDir()

	w, err := NewFileSpool(dir)
	if err != nil {
		t.Fatalf("new spool: %v", err)
	}

	id1, err := w.Append(payload(180))
	if err != nil || id1 == 0 {
		t.Fatalf("append 1: %v id=%d", err, id1)
	}
	id2, err := w.Append(payload(250))
	if err != nil || id2 == 0 {
		t.Fatalf("append 2: %v id=%d", err, id2)
	}

	var iterated []int
	if err := w.Iterate(1, func(id ports.SpoolEntryID, p *domain.SignedPayload) error {
		iterated = append(iterated, p.Value)
		return nil
	}); err != nil {
		t.Fatalf("iterate: %v", err)
	}
	if len(iterated) != 2 || iterated[0] != 180 || iterated[1] != 250 {
		t.Fatalf("unexpected replay order %v", iterated)
	}

	if err := w.Commit(id1); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	w2, err := NewFileSpool(dir)
	if err != nil {
		t.Fatalf("reopen spool: %v", err)
	}
	defer w2.Close()

	stats := w2.Stats()
	if stats.LatestAppended != id2 {
		t.Fatalf("expected latest appended %d, got %d", id2, stats.LatestAppended)
	}
	if stats.OldestUncommitted != id2 {
		t.Fatalf("expected oldest uncommitted %d, got %d", id2, stats.OldestUncommitted)
	}

	var pending []int
	if err := w2.Iterate(stats.OldestUncommitted, func(_ ports.SpoolEntryID, p *domain.SignedPayload) error {
		pending = append(pending, p.Value)
		return nil
	}); err != nil {
		t.Fatalf("iterate after reopen: %v", err)
	}
	if len(pending) != 1 || pending[0] != 250 {
		t.Fatalf("expected only the uncommitted payload, got %v", pending)
	}
}

func TestFileSpoolCommitAllEmptiesLog(t *testing.T) {
	dir := t.TempDir()
	w, err := NewFileSpool(dir)
	if err != nil {
		t.Fatalf("new spool: %v", err)
	}
	id, err := w.Append(payload(300))
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := w.Commit(id); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if size := w.Stats().SizeBytes; size != 0 {
		t.Fatalf("expected empty spool after full commit, got %d bytes", size)
	}

	next, err := w.Append(payload(301))
	if err != nil {
		t.Fatalf("append after truncate: %v", err)
	}
	if next != id+1 {
		t.Fatalf("expected ids to keep increasing, got %d after %d", next, id)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	w2, err := NewFileSpool(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer w2.Close()
	if st := w2.Stats(); st.LatestAppended != next || st.OldestUncommitted != next {
		t.Fatalf("unexpected stats after reopen: %+v", st)
	}
}

func TestFileSpoolTruncatesTornTail(t *testing.T) {
	dir := t.TempDir()
	w, err := NewFileSpool(dir)
	if err != nil {
		t.Fatalf("new spool: %v", err)
	}
	if _, err := w.Append(payload(1)); err != nil {
		t.Fatalf("append: %v", err)
	}
	size := w.Stats().SizeBytes
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	f, err := os.OpenFile(filepath.Join(dir, "spool.log"), os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatalf("open for garbage: %v", err)
	}
	if _, err := f.Write([]byte{0xFF, 0xAA}); err != nil {
		t.Fatalf("write garbage: %v", err)
	}
	_ = f.Close()

	w2, err := NewFileSpool(dir)
	if err != nil {
		t.Fatalf("reopen after garbage: %v", err)
	}
	defer w2.Close()
	if got := w2.Stats().SizeBytes; got != size {
		t.Fatalf("expected torn tail truncated to %d bytes, got %d", size, got)
	}
}

func TestFileSpoolRejectsOversizedRecord(t *testing.T) {
	dir := t.TempDir()
	w, err := NewFileSpool(dir)
	if err != nil {
		t.Fatalf("new spool: %v", err)
	}
	defer w.Close()
	if _, err := w.Append(payload(7)); err != nil {
		t.Fatalf("append: %v", err)
	}
	size := w.Stats().SizeBytes

	var hdr [recordHeaderLen]byte
	binary.BigEndian.PutUint64(hdr[0:8], 2)
	binary.BigEndian.PutUint32(hdr[8:12], 1<<30)
	f, err := os.OpenFile(filepath.Join(dir, "spool.log"), os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	if _, err := f.Write(hdr[:]); err != nil {
		t.Fatalf("write header: %v", err)
	}
	_ = f.Close()

	var seen []int
	err = w.Iterate(1, func(_ ports.SpoolEntryID, p *domain.SignedPayload) error {
		seen = append(seen, p.Value)
		return nil
	})
	if !errors.Is(err, errTornRecord) {
		t.Fatalf("expected torn record error, got %v", err)
	}
	if len(seen) != 1 || seen[0] != 7 {
		t.Fatalf("expected the intact entry before the bad one, got %v", seen)
	}

	w2, err := NewFileSpool(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer w2.Close()
	if got := w2.Stats().SizeBytes; got != size {
		t.Fatalf("expected bad record truncated to %d bytes, got %d", size, got)
	}
}
