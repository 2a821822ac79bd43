// Package audit keeps a tamper-evident JSONL record of the actions zamad
// takes on the host: script executions, trash moves and server launches.
package audit

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zama-app/zamad/internal/logging"
)

var log = logging.L("audit")

const (
	EventDaemonStart     = "daemon_start"
	EventDaemonStop      = "daemon_stop"
	EventUpdateCheck     = "update_check"
	EventTrashMove       = "trash_move"
	EventScriptExecution = "script_execution"
	EventServerLaunch    = "server_launch"
	EventModelPull       = "model_pull"
	EventLogRotated      = "log_rotated"
)

// FileName is the audit log's name inside the data directory.
const FileName = "audit.jsonl"

// maxEntrySize bounds one encoded entry when the log is read back.
const maxEntrySize = 1024 * 1024

const genesisHash = "genesis"

// criticalEvents are fsynced after writing.
var criticalEvents = map[string]bool{
	EventTrashMove:       true,
	EventScriptExecution: true,
	EventDaemonStart:     true,
	EventDaemonStop:      true,
}

// ErrChainBroken is returned by Verify when an entry does not link to its
// predecessor or its hash does not match its content.
var ErrChainBroken = errors.New("audit: hash chain broken")

// Entry is a single audit log record.
type Entry struct {
	Timestamp string         `json:"timestamp"`
	EventType string         `json:"eventType"`
	Subject   string         `json:"subject,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	PrevHash  string         `json:"prevHash"`
	EntryHash string         `json:"entryHash"`
}

// Logger appends entries linked by a SHA-256 hash chain. On rotation a
// log_rotated entry opens the new file and links to the last entry of the
// old one. Reopening an existing file continues its chain.
//
// Several zamad processes may share one data directory. Each write holds an
// exclusive lock on audit.jsonl.lock and links to whatever entry is last in
// the file at that moment, so their entries form a single chain.
type Logger struct {
	mu         sync.Mutex
	file       *os.File
	lock       *os.File // nil disables cross-process locking
	filePath   string
	maxSize    int64
	maxBackups int
	written    int64
	prevHash   string
	dropped    atomic.Int64
}

// NewLogger opens {dataDir}/audit.jsonl for appending.
func NewLogger(dataDir string, maxSizeMB, maxBackups int) (*Logger, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("create audit data dir: %w", err)
	}
	if maxSizeMB <= 0 {
		maxSizeMB = 10
	}
	if maxBackups <= 0 {
		maxBackups = 3
	}

	l := &Logger{
		filePath:   filepath.Join(dataDir, FileName),
		maxSize:    int64(maxSizeMB) * 1024 * 1024,
		maxBackups: maxBackups,
		prevHash:   genesisHash,
	}

	lock, err := os.OpenFile(l.filePath+".lock", os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("open audit lock: %w", err)
	}
	l.lock = lock

	if last, err := lastEntryHash(l.filePath); err != nil {
		log.Warn("could not resume audit chain, starting a new one", logging.KeyPath, l.filePath, logging.KeyError, err)
	} else if last != "" {
		l.prevHash = last
	}

	if err := l.openFile(); err != nil {
		lock.Close()
		return nil, err
	}

	log.Debug("audit logger started", logging.KeyPath, l.filePath)
	return l, nil
}

// Path returns the active log file.
func (l *Logger) Path() string {
	if l == nil {
		return ""
	}
	return l.filePath
}

// Log appends one entry. The chain only advances after a successful write,
// so a failed write leaves no gap. Safe to call on a nil receiver.
func (l *Logger) Log(eventType, subject string, details map[string]any) {
	if l == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.lock != nil {
		if err := lockFile(l.lock); err != nil {
			log.Error("failed to lock audit log", logging.KeyError, err, "eventType", eventType)
			l.dropped.Add(1)
			return
		}
		defer func() {
			if err := unlockFile(l.lock); err != nil {
				log.Warn("failed to unlock audit log", logging.KeyError, err)
			}
		}()
		if err := l.catchUp(); err != nil {
			log.Error("failed to resync audit log", logging.KeyError, err, "eventType", eventType)
			l.dropped.Add(1)
			return
		}
	}

	entry := Entry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		EventType: eventType,
		Subject:   subject,
		Details:   details,
		PrevHash:  l.prevHash,
	}

	data, err := sealEntry(&entry)
	if err != nil {
		log.Error("failed to encode audit entry", logging.KeyError, err, "eventType", eventType)
		l.dropped.Add(1)
		return
	}

	if l.written > 0 && l.written+int64(len(data)) > l.maxSize {
		if err := l.rotate(); err != nil {
			log.Error("audit log rotation failed", logging.KeyError, err)
			l.dropped.Add(1)
			return
		}
		// The sentinel moved the chain forward.
		entry.PrevHash = l.prevHash
		if data, err = sealEntry(&entry); err != nil {
			l.dropped.Add(1)
			return
		}
	}

	n, err := l.file.Write(data)
	if err != nil {
		log.Error("failed to write audit entry", logging.KeyError, err, "eventType", eventType)
		l.dropped.Add(1)
		return
	}
	l.written += int64(n)
	l.prevHash = entry.EntryHash

	if criticalEvents[eventType] {
		if err := l.file.Sync(); err != nil {
			log.Error("failed to fsync audit entry", logging.KeyError, err, "eventType", eventType)
		}
	}
}

// Close closes the audit log file. Safe to call on a nil receiver.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.lock != nil {
		l.lock.Close()
		l.lock = nil
	}
	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

// catchUp picks up writes made by other processes since this logger last
// wrote: it reopens the file if it was rotated away and links the chain to
// the entry now at its end. Callers hold the file lock.
func (l *Logger) catchUp() error {
	if l.file == nil {
		return errors.New("audit log closed")
	}

	current, err := os.Stat(l.filePath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		l.file.Close()
		if err := l.openFile(); err != nil {
			return err
		}
	case err != nil:
		return fmt.Errorf("stat audit log: %w", err)
	default:
		open, err := l.file.Stat()
		if err != nil {
			return fmt.Errorf("stat audit log: %w", err)
		}
		if !os.SameFile(current, open) {
			l.file.Close()
			if err := l.openFile(); err != nil {
				return err
			}
		} else {
			l.written = open.Size()
		}
	}

	last, err := lastEntryHash(l.filePath)
	if err != nil {
		log.Warn("could not read last audit entry, linking to own last entry", logging.KeyPath, l.filePath, logging.KeyError, err)
		return nil
	}
	if last != "" {
		l.prevHash = last
	}
	return nil
}

// DroppedCount returns the number of entries that failed to write, or -1 on
// a nil logger.
func (l *Logger) DroppedCount() int64 {
	if l == nil {
		return -1
	}
	return l.dropped.Load()
}

// sealEntry fills in EntryHash and returns the JSONL encoding.
func sealEntry(entry *Entry) ([]byte, error) {
	h, err := computeHash(*entry)
	if err != nil {
		return nil, err
	}
	entry.EntryHash = h

	data, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("marshal entry: %w", err)
	}
	return append(data, '\n'), nil
}

// computeHash length-prefixes every field so no two field combinations
// serialize to the same input.
func computeHash(entry Entry) (string, error) {
	h := sha256.New()
	for _, field := range []string{entry.Timestamp, entry.EventType, entry.Subject, entry.PrevHash} {
		fmt.Fprintf(h, "%d:%s", len(field), field)
	}
	if entry.Details != nil {
		detailBytes, err := json.Marshal(entry.Details)
		if err != nil {
			return "", fmt.Errorf("marshal details for hash: %w", err)
		}
		fmt.Fprintf(h, "%d:", len(detailBytes))
		h.Write(detailBytes)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Verify re-hashes every entry of the file at path and checks each links to
// the one before it. The first entry may link to anything (a previous file
// or genesis). It returns the number of entries checked.
func Verify(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxEntrySize+1)

	count := 0
	prev := ""
	for sc.Scan() {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return count, fmt.Errorf("%w: entry %d: %w", ErrChainBroken, count, err)
		}
		want, err := computeHash(e)
		if err != nil {
			return count, fmt.Errorf("%w: entry %d: %w", ErrChainBroken, count, err)
		}
		if want != e.EntryHash {
			return count, fmt.Errorf("%w: entry %d hash mismatch", ErrChainBroken, count)
		}
		if count > 0 && e.PrevHash != prev {
			return count, fmt.Errorf("%w: entry %d does not link to entry %d", ErrChainBroken, count, count-1)
		}
		prev = e.EntryHash
		count++
	}
	return count, sc.Err()
}

// lastEntryHash returns the hash of the final entry in path, or "" when the
// file does not exist or is empty. Only the tail of the file is read.
func lastEntryHash(path string) (string, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", err
	}
	size := info.Size()
	if size == 0 {
		return "", nil
	}

	n := min(size, int64(maxEntrySize)+2)
	buf := make([]byte, n)
	if _, err := f.ReadAt(buf, size-n); err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read audit tail: %w", err)
	}

	buf = bytes.TrimRight(buf, "\n")
	if len(buf) == 0 {
		return "", nil
	}
	if i := bytes.LastIndexByte(buf, '\n'); i >= 0 {
		buf = buf[i+1:]
	} else if n < size {
		return "", fmt.Errorf("last audit entry exceeds %d bytes", maxEntrySize)
	}

	var e Entry
	if err := json.Unmarshal(buf, &e); err != nil {
		return "", fmt.Errorf("decode last entry: %w", err)
	}
	return e.EntryHash, nil
}

func (l *Logger) openFile() error {
	f, err := os.OpenFile(l.filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat audit log: %w", err)
	}

	l.file = f
	l.written = info.Size()
	return nil
}

func (l *Logger) rotate() error {
	if l.file != nil {
		l.file.Close()
	}

	for i := l.maxBackups; i >= 2; i-- {
		src := l.backupName(i - 1)
		dst := l.backupName(i)
		if i == l.maxBackups {
			if err := os.Remove(dst); err != nil && !os.IsNotExist(err) {
				log.Warn("failed to remove oldest audit backup", logging.KeyPath, dst, logging.KeyError, err)
			}
		}
		if err := os.Rename(src, dst); err != nil && !os.IsNotExist(err) {
			log.Warn("failed to shift audit backup", "src", src, "dst", dst, logging.KeyError, err)
		}
	}

	if err := os.Rename(l.filePath, l.backupName(1)); err != nil && !os.IsNotExist(err) {
		log.Warn("failed to rename current audit log", logging.KeyError, err)
	}

	if err := l.openFile(); err != nil {
		return err
	}

	sentinel := Entry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		EventType: EventLogRotated,
		PrevHash:  l.prevHash,
		Details: map[string]any{
			"previousFile": l.backupName(1),
		},
	}
	data, err := sealEntry(&sentinel)
	if err != nil {
		log.Error("rotation sentinel encode failed, hash chain broken", logging.KeyError, err)
		l.dropped.Add(1)
		l.prevHash = "chain-broken"
		return nil
	}

	n, err := l.file.Write(data)
	if err != nil {
		log.Error("rotation sentinel write failed, hash chain broken", logging.KeyError, err)
		l.dropped.Add(1)
		l.prevHash = "chain-broken"
		return nil
	}
	l.written += int64(n)
	l.prevHash = sentinel.EntryHash
	return nil
}

func (l *Logger) backupName(index int) string {
	if index == 0 {
		return l.filePath
	}
	return fmt.Sprintf("%s.%d", l.filePath, index)
}
