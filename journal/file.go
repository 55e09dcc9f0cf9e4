package journal

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/devrig/snapkeep/snapshot"
)

const sessionExt = ".jsonl"

// fileJournal writes one JSON-lines file per session into a directory.
// Every entry is a single write so a crash leaves at most a truncated last line,
// which is ignored when the session is read back.
type fileJournal struct {
	fs  afero.Fs
	dir string
	mu  sync.Mutex
	now func() time.Time
}

// NewFileJournal stores sessions in dir, creating it if needed.
func NewFileJournal(fs afero.Fs, dir string) (Journal, error) {
	if err := fs.MkdirAll(dir, 0750); err != nil {
		return nil, errors.Wrapf(err, "creating journal directory %s", dir)
	}
	return &fileJournal{fs: fs, dir: dir, now: time.Now}, nil
}

func (j *fileJournal) sessionFile(id string) string {
	return filepath.Join(j.dir, id+sessionExt)
}

func (j *fileJournal) StartSession(id string, subvolume string, snapshotID snapshot.ID) error {
	if id == "" || strings.ContainsAny(id, `/\`) {
		return NewInvalidEntryError("invalid session id %q", id)
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	e := Entry{Session: id, Type: StartSession, Subvolume: subvolume, SnapshotID: snapshotID, At: j.now()}
	line, err := encodeEntry(e)
	if err != nil {
		return err
	}
	f, err := j.fs.OpenFile(j.sessionFile(id), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0640)
	if err != nil {
		if os.IsExist(err) {
			return NewInvalidEntryError("session %s already started", id)
		}
		return errors.Wrapf(err, "creating session %s", id)
	}
	return errors.Wrapf(writeSynced(f, line), "writing session %s", id)
}

func (j *fileJournal) Append(e Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	entries, torn, err := j.readSession(e.Session)
	if err != nil {
		return err
	}
	if entries == nil {
		return NewInvalidEntryError("no restore session %q", e.Session)
	}
	state, err := Rebuild(entries)
	if err != nil {
		return errors.Wrapf(err, "session %s is corrupt", e.Session)
	}
	if e.At.IsZero() {
		e.At = j.now()
	}
	if err := state.apply(e); err != nil {
		return err
	}

	line, err := encodeEntry(e)
	if err != nil {
		return err
	}
	if torn {
		line = append([]byte{'\n'}, line...)
	}
	f, err := j.fs.OpenFile(j.sessionFile(e.Session), os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		return errors.Wrapf(err, "opening session %s", e.Session)
	}
	return errors.Wrapf(writeSynced(f, line), "appending to session %s", e.Session)
}

// writeSynced writes line to f and flushes it to disk before closing f. An entry
// only counts as journaled once this returns nil.
func writeSynced(f afero.File, line []byte) error {
	if _, err := f.Write(line); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (j *fileJournal) Entries(id string) ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.read(id)
}

func (j *fileJournal) read(id string) ([]Entry, error) {
	entries, _, err := j.readSession(id)
	return entries, err
}

// readSession returns nil entries if the session does not exist. torn is set
// when the file does not end with a complete line.
func (j *fileJournal) readSession(id string) (entries []Entry, torn bool, err error) {
	data, err := afero.ReadFile(j.fs, j.sessionFile(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, errors.Wrapf(err, "reading session %s", id)
	}

	entries = []Entry{}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			log.Warnf("Ignoring unreadable entry in session %s: %v", id, err)
			continue
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, false, errors.Wrapf(err, "reading session %s", id)
	}
	torn = len(data) > 0 && data[len(data)-1] != '\n'
	return entries, torn, nil
}

func (j *fileJournal) Sessions() ([]string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	infos, err := afero.ReadDir(j.fs, j.dir)
	if err != nil {
		return nil, errors.Wrapf(err, "listing %s", j.dir)
	}
	type started struct {
		id string
		at time.Time
	}
	var sessions []started
	for _, fi := range infos {
		if fi.IsDir() || !strings.HasSuffix(fi.Name(), sessionExt) {
			continue
		}
		id := strings.TrimSuffix(fi.Name(), sessionExt)
		entries, err := j.read(id)
		if err != nil {
			return nil, err
		}
		if len(entries) == 0 {
			continue
		}
		sessions = append(sessions, started{id, entries[0].At})
	}
	sort.Slice(sessions, func(a, b int) bool {
		if sessions[a].at.Equal(sessions[b].at) {
			return sessions[a].id < sessions[b].id
		}
		return sessions[a].at.Before(sessions[b].at)
	})
	ids := make([]string, len(sessions))
	for i, s := range sessions {
		ids[i] = s.id
	}
	return ids, nil
}

func encodeEntry(e Entry) ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}
