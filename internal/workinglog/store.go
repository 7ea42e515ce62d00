package workinglog

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"github.com/gitattrib/gitai/internal/giterr"
	"github.com/gitattrib/gitai/internal/jsonutil"
	"github.com/gitattrib/gitai/internal/prompt"
	"github.com/gitattrib/gitai/internal/redact"
)

// initialFileName is the on-disk name of the INITIAL seed document.
const initialFileName = "INITIAL"

// checkpointsFileName is the append-only journal of checkpoints.
const checkpointsFileName = "checkpoints.jsonl"

// blobsDirName is the content-addressed blob cache directory.
const blobsDirName = "blobs"

// Store is the on-disk realization of a single base commit's working
// log, rooted at <stateDir>/working_logs/<sha>.
type Store struct {
	dir string
}

// Open returns a Store rooted at dir. The directory is created lazily
// by the first write.
func Open(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the working log's root directory.
func (s *Store) Dir() string { return s.dir }

func (s *Store) checkpointsPath() string { return filepath.Join(s.dir, checkpointsFileName) }
func (s *Store) initialPath() string     { return filepath.Join(s.dir, initialFileName) }
func (s *Store) blobsDir() string        { return filepath.Join(s.dir, blobsDirName) }

func (s *Store) ensureDir() error {
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return giterr.Environment("workinglog.ensureDir", err)
	}
	return nil
}

// AppendCheckpoint appends cp to the journal, then prunes char-level
// Attributions from every entry that is no longer the most recent entry
// for its file (line-level attributions are always retained).
//
// Transcripts are cleared before write for tools with a known external
// transcript source (the collaborator can refetch them at post-commit
// finalization); they are preserved for tools that cannot refetch
// (opencode, and any unregistered/custom tool).
func (s *Store) AppendCheckpoint(cp Checkpoint, refetchableTranscript bool) error {
	if err := s.ensureDir(); err != nil {
		return err
	}
	if refetchableTranscript {
		cp.Transcript = nil
	}
	redactTranscript(cp.Transcript)

	f, err := os.OpenFile(s.checkpointsPath(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return giterr.Environment("workinglog.AppendCheckpoint.open", err)
	}
	defer f.Close()

	data, err := json.Marshal(cp)
	if err != nil {
		return giterr.Environment("workinglog.AppendCheckpoint.marshal", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return giterr.Environment("workinglog.AppendCheckpoint.write", err)
	}
	if err := f.Close(); err != nil {
		return giterr.Environment("workinglog.AppendCheckpoint.close", err)
	}

	return s.pruneOldCharAttributions()
}

// redactTranscript scrubs secret-looking text out of every message before
// a transcript is written to the journal. AppendCheckpoint is the only
// place a checkpoint's transcript is persisted, so this is the one place
// that needs to run it.
func redactTranscript(t *prompt.Transcript) {
	if t == nil {
		return
	}
	for i := range t.Messages {
		t.Messages[i].Text = redact.String(t.Messages[i].Text)
	}
}

// pruneOldCharAttributions rewrites the journal with char-level
// Attributions stripped from every entry that is not the latest one for
// its file, bounding on-disk size while preserving full char precision
// for the entry most likely to still need it (a fast-path replay check
// in virtualattr).
func (s *Store) pruneOldCharAttributions() error {
	cps, err := s.readRaw()
	if err != nil {
		return err
	}

	lastEntryIndexForFile := make(map[string]int)
	for i, cp := range cps {
		for _, e := range cp.Entries {
			lastEntryIndexForFile[e.File] = i
		}
	}

	for i := range cps {
		for j := range cps[i].Entries {
			file := cps[i].Entries[j].File
			if lastEntryIndexForFile[file] != i {
				cps[i].Entries[j].Attributions = nil
			}
		}
	}

	return s.rewriteRaw(cps)
}

// readRaw parses every line without applying API-version filtering or
// hash migration (used internally by pruning, which must not drop
// unrecognized records it cannot account for).
func (s *Store) readRaw() ([]Checkpoint, error) {
	data, err := os.ReadFile(s.checkpointsPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, giterr.Environment("workinglog.readRaw", err)
	}
	var out []Checkpoint
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 1<<20), 16<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var cp Checkpoint
		if err := json.Unmarshal(line, &cp); err != nil {
			continue
		}
		out = append(out, cp)
	}
	return out, nil
}

func (s *Store) rewriteRaw(cps []Checkpoint) error {
	var buf bytes.Buffer
	for _, cp := range cps {
		data, err := json.Marshal(cp)
		if err != nil {
			return giterr.Environment("workinglog.rewriteRaw.marshal", err)
		}
		buf.Write(data)
		buf.WriteByte('\n')
	}
	if err := os.WriteFile(s.checkpointsPath(), buf.Bytes(), 0o600); err != nil {
		return giterr.Environment("workinglog.rewriteRaw.write", err)
	}
	return nil
}

// knownHashes scans every checkpoint for author ids that already look
// like a current-format (16-char) prompt hash, so legacy 7-char ids can
// be matched against them by prefix.
func knownHashes(cps []Checkpoint) map[string]struct{} {
	known := make(map[string]struct{})
	for _, cp := range cps {
		for _, e := range cp.Entries {
			for _, r := range e.Attributions {
				if len(r.AuthorID) == 16 {
					known[r.AuthorID] = struct{}{}
				}
			}
			for _, l := range e.LineAttributions {
				if len(l.AuthorID) == 16 {
					known[l.AuthorID] = struct{}{}
				}
			}
		}
	}
	return known
}

// ReadAllCheckpoints parses the journal, rejecting (skipping) any line
// with an unrecognized api_version, migrating legacy 7-char author ids
// to their 16-char form, and returning entries in file (write) order.
func (s *Store) ReadAllCheckpoints() ([]Checkpoint, error) {
	cps, err := s.readRaw()
	if err != nil {
		return nil, err
	}

	var out []Checkpoint
	for _, cp := range cps {
		if cp.APIVersion != APIVersion {
			continue
		}
		out = append(out, cp)
	}

	known := knownHashes(out)
	for i := range out {
		for j := range out[i].Entries {
			migrateEntry(&out[i].Entries[j], known)
		}
	}
	return out, nil
}

func migrateEntry(e *CheckpointEntry, known map[string]struct{}) {
	for i := range e.Attributions {
		e.Attributions[i].AuthorID = migrateAuthorID(e.Attributions[i].AuthorID, known)
	}
	for i := range e.LineAttributions {
		e.LineAttributions[i].AuthorID = migrateAuthorID(e.LineAttributions[i].AuthorID, known)
		if e.LineAttributions[i].Overrode != "" {
			e.LineAttributions[i].Overrode = migrateAuthorID(e.LineAttributions[i].Overrode, known)
		}
	}
}

func migrateAuthorID(id string, known map[string]struct{}) string {
	if len(id) != 7 {
		return id
	}
	for full := range known {
		if len(full) == 16 && full[:7] == id {
			return full
		}
	}
	return id
}

// WriteInitialAttributions writes the INITIAL seed. If files is empty,
// any existing INITIAL file is deleted instead of writing an empty one.
func (s *Store) WriteInitialAttributions(ia InitialAttributions) error {
	if ia.IsEmpty() {
		err := os.Remove(s.initialPath())
		if err != nil && !os.IsNotExist(err) {
			return giterr.Environment("workinglog.WriteInitialAttributions.remove", err)
		}
		return nil
	}
	if err := s.ensureDir(); err != nil {
		return err
	}
	data, err := jsonutil.MarshalIndentWithNewline(ia, "", "  ")
	if err != nil {
		return giterr.Environment("workinglog.WriteInitialAttributions.marshal", err)
	}
	if err := os.WriteFile(s.initialPath(), data, 0o600); err != nil {
		return giterr.Environment("workinglog.WriteInitialAttributions.write", err)
	}
	return nil
}

// ReadInitialAttributions returns the INITIAL seed, or empty defaults if
// the file is absent or unparseable.
func (s *Store) ReadInitialAttributions() InitialAttributions {
	data, err := os.ReadFile(s.initialPath())
	if err != nil {
		return InitialAttributions{}
	}
	var ia InitialAttributions
	if err := json.Unmarshal(data, &ia); err != nil {
		return InitialAttributions{}
	}
	return ia
}

// Reset removes the blob directory, truncates the checkpoint journal,
// and deletes INITIAL — used when a working log's content is being
// wholly replaced (e.g. merge-squash reconstruction, reset --soft).
func (s *Store) Reset() error {
	if err := os.RemoveAll(s.blobsDir()); err != nil {
		return giterr.Environment("workinglog.Reset.blobs", err)
	}
	if err := os.Remove(s.checkpointsPath()); err != nil && !os.IsNotExist(err) {
		return giterr.Environment("workinglog.Reset.checkpoints", err)
	}
	if err := os.Remove(s.initialPath()); err != nil && !os.IsNotExist(err) {
		return giterr.Environment("workinglog.Reset.initial", err)
	}
	return nil
}

// Rename moves the working log directory rooted at root from oldSHA to
// newSHA, iff old exists and new does not. Used for fast-forward and
// other HEAD-advancing moves that preserve working state.
func Rename(root, oldSHA, newSHA string) error {
	oldDir := filepath.Join(root, oldSHA)
	newDir := filepath.Join(root, newSHA)

	if _, err := os.Stat(oldDir); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return giterr.Environment("workinglog.Rename.stat-old", err)
	}
	if _, err := os.Stat(newDir); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return giterr.Environment("workinglog.Rename.stat-new", err)
	}

	if err := os.Rename(oldDir, newDir); err != nil {
		return giterr.Environment("workinglog.Rename", err)
	}
	return nil
}

// Delete removes the working log directory at root/sha. In diagnostic
// mode it is renamed to "old-<sha>" instead of removed, so a developer
// can inspect it after the fact.
func Delete(root, sha string, diagnostic bool) error {
	dir := filepath.Join(root, sha)
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return giterr.Environment("workinglog.Delete.stat", err)
	}

	if diagnostic {
		renamed := filepath.Join(root, "old-"+sha)
		if err := os.RemoveAll(renamed); err != nil {
			return giterr.Environment("workinglog.Delete.clear-old", err)
		}
		if err := os.Rename(dir, renamed); err != nil {
			return giterr.Environment("workinglog.Delete.rename", err)
		}
		return nil
	}

	if err := os.RemoveAll(dir); err != nil {
		return giterr.Environment("workinglog.Delete", err)
	}
	return nil
}

// PersistFileVersion writes content to the blob cache, keyed by its
// sha256 digest, and returns that digest. Writing is idempotent: an
// existing blob with the same digest is left untouched.
func (s *Store) PersistFileVersion(content []byte) (string, error) {
	sum := sha256.Sum256(content)
	digest := hex.EncodeToString(sum[:])

	if err := os.MkdirAll(s.blobsDir(), 0o750); err != nil {
		return "", giterr.Environment("workinglog.PersistFileVersion.mkdir", err)
	}
	path := filepath.Join(s.blobsDir(), digest)
	if _, err := os.Stat(path); err == nil {
		return digest, nil
	}
	if err := os.WriteFile(path, content, 0o600); err != nil {
		return "", giterr.Environment("workinglog.PersistFileVersion.write", err)
	}
	return digest, nil
}

// ReadBlob returns the content previously persisted under digest.
func (s *Store) ReadBlob(digest string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.blobsDir(), digest))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("workinglog: blob not found: " + digest)
		}
		return nil, giterr.Environment("workinglog.ReadBlob", err)
	}
	return data, nil
}
