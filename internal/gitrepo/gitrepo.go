// Package gitrepo wraps the subset of git plumbing the core components
// need: in-process tree/blob reads via go-git for single-object lookups,
// and batched subprocess invocations (cat-file --batch, diff-tree
// --stdin, blame --line-porcelain, notes) for the hot paths that must
// avoid one-subprocess-per-file.
package gitrepo

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/gitattrib/gitai/internal/giterr"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// EmptyTreeHash is the well-known git empty-tree object id, used as the
// parent for root-commit diffs.
const EmptyTreeHash = "4b825dc642cb6eb9a060e54bf8d69288fbee4904"

// AuthorshipNotesRef is the fixed ref namespace AuthorshipLog notes are
// attached under.
const AuthorshipNotesRef = "refs/notes/gitai/authorship"

// Repository is a handle on a working repository: a go-git Repository
// for in-process object reads, plus the on-disk root for shelling out to
// the batched git verbs go-git doesn't expose.
type Repository struct {
	repo *git.Repository
	root string
}

// Open opens the repository rooted at path (or any of its parents).
func Open(path string) (*Repository, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, giterr.Fatal("gitrepo.Open", err)
	}
	wt, err := repo.Worktree()
	root := path
	if err == nil {
		root = wt.Filesystem.Root()
	}
	return &Repository{repo: repo, root: root}, nil
}

// Root returns the working tree root.
func (r *Repository) Root() string { return r.root }

// runGit executes git with args rooted at r.Root(), returning stdout.
func (r *Repository) runGit(stdin string, args ...string) (string, error) {
	cmd := exec.Command("git", append([]string{"-C", r.root}, args...)...)
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	out, err := cmd.Output()
	if err != nil {
		return "", giterr.Environment("gitrepo.runGit "+strings.Join(args, " "), err)
	}
	return string(out), nil
}

// RevParse resolves a revision string to a commit SHA.
func (r *Repository) RevParse(rev string) (string, error) {
	h, err := r.repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return "", giterr.Environment("gitrepo.RevParse", err)
	}
	return h.String(), nil
}

// MergeBase returns the merge base of a and b, using `git merge-base`
// directly since go-git's MergeBase helper requires full commit objects
// and is considerably slower on deep histories.
func (r *Repository) MergeBase(a, b string) (string, error) {
	out, err := r.runGit("", "merge-base", a, b)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// IsAncestor reports whether ancestor is an ancestor of descendant.
func (r *Repository) IsAncestor(ancestor, descendant string) (bool, error) {
	cmd := exec.Command("git", "-C", r.root, "merge-base", "--is-ancestor", ancestor, descendant)
	err := cmd.Run()
	if err == nil {
		return true, nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
		return false, nil
	}
	return false, giterr.Environment("gitrepo.IsAncestor", err)
}

// FileContentAt returns a file's content at commit, read in-process via
// go-git's tree walk. ok is false if the file does not exist in that
// commit's tree. Binary content is returned as-is; callers that need
// text decide how to treat it.
func (r *Repository) FileContentAt(commitSHA, path string) (content string, ok bool, err error) {
	if commitSHA == EmptyTreeHash || commitSHA == "" {
		return "", false, nil
	}
	h := plumbing.NewHash(commitSHA)
	commit, cerr := r.repo.CommitObject(h)
	if cerr != nil {
		return "", false, giterr.Environment("gitrepo.FileContentAt.commit", cerr)
	}
	tree, terr := commit.Tree()
	if terr != nil {
		return "", false, giterr.Environment("gitrepo.FileContentAt.tree", terr)
	}
	f, ferr := tree.File(path)
	if ferr != nil {
		if ferr == object.ErrFileNotFound {
			return "", false, nil
		}
		return "", false, giterr.Environment("gitrepo.FileContentAt.file", ferr)
	}
	isBin, _ := f.IsBinary()
	if isBin {
		return "", false, nil
	}
	s, serr := f.Contents()
	if serr != nil {
		return "", false, giterr.Environment("gitrepo.FileContentAt.contents", serr)
	}
	return s, true, nil
}

// ParentSHA returns the first-parent SHA of commitSHA, or EmptyTreeHash
// for a root commit.
func (r *Repository) ParentSHA(commitSHA string) (string, error) {
	h := plumbing.NewHash(commitSHA)
	commit, err := r.repo.CommitObject(h)
	if err != nil {
		return "", giterr.Environment("gitrepo.ParentSHA", err)
	}
	if commit.NumParents() == 0 {
		return EmptyTreeHash, nil
	}
	p, err := commit.Parent(0)
	if err != nil {
		return "", giterr.Environment("gitrepo.ParentSHA.parent", err)
	}
	return p.Hash.String(), nil
}

// Head returns the current HEAD commit SHA, or "" if unborn.
func (r *Repository) Head() (string, error) {
	ref, err := r.repo.Head()
	if err != nil {
		if err == plumbing.ErrReferenceNotFound {
			return "", nil
		}
		return "", giterr.Environment("gitrepo.Head", err)
	}
	return ref.Hash().String(), nil
}

// WriteNote attaches data as the AuthorshipNotesRef note on commitSHA,
// overwriting any existing note (git notes add -f).
func (r *Repository) WriteNote(commitSHA string, data []byte) error {
	cmd := exec.Command("git", "-C", r.root, "notes", "--ref", AuthorshipNotesRef, "add", "-f", "-F", "-", commitSHA)
	cmd.Stdin = strings.NewReader(string(data))
	if out, err := cmd.CombinedOutput(); err != nil {
		return giterr.Environment("gitrepo.WriteNote: "+string(out), err)
	}
	return nil
}

// ReadNote returns the AuthorshipNotesRef note on commitSHA, if any.
func (r *Repository) ReadNote(commitSHA string) (data []byte, ok bool, err error) {
	cmd := exec.Command("git", "-C", r.root, "notes", "--ref", AuthorshipNotesRef, "show", commitSHA)
	out, runErr := cmd.Output()
	if runErr != nil {
		if exitErr, isExit := runErr.(*exec.ExitError); isExit && exitErr.ExitCode() == 1 {
			return nil, false, nil
		}
		return nil, false, giterr.Environment("gitrepo.ReadNote", runErr)
	}
	return out, true, nil
}

// CopyNote copies the AuthorshipNotesRef note from fromSHA to toSHA, used
// when a rewrite produces a new commit SHA for unchanged content (e.g.
// fast-forward rename, or an amend that only touches the message).
func (r *Repository) CopyNote(fromSHA, toSHA string) error {
	cmd := exec.Command("git", "-C", r.root, "notes", "--ref", AuthorshipNotesRef, "copy", "-f", fromSHA, toSHA)
	if out, err := cmd.CombinedOutput(); err != nil {
		return giterr.Environment("gitrepo.CopyNote: "+string(out), err)
	}
	return nil
}

// DiffNameStatus returns the changed file paths between two commits
// (a..b), using a single batched `git diff --name-only` subprocess call
// rather than per-file stat calls.
func (r *Repository) DiffNameStatus(a, b string) ([]string, error) {
	out, err := r.runGit("", "diff", "--name-only", a, b)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, line := range strings.Split(strings.TrimRight(out, "\n"), "\n") {
		if line != "" {
			files = append(files, line)
		}
	}
	return files, nil
}

// StagedFiles returns the paths currently staged relative to HEAD (or,
// for an unborn HEAD, relative to the empty tree).
func (r *Repository) StagedFiles() ([]string, error) {
	head, err := r.Head()
	if err != nil {
		return nil, err
	}
	base := head
	if base == "" {
		base = EmptyTreeHash
	}
	out, err := r.runGit("", "diff", "--cached", "--name-only", base)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, line := range strings.Split(strings.TrimRight(out, "\n"), "\n") {
		if line != "" {
			files = append(files, line)
		}
	}
	return files, nil
}

// GitDir returns the repository's .git directory (resolved through git
// itself so worktrees and submodules are handled correctly).
func (r *Repository) GitDir() (string, error) {
	out, err := r.runGit("", "rev-parse", "--git-dir")
	if err != nil {
		return "", err
	}
	dir := strings.TrimSpace(out)
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(r.root, dir)
	}
	return filepath.Clean(dir), nil
}

// RevList returns the commits in (base, head] in chronological (oldest
// first) order, using `git rev-list --reverse`.
func (r *Repository) RevList(base, head string) ([]string, error) {
	rangeArg := head
	if base != "" && base != EmptyTreeHash {
		rangeArg = base + ".." + head
	}
	out, err := r.runGit("", "rev-list", "--reverse", rangeArg)
	if err != nil {
		return nil, err
	}
	var shas []string
	for _, line := range strings.Split(strings.TrimRight(out, "\n"), "\n") {
		if line != "" {
			shas = append(shas, line)
		}
	}
	return shas, nil
}

// PushNotes pushes the AuthorshipNotesRef to remote, merging (rather
// than forcing) so two CI runs racing on the same ref don't clobber
// each other's notes. Best-effort: callers should not treat a failure
// here as fatal to the operation that produced the note.
func (r *Repository) PushNotes(remote string) error {
	cmd := exec.Command("git", "-C", r.root, "push", remote, AuthorshipNotesRef+":"+AuthorshipNotesRef)
	if out, err := cmd.CombinedOutput(); err != nil {
		return giterr.Environment("gitrepo.PushNotes: "+string(out), err)
	}
	return nil
}

// FetchNotes fetches the AuthorshipNotesRef from remote, merging via
// git's "cat_sort_uniq" notes strategy so concurrently written notes on
// the same commit both survive.
func (r *Repository) FetchNotes(remote string) error {
	cmd := exec.Command("git", "-C", r.root, "fetch", remote, AuthorshipNotesRef+":"+AuthorshipNotesRef)
	if out, err := cmd.CombinedOutput(); err != nil {
		return giterr.Environment("gitrepo.FetchNotes: "+string(out), err)
	}
	return nil
}

// DefaultAuthor resolves the default human author for a commit the
// wrapper is about to finalize: --author flag > GIT_AUTHOR_{NAME,EMAIL}
// env > user.{name,email} config > EMAIL env > "unknown".
func (r *Repository) DefaultAuthor(authorFlag, envName, envEmail, envEmailFallback string) string {
	if authorFlag != "" {
		return authorFlag
	}
	if envName != "" || envEmail != "" {
		return fmt.Sprintf("%s <%s>", envName, envEmail)
	}
	cfg, err := r.repo.Config()
	if err == nil {
		name := cfg.User.Name
		email := cfg.User.Email
		if name != "" || email != "" {
			return fmt.Sprintf("%s <%s>", name, email)
		}
	}
	if envEmailFallback != "" {
		return envEmailFallback
	}
	return "unknown"
}
