package gitrepo

import (
	"bufio"
	"os/exec"
	"strconv"
	"strings"

	"github.com/gitattrib/gitai/internal/giterr"
)

// BlameLine is one line of `git blame --line-porcelain` output, parsed
// into its fields. OrigLine is the line number within the commit that
// introduced it — the number an AuthorshipLog note's attestation ranges
// are indexed by, since a note's ranges describe the file as of the
// commit it is attached to.
type BlameLine struct {
	SHA           string
	OrigLine      int
	FinalLine     int
	Filename      string
	AuthorName    string
	AuthorMail    string
	AuthorTime    int64
	CommitterName string
	CommitterMail string
	CommitterTime int64
	Summary       string
	Boundary      bool
	Content       string
}

// Blame runs `git blame --line-porcelain` on path as of rev ("" for the
// working tree/HEAD) and returns one BlameLine per line of the file.
// --line-porcelain repeats every metadata field for every line (unlike
// plain --porcelain, which omits repeats within a contiguous group),
// which trades a larger subprocess payload for a parser with no
// cross-line state beyond "what commit am I reading fields for".
func (r *Repository) Blame(path, rev string) ([]BlameLine, error) {
	args := []string{"-C", r.root, "blame", "--line-porcelain"}
	if rev != "" {
		args = append(args, rev)
	}
	args = append(args, "--", path)

	cmd := exec.Command("git", args...)
	out, err := cmd.Output()
	if err != nil {
		return nil, giterr.Environment("gitrepo.Blame", err)
	}
	return parseLinePorcelain(string(out))
}

func parseLinePorcelain(out string) ([]BlameLine, error) {
	var lines []BlameLine
	var cur BlameLine
	haveHeader := false

	scanner := bufio.NewScanner(strings.NewReader(out))
	scanner.Buffer(make([]byte, 0, 1<<16), 8<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "\t") {
			cur.Content = line[1:]
			lines = append(lines, cur)
			cur = BlameLine{}
			haveHeader = false
			continue
		}
		if !haveHeader {
			fields := strings.Fields(line)
			if len(fields) < 3 {
				continue
			}
			cur.SHA = fields[0]
			cur.OrigLine, _ = strconv.Atoi(fields[1])
			cur.FinalLine, _ = strconv.Atoi(fields[2])
			haveHeader = true
			continue
		}

		switch {
		case line == "boundary":
			cur.Boundary = true
		case strings.HasPrefix(line, "author-mail "):
			cur.AuthorMail = strings.Trim(line[len("author-mail "):], "<>")
		case strings.HasPrefix(line, "author-time "):
			cur.AuthorTime, _ = strconv.ParseInt(line[len("author-time "):], 10, 64)
		case strings.HasPrefix(line, "author-tz "):
			// tracked on AuthorTime's wall-clock only; timezone offset
			// isn't needed for authorship attribution.
		case strings.HasPrefix(line, "author "):
			cur.AuthorName = line[len("author "):]
		case strings.HasPrefix(line, "committer-mail "):
			cur.CommitterMail = strings.Trim(line[len("committer-mail "):], "<>")
		case strings.HasPrefix(line, "committer-time "):
			cur.CommitterTime, _ = strconv.ParseInt(line[len("committer-time "):], 10, 64)
		case strings.HasPrefix(line, "committer-tz "):
		case strings.HasPrefix(line, "committer "):
			cur.CommitterName = line[len("committer "):]
		case strings.HasPrefix(line, "summary "):
			cur.Summary = line[len("summary "):]
		case strings.HasPrefix(line, "filename "):
			cur.Filename = line[len("filename "):]
		case strings.HasPrefix(line, "previous "):
			// previous <sha> <filename>: only relevant to blame's own
			// rename-follow bookkeeping, not to attribution.
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, giterr.Environment("gitrepo.Blame.scan", err)
	}
	return lines, nil
}
