package cli

import (
	"context"

	"github.com/gitattrib/gitai/internal/gitrepo"
	"github.com/gitattrib/gitai/internal/pipeline"
	"github.com/gitattrib/gitai/internal/reconciler"
)

// CIRewriteOptions carries the refs ci_rewrite_authorship needs to
// locate the two branches a CI platform squash- or rebase-merged
// outside the wrapper. HeadRef and MergeRef are used only to fetch
// remote notes before reading and to push the result after; the SHAs
// are what the reconciliation itself runs against.
type CIRewriteOptions struct {
	SourceHeadSHA  string
	MergeCommitSHA string
	HeadRef        string
	MergeRef       string
	Remote         string
}

// CIRewriteAuthorship is the ci_rewrite_authorship entry point: it
// applies the same merge-squash reconciliation HandleGit would have run
// inline, after the fact, for CI environments (e.g. a "squash and
// merge" GitHub Actions workflow) that performed the merge without ever
// invoking HandleGit.
func CIRewriteAuthorship(ctx context.Context, opts CIRewriteOptions) error {
	repo, err := gitrepo.Open(".")
	if err != nil {
		return err
	}

	remote := opts.Remote
	if remote == "" {
		remote = "origin"
	}
	_ = repo.FetchNotes(remote)

	targetHead, err := repo.ParentSHA(opts.MergeCommitSHA)
	if err != nil {
		return err
	}

	err = reconciler.Guard("ci_rewrite_authorship", func() error {
		return reconciler.HandleCIMergeSquash(repo, reconciler.MergeSquashEvent{
			SourceHead: opts.SourceHeadSHA,
			TargetHead: targetHead,
		}, opts.MergeCommitSHA, gitAiVersionOrDev(), pipeline.Now)
	})
	if err != nil {
		return err
	}

	return repo.PushNotes(remote)
}
