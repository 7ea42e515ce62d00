package cli

import (
	"github.com/spf13/cobra"
)

func newCIRewriteAuthorshipCmd() *cobra.Command {
	var opts CIRewriteOptions

	cmd := &cobra.Command{
		Use:   "ci-rewrite-authorship --merge-commit <sha>",
		Short: "Reconcile attribution for a merge a CI platform performed outside gitai",
		Long: `For CI environments that squash- or rebase-merge a branch without ever
invoking "gitai git" (e.g. GitHub's "Squash and merge" button): applies
the same merge-squash reconciliation gitai would have run inline, then
pushes the resulting notes.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return CIRewriteAuthorship(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.SourceHeadSHA, "source-head", "", "SHA of the source branch tip before it was merged")
	cmd.Flags().StringVar(&opts.MergeCommitSHA, "merge-commit", "", "SHA of the resulting merge/squash commit")
	cmd.Flags().StringVar(&opts.HeadRef, "head-ref", "", "Source branch ref, for fetching notes before reconciling")
	cmd.Flags().StringVar(&opts.MergeRef, "merge-ref", "", "Target branch ref, for fetching notes before reconciling")
	cmd.Flags().StringVar(&opts.Remote, "remote", "origin", "Remote to fetch notes from and push the result to")

	_ = cmd.MarkFlagRequired("source-head")
	_ = cmd.MarkFlagRequired("merge-commit")

	return cmd
}
