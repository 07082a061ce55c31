// Package gitingest clones remote repositories for ingestion and honors
// their .gitignore when the workflow walks the resulting tree (spec §4.9
// activity 2, Materialise).
package gitingest

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// Clone performs a shallow, single-branch clone of url into dest. depth
// <= 0 defaults to 1, matching the ingestion workflow's "don't pull
// history we'll never chunk" policy.
func Clone(ctx context.Context, url, dest string, depth int) error {
	if depth <= 0 {
		depth = 1
	}
	_, err := git.PlainCloneContext(ctx, dest, false, &git.CloneOptions{
		URL:          url,
		Depth:        depth,
		SingleBranch: true,
	})
	if err != nil {
		return fmt.Errorf("gitingest: clone %s: %w", url, err)
	}
	return nil
}

// IgnoreMatcher loads root's top-level .gitignore, if any. A nil matcher
// (no error) means no .gitignore was present; callers should treat every
// path as included in that case.
func IgnoreMatcher(root string) (gitignore.Matcher, error) {
	f, err := os.Open(filepath.Join(root, ".gitignore"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var patterns []gitignore.Pattern
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" || strings.HasPrefix(strings.TrimSpace(line), "#") {
			continue
		}
		patterns = append(patterns, gitignore.ParsePattern(line, nil))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return gitignore.NewMatcher(patterns), nil
}

// Ignored reports whether relPath (relative to the matcher's root) is
// excluded by the loaded .gitignore. A nil matcher never excludes anything.
func Ignored(matcher gitignore.Matcher, relPath string, isDir bool) bool {
	if matcher == nil {
		return false
	}
	return matcher.Match(strings.Split(relPath, string(os.PathSeparator)), isDir)
}
