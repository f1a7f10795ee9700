// Package release derives the CDN release tag published datasets are pinned to.
package release

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/mod/semver"
)

// EnvTag overrides every other source of the tag.
const EnvTag = "CDN_RELEASE_TAG"

// DefaultTag is used when nothing else yields a tag.
const DefaultTag = "main"

var tagPattern = regexp.MustCompile(`^v(\d+)(?:\.(\d+))?(?:\.(\d+))?$`)

// Runner executes git with args in dir and returns its standard output.
type Runner func(ctx context.Context, dir string, args ...string) (string, error)

// Resolver looks the tag up in the environment and the git repository at Dir.
type Resolver struct {
	Dir    string
	Getenv func(string) string
	Git    Runner
}

// NewResolver returns a resolver for the repository at dir.
func NewResolver(dir string) *Resolver {
	return &Resolver{Dir: dir, Getenv: os.Getenv, Git: runGit}
}

// Resolve returns, in order of preference: the CDN_RELEASE_TAG variable, the
// version following the highest vX[.Y[.Z]] tag, the nearest tag, the current
// branch, the short commit hash, or "main".
func (r *Resolver) Resolve(ctx context.Context) string {
	if tag := r.Getenv(EnvTag); tag != "" {
		return tag
	}

	if out, err := r.Git(ctx, r.Dir, "tag", "--list"); err == nil {
		if next, ok := NextSemver(strings.Split(out, "\n")); ok {
			return next
		}
	}

	for _, args := range [][]string{
		{"describe", "--tags", "--abbrev=0"},
		{"rev-parse", "--abbrev-ref", "HEAD"},
		{"rev-parse", "--short", "HEAD"},
	} {
		out, err := r.Git(ctx, r.Dir, args...)
		if err != nil {
			continue
		}
		if tag := strings.TrimSpace(out); tag != "" && tag != "HEAD" {
			return tag
		}
	}

	return DefaultTag
}

// NextSemver finds the highest tag of the form vX, vX.Y or vX.Y.Z and bumps
// its last written component, so v1.2 becomes v1.3 and v2 becomes v3.
func NextSemver(tags []string) (string, bool) {
	var best string
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if !tagPattern.MatchString(tag) {
			continue
		}
		if best == "" || semver.Compare(tag, best) > 0 {
			best = tag
		}
	}
	if best == "" {
		return "", false
	}

	parts := strings.Split(strings.TrimPrefix(best, "v"), ".")
	last, err := strconv.Atoi(parts[len(parts)-1])
	if err != nil {
		return "", false
	}
	parts[len(parts)-1] = strconv.Itoa(last + 1)

	return "v" + strings.Join(parts, "."), true
}

func runGit(ctx context.Context, dir string, args ...string) (string, error) {
	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return "", err
	}
	return out.String(), nil
}
