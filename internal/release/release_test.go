package release

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNextSemver(t *testing.T) {
	tests := []struct {
		name string
		tags []string
		want string
		ok   bool
	}{
		{name: "patch", tags: []string{"v1.2.3", "v1.2.10", "v1.2.9"}, want: "v1.2.11", ok: true},
		{name: "minor only", tags: []string{"v0.9", "v1.1"}, want: "v1.2", ok: true},
		{name: "major only", tags: []string{"v2", "v1.9.9"}, want: "v3", ok: true},
		{name: "shorter form of the highest", tags: []string{"v1.0.0", "v1.1"}, want: "v1.2", ok: true},
		{name: "first of equal versions wins", tags: []string{"v3", "v3.0.0"}, want: "v4", ok: true},
		{name: "ignores other tags", tags: []string{"release-1", "v1.2.3-rc1", "1.2.3", "  v0.1.0  ", ""}, want: "v0.1.1", ok: true},
		{name: "none", tags: []string{"latest"}, ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NextSemver(tt.tags)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

type fakeGit map[string]string

func (f fakeGit) run(_ context.Context, _ string, args ...string) (string, error) {
	out, ok := f[strings.Join(args, " ")]
	if !ok {
		return "", errors.New("exit status 128")
	}
	return out, nil
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name string
		env  string
		git  fakeGit
		want string
	}{
		{
			name: "environment wins",
			env:  "v9.9.9",
			git:  fakeGit{"tag --list": "v1.0.0\n"},
			want: "v9.9.9",
		},
		{
			name: "next semver",
			git:  fakeGit{"tag --list": "v1.0.0\nv1.0.1\n"},
			want: "v1.0.2",
		},
		{
			name: "nearest tag",
			git: fakeGit{
				"tag --list":                 "nightly\n",
				"describe --tags --abbrev=0": "nightly\n",
			},
			want: "nightly",
		},
		{
			name: "detached head falls through to hash",
			git: fakeGit{
				"rev-parse --abbrev-ref HEAD": "HEAD\n",
				"rev-parse --short HEAD":      "abc1234\n",
			},
			want: "abc1234",
		},
		{
			name: "branch",
			git:  fakeGit{"rev-parse --abbrev-ref HEAD": "feature/x\n"},
			want: "feature/x",
		},
		{
			name: "no git",
			git:  fakeGit{},
			want: DefaultTag,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &Resolver{
				Getenv: func(string) string { return tt.env },
				Git:    tt.git.run,
			}
			assert.Equal(t, tt.want, r.Resolve(context.Background()))
		})
	}
}
