package cachekey

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestBuild_Format(t *testing.T) {
	got, err := Build("payments", "overview", "abc123def456", "2")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	want := "payments#overview#abc123def456#v2"
	if got != want {
		t.Errorf("Build = %q, want %q", got, want)
	}
}

func TestBuild_RejectsDelimiter(t *testing.T) {
	cases := []StepKey{
		{Repo: "a#b", Step: "s", Commit: "c", Version: "1"},
		{Repo: "a", Step: "s#", Commit: "c", Version: "1"},
		{Repo: "a", Step: "s", Commit: "#c", Version: "1"},
		{Repo: "a", Step: "s", Commit: "c", Version: "1#2"},
	}
	for _, k := range cases {
		_, err := Build(k.Repo, k.Step, k.Commit, k.Version)
		if !errors.Is(err, ErrReservedDelimiter) {
			t.Errorf("Build(%+v) err = %v, want ErrReservedDelimiter", k, err)
		}
	}
}

func TestBuild_RejectsEmpty(t *testing.T) {
	_, err := Build("repo", "", "c", "1")
	if !errors.Is(err, ErrEmptyComponent) {
		t.Errorf("err = %v, want ErrEmptyComponent", err)
	}
}

func TestBuild_DistinctTuplesDistinctKeys(t *testing.T) {
	commits := []string{"aaa", "aab", "1", "v1"}
	versions := []string{"1", "2", "10", "v1"}
	seen := make(map[string]StepKey)
	for _, c := range commits {
		for _, v := range versions {
			k := StepKey{Repo: "r", Step: "s", Commit: c, Version: v}
			key, err := Build(k.Repo, k.Step, k.Commit, k.Version)
			if err != nil {
				t.Fatalf("Build(%+v): %v", k, err)
			}
			if prev, dup := seen[key]; dup {
				t.Fatalf("collision: %+v and %+v both map to %q", prev, k, key)
			}
			seen[key] = k
		}
	}
}

func TestParse_RoundTrip(t *testing.T) {
	want := StepKey{Repo: "svc", Step: "monitoring", Commit: "deadbeef", Version: "3"}
	got, err := Parse(want.String())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Parse mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_Malformed(t *testing.T) {
	for _, key := range []string{"", "a#b#c", "a#b#c#3", "a#b#c#v1#x", "a##c#v1"} {
		if _, err := Parse(key); !errors.Is(err, ErrMalformedKey) {
			t.Errorf("Parse(%q) err = %v, want ErrMalformedKey", key, err)
		}
	}
}

func TestDependenciesKey(t *testing.T) {
	got, err := DependenciesKey("svc", "abc")
	if err != nil {
		t.Fatalf("DependenciesKey: %v", err)
	}
	if got != "svc#dependencies#abc" {
		t.Errorf("DependenciesKey = %q", got)
	}
	if _, err := DependenciesKey("s#v", "abc"); !errors.Is(err, ErrReservedDelimiter) {
		t.Errorf("err = %v, want ErrReservedDelimiter", err)
	}
}

func TestShortSHA(t *testing.T) {
	if got := ShortSHA("0123456789abcdef"); got != "01234567" {
		t.Errorf("ShortSHA = %q", got)
	}
	if got := ShortSHA("abc"); got != "abc" {
		t.Errorf("ShortSHA short = %q", got)
	}
}
