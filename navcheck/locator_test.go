package navcheck_test

import (
	"strings"
	"testing"

	"github.com/pkg/errors"
	"gitlab.com/navcheck/navcheck"
)

func TestParseSelectorKind(t *testing.T) {
	var inputs = []struct {
		in       string
		expected navcheck.SelectorKind
		fails    bool
	}{
		{"css", navcheck.ByCSS, false},
		{" ID ", navcheck.ByID, false},
		{"link_text", navcheck.ByLinkText, false},
		{"partial_link_text", navcheck.ByPartialLinkText, false},
		{"xpath", navcheck.ByXPath, false},
		{"text", navcheck.ByText, false},
		{"jquery", 0, true},
		{"", 0, true},
	}

	for _, in := range inputs {
		kind, err := navcheck.ParseSelectorKind(in.in)
		if in.fails {
			if !errors.Is(err, navcheck.ErrInvalidSelector) {
				t.Fatalf("%q: expected ErrInvalidSelector got %v", in.in, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%q: error parsing: %s", in.in, err)
		}
		if kind != in.expected {
			t.Fatalf("%q: expected %s got %s", in.in, in.expected, kind)
		}
	}
}

func TestNewLocatorSpec(t *testing.T) {
	_, err := navcheck.NewLocatorSpec("facebook")
	if !errors.Is(err, navcheck.ErrEmptyLocator) {
		t.Fatalf("expected ErrEmptyLocator got %v", err)
	}

	_, err = navcheck.NewLocatorSpec("facebook", navcheck.ID("fb"), navcheck.CSS("  "))
	if !errors.Is(err, navcheck.ErrInvalidSelector) {
		t.Fatalf("expected ErrInvalidSelector for empty query got %v", err)
	}

	_, err = navcheck.NewLocatorSpec("facebook", navcheck.Selector{Kind: 42, Query: "x"})
	if !errors.Is(err, navcheck.ErrInvalidSelector) {
		t.Fatalf("expected ErrInvalidSelector for unknown kind got %v", err)
	}

	spec, err := navcheck.NewLocatorSpec("facebook",
		navcheck.ID("fb-link"),
		navcheck.LinkText("Follow us on Facebook"),
		navcheck.CSS("a[href*='facebook.com']"),
	)
	if err != nil {
		t.Fatalf("error creating spec: %s", err)
	}
	if spec.Name() != "facebook" || spec.Len() != 3 {
		t.Fatalf("unexpected spec: %s", spec)
	}
	if spec.Candidate(1).Kind != navcheck.ByLinkText {
		t.Fatalf("candidates must keep their priority order: %s", spec)
	}

	c := spec.Candidates()
	c[0] = navcheck.XPath("//a")
	if spec.Candidate(0).Kind != navcheck.ByID {
		t.Fatalf("Candidates must return a copy")
	}

	if !strings.HasPrefix(spec.String(), "facebook[id=fb-link, link_text=") {
		t.Fatalf("unexpected string: %s", spec)
	}
}

func TestMustLocatorSpecPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for empty spec")
		}
	}()
	navcheck.MustLocatorSpec("empty")
}

func TestResolvedTargetErr(t *testing.T) {
	spec := navcheck.MustLocatorSpec("youtube", navcheck.ID("yt"), navcheck.TagName("a"))
	target := &navcheck.ResolvedTarget{
		Spec:  spec,
		Index: -1,
		Attempts: []navcheck.CandidateAttempt{
			{Candidate: spec.Candidate(0), Attempted: true, Polls: 4, LastErr: navcheck.ErrStaleElement},
			{Candidate: spec.Candidate(1)},
		},
	}
	if target.Found() {
		t.Fatalf("target without element must not be found")
	}

	err := target.Err()
	var notFound *navcheck.NotFoundErr
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundErr got %T", err)
	}
	msg := err.Error()
	for _, part := range []string{"youtube", "id=yt (4 polls, last error: element is stale", "tag=a (not attempted)"} {
		if !strings.Contains(msg, part) {
			t.Fatalf("expected %q in %q", part, msg)
		}
	}

	target.Element = &navcheck.QueryHandle{Context: "ctx", Selector: spec.Candidate(0)}
	if !target.Found() || target.Err() != nil {
		t.Fatalf("target with element must be found")
	}
}
