package navigation_test

import (
	"context"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/pkg/errors"
	"gitlab.com/navcheck/engine/locate"
	"gitlab.com/navcheck/engine/navigation"
	"gitlab.com/navcheck/engine/window"
	"gitlab.com/navcheck/mock"
	"gitlab.com/navcheck/navcheck"
)

const home = "https://shop.example.com/"

var poll = 5 * time.Millisecond

func setup(t *testing.T, onClick func(b *mock.Browser, from navcheck.ContextHandle)) (*mock.Browser, *navigation.Verifier, navigation.Trigger) {
	link := mock.Link("social", onClick, navcheck.CSS("a.social"))
	b := mock.NewBrowser(home, &mock.Page{URL: home, Elements: []*mock.Element{link}})
	t.Cleanup(func() { b.Close() })

	tracker := window.New(b)
	tracker.DetectTimeout = 60 * time.Millisecond
	tracker.RestoreTimeout = 300 * time.Millisecond
	tracker.PollInterval = poll

	v := navigation.New(b, tracker)
	v.PollInterval = poll

	spec := navcheck.MustLocatorSpec("social", navcheck.CSS("a.social"))
	trigger := navigation.ResolveAndClick(locate.New(b, poll), b, spec, 100*time.Millisecond)
	return b, v, trigger
}

func TestVerifyNewContext(t *testing.T) {
	b, v, trigger := setup(t, mock.OpensTab("https://www.facebook.com/shop"))
	origin := b.Focused()

	outcome, err := v.VerifyExternalNavigation(context.Background(), trigger, "facebook.com", time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if !outcome.Passed() || outcome.Shape != navcheck.ShapeNewContext {
		t.Fatalf("expected verified new context: %s", outcome)
	}
	expected := []navcheck.State{
		navcheck.StateIdle,
		navcheck.StateTriggerSent,
		navcheck.StateNewContextDetected,
		navcheck.StateVerifying,
		navcheck.StateVerified,
		navcheck.StateRestoring,
		navcheck.StateRestored,
	}
	if !reflect.DeepEqual(outcome.Trail, expected) {
		t.Fatalf("unexpected trail %v", outcome.Trail)
	}
	if outcome.ObservedURL != "https://www.facebook.com/shop" || outcome.StartURL != home {
		t.Fatalf("unexpected urls: %s", spew.Sdump(outcome))
	}
	if b.Focused() != origin || len(b.Open()) != 1 {
		t.Fatalf("new context not closed or focus not restored: %s %v", b.Focused(), b.Open())
	}
	if outcome.Err() != nil {
		t.Fatalf("verified outcome should have no error: %s", outcome.Err())
	}
}

func TestVerifySameContext(t *testing.T) {
	b, v, trigger := setup(t, mock.GoesTo("https://www.youtube.com/c/shop"))
	origin := b.Focused()

	outcome, err := v.VerifyExternalNavigation(context.Background(), trigger, "youtube.com", time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if !outcome.Passed() || outcome.Shape != navcheck.ShapeSameContext {
		t.Fatalf("expected verified same context: %s", outcome)
	}
	if outcome.Trail[2] != navcheck.StateSameContextDetected {
		t.Fatalf("unexpected trail %v", outcome.Trail)
	}
	if b.URLOf(origin) != home || b.Calls("NavigateBack") != 1 {
		t.Fatalf("expected one back navigation to %s, at %s after %d", home, b.URLOf(origin), b.Calls("NavigateBack"))
	}
}

func TestVerifyOriginMismatch(t *testing.T) {
	b, v, trigger := setup(t, mock.OpensTab("https://www.fakebook.com/shop"))
	origin := b.Focused()

	timeout := 300 * time.Millisecond
	outcome, err := v.VerifyExternalNavigation(context.Background(), trigger, "facebook.com", timeout)
	if err != nil {
		t.Fatalf("mismatch is not a returned error: %s", err)
	}
	if outcome.Verdict != navcheck.OriginMismatch || outcome.Restore != navcheck.Restored {
		t.Fatalf("expected restored origin mismatch: %s", outcome)
	}
	if outcome.Elapsed < timeout {
		t.Fatalf("a wrong origin may still redirect, the timeout must be waited out: %s", outcome.Elapsed)
	}

	mismatch := &navcheck.OriginMismatchErr{}
	if !errors.As(outcome.Err(), &mismatch) {
		t.Fatalf("expected OriginMismatchErr got %T", outcome.Err())
	}
	msg := mismatch.Error()
	if !strings.Contains(msg, "facebook.com") || !strings.Contains(msg, "https://www.fakebook.com/shop") {
		t.Fatalf("diagnostic must name expected and actual: %s", msg)
	}
	if b.Focused() != origin || len(b.Open()) != 1 {
		t.Fatalf("not restored after mismatch")
	}
}

func TestVerifyMismatchSettle(t *testing.T) {
	_, v, trigger := setup(t, mock.OpensTab("https://www.fakebook.com/shop"))
	v.MismatchSettle = 50 * time.Millisecond

	outcome, err := v.VerifyExternalNavigation(context.Background(), trigger, "facebook.com", 2*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if outcome.Verdict != navcheck.OriginMismatch {
		t.Fatalf("expected origin mismatch: %s", outcome)
	}
	if outcome.Elapsed > time.Second {
		t.Fatalf("a settled mismatch should not wait for the timeout: %s", outcome.Elapsed)
	}
}

func TestVerifySlowRedirectHop(t *testing.T) {
	b, _, trigger := setup(t, func(b *mock.Browser, from navcheck.ContextHandle) {
		b.Load(from, "https://t.co/abc")
		b.After(1200*time.Millisecond, func() { b.Load(from, "https://twitter.com/shop") })
	})
	v := navigation.New(b, nil)

	outcome, err := v.VerifyExternalNavigation(context.Background(), trigger, "twitter.com", 3*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if !outcome.Passed() || outcome.ObservedURL != "https://twitter.com/shop" {
		t.Fatalf("a slow hop within the timeout must verify: %s", outcome)
	}
	if b.URLOf(b.Focused()) != home {
		t.Fatalf("not taken back to %s", home)
	}
}

func TestVerifyTimeoutBoundsDetection(t *testing.T) {
	b, _, trigger := setup(t, nil)
	v := navigation.New(b, nil)

	timeout := 400 * time.Millisecond
	if timeout >= navcheck.DefaultDetectTimeout {
		t.Fatalf("timeout must be below the detect timeout")
	}
	outcome, err := v.VerifyExternalNavigation(context.Background(), trigger, "twitter.com", timeout)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if outcome.Verdict != navcheck.NavigationTimeout {
		t.Fatalf("expected navigation timeout: %s", outcome)
	}
	if outcome.Elapsed < timeout || outcome.Elapsed > timeout+500*time.Millisecond {
		t.Fatalf("detection must not outlast the timeout: %s", outcome.Elapsed)
	}
}

func TestVerifyTimeoutStartsAfterTrigger(t *testing.T) {
	link := mock.Link("late", mock.GoesToAfter(150*time.Millisecond, "https://www.facebook.com/shop"), navcheck.CSS("a.late"))
	link.Hidden = true
	b := mock.NewBrowser(home, &mock.Page{URL: home, Elements: []*mock.Element{link}})
	t.Cleanup(func() { b.Close() })
	b.After(300*time.Millisecond, func() { mock.Reveals(link)(b, "") })

	tracker := window.New(b)
	tracker.DetectTimeout = 60 * time.Millisecond
	tracker.PollInterval = poll
	v := navigation.New(b, tracker)
	v.PollInterval = poll

	spec := navcheck.MustLocatorSpec("late", navcheck.CSS("a.late"))
	trigger := navigation.ResolveAndClick(locate.New(b, poll), b, spec, 2*time.Second)

	outcome, err := v.VerifyExternalNavigation(context.Background(), trigger, "facebook.com", 250*time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if !outcome.Passed() {
		t.Fatalf("resolving the trigger must not use up the navigation timeout: %s", outcome)
	}
}

func TestVerifyLatePopup(t *testing.T) {
	b, v, trigger := setup(t, mock.OpensTabAfter(150*time.Millisecond, "https://www.facebook.com/"))

	outcome, err := v.VerifyExternalNavigation(context.Background(), trigger, "facebook.com", 400*time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if outcome.Verdict != navcheck.NavigationTimeout || outcome.Shape != navcheck.ShapeSameContext {
		t.Fatalf("expected same context timeout: %s", outcome)
	}
	if len(outcome.Unexpected) != 1 || !strings.Contains(outcome.Diagnostic, "opened after detection") {
		t.Fatalf("late context must be reported: %s", spew.Sdump(outcome))
	}
	if len(b.Open()) != 1 {
		t.Fatalf("late context must be closed: %v", b.Open())
	}
}

func TestVerifyNavigationTimeout(t *testing.T) {
	b, v, trigger := setup(t, nil)

	timeout := 200 * time.Millisecond
	outcome, err := v.VerifyExternalNavigation(context.Background(), trigger, "twitter.com", timeout)
	if err != nil {
		t.Fatalf("timeout is not a returned error: %s", err)
	}
	if outcome.Verdict != navcheck.NavigationTimeout || outcome.Restore != navcheck.Restored {
		t.Fatalf("expected restored navigation timeout: %s", outcome)
	}
	if outcome.Elapsed < timeout || outcome.Elapsed > timeout+300*time.Millisecond {
		t.Fatalf("timeout not honoured: %s", outcome.Elapsed)
	}
	timeoutErr := &navcheck.NavigationTimeoutErr{}
	if !errors.As(outcome.Err(), &timeoutErr) || timeoutErr.TriggerErr != nil {
		t.Fatalf("expected NavigationTimeoutErr without trigger error: %v", outcome.Err())
	}
	if b.Calls("NavigateBack") != 0 {
		t.Fatalf("nothing navigated, back must not be issued")
	}
}

func TestVerifyTriggerNotFound(t *testing.T) {
	b := mock.NewBrowser(home)
	defer b.Close()
	v := navigation.New(b, nil)
	spec := navcheck.MustLocatorSpec("pinterest", navcheck.ID("pin"))
	trigger := navigation.ResolveAndClick(locate.New(b, poll), b, spec, 30*time.Millisecond)

	outcome, err := v.VerifyExternalNavigation(context.Background(), trigger, "pinterest.com", time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if outcome.Verdict != navcheck.NavigationTimeout {
		t.Fatalf("expected navigation timeout got %s", outcome.Verdict)
	}
	timeoutErr := &navcheck.NavigationTimeoutErr{}
	if !errors.As(outcome.Err(), &timeoutErr) {
		t.Fatalf("expected NavigationTimeoutErr got %T", outcome.Err())
	}
	notFound := &navcheck.NotFoundErr{}
	if !errors.As(timeoutErr.TriggerErr, &notFound) {
		t.Fatalf("trigger error should be the NotFoundErr: %v", timeoutErr.TriggerErr)
	}
}

func TestVerifyRedirects(t *testing.T) {
	var inputs = []struct {
		name    string
		onClick func(b *mock.Browser, from navcheck.ContextHandle)
		shape   navcheck.Shape
	}{
		{"blank then redirect", mock.OpensTabRedirect(30*time.Millisecond, "https://www.instagram.com/shop"), navcheck.ShapeNewContext},
		{"delayed popup", mock.OpensTabAfter(20*time.Millisecond, "https://www.instagram.com/shop"), navcheck.ShapeNewContext},
		{"delayed same context", mock.GoesToAfter(20*time.Millisecond, "https://www.instagram.com/shop"), navcheck.ShapeSameContext},
		{"via shortener", func(b *mock.Browser, from navcheck.ContextHandle) {
			b.Load(from, "https://t.co/abc")
			b.After(20*time.Millisecond, func() { b.Load(from, "https://www.instagram.com/shop") })
		}, navcheck.ShapeSameContext},
	}

	for _, in := range inputs {
		b, v, trigger := setup(t, in.onClick)
		outcome, err := v.VerifyExternalNavigation(context.Background(), trigger, "INSTAGRAM.com", time.Second)
		if err != nil {
			t.Fatalf("%s: unexpected error: %s", in.name, err)
		}
		if !outcome.Passed() || outcome.Shape != in.shape {
			t.Fatalf("%s: expected verified %s got %s", in.name, in.shape, outcome)
		}
		if len(b.Open()) != 1 {
			t.Fatalf("%s: contexts left open %v", in.name, b.Open())
		}
	}
}

func TestVerifyMultiplePopups(t *testing.T) {
	b, v, trigger := setup(t, mock.OpensTabs("https://ads.example.net/", "https://www.linkedin.com/company/shop"))

	outcome, err := v.VerifyExternalNavigation(context.Background(), trigger, "linkedin.com", time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if !outcome.Passed() || len(outcome.Unexpected) != 1 {
		t.Fatalf("expected the newest popup verified with one unexpected: %s", spew.Sdump(outcome))
	}
	if len(b.Open()) != 1 {
		t.Fatalf("every popup should be closed: %v", b.Open())
	}
}

func TestVerifyRestoreFailed(t *testing.T) {
	b, v, trigger := setup(t, mock.OpensTab("https://www.facebook.com/"))
	origin := b.Focused()
	b.SwitchToFn = func(handle navcheck.ContextHandle) error {
		if handle == origin {
			return errors.New("target crashed")
		}
		return nil
	}

	outcome, err := v.VerifyExternalNavigation(context.Background(), trigger, "facebook.com", time.Second)
	if !navcheck.IsFatal(err) {
		t.Fatalf("expected fatal restore error got %v", err)
	}
	if outcome.Verdict != navcheck.Verified || outcome.Restore != navcheck.RestoreFailed {
		t.Fatalf("verdict and restore are independent: %s", outcome)
	}
	if outcome.Last() != navcheck.StateRestoreFailed || outcome.Passed() {
		t.Fatalf("unexpected trail %v", outcome.Trail)
	}
}

func TestVerifyCancelled(t *testing.T) {
	b, v, trigger := setup(t, nil)
	origin := b.Focused()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)
	outcome, err := v.VerifyExternalNavigation(ctx, trigger, "facebook.com", 5*time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation got %v", err)
	}
	if outcome.Restore != navcheck.Restored || b.Focused() != origin {
		t.Fatalf("cancelled verification must still restore: %s", outcome)
	}
}

func TestOriginMatches(t *testing.T) {
	var inputs = []struct {
		origin   string
		url      string
		fragment string
		match    bool
	}{
		{"https://www.facebook.com", "https://www.facebook.com/shop", "facebook.com", true},
		{"https://www.facebook.com", "https://www.facebook.com/shop", "FaceBook.COM", true},
		{"https://www.fakebook.com", "https://www.fakebook.com/facebook.com", "facebook.com", false},
		{"null", "https://www.youtube.com/", "youtube.com", true},
		{"https://example.com", "https://example.com/?ref=twitter.com", "twitter.com", false},
		{"https://twitter.com", "https://twitter.com/", "", false},
		{"https://www.facebook.com", "https://www.facebook.com/", "https", false},
		{"https://www.facebook.com", "https://www.facebook.com/", "s://", false},
		{"null", "https://www.youtube.com/", "https", false},
		{"http://127.0.0.1:8080", "http://127.0.0.1:8080/landing.html", "127.0.0.1", true},
	}

	for _, in := range inputs {
		if got := navigation.OriginMatches(in.origin, in.url, in.fragment); got != in.match {
			t.Fatalf("OriginMatches(%q, %q, %q) = %v", in.origin, in.url, in.fragment, got)
		}
	}
}
