package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/pkg/errors"
	"gitlab.com/navcheck/engine"
	"gitlab.com/navcheck/mock"
	"gitlab.com/navcheck/navcheck"
)

const home = "https://shop.example.com/"

func testConfig() *navcheck.Config {
	cfg := &navcheck.Config{
		URL:               home,
		CandidateTimeout:  navcheck.Duration(40 * time.Millisecond),
		NavigationTimeout: navcheck.Duration(300 * time.Millisecond),
		PollInterval:      navcheck.Duration(5 * time.Millisecond),
		DetectTimeout:     navcheck.Duration(50 * time.Millisecond),
		RestoreTimeout:    navcheck.Duration(200 * time.Millisecond),
		MismatchSettle:    navcheck.Duration(30 * time.Millisecond),
		IgnoredURLs:       []string{"facebook.com"},
		ExcludedURLs:      []string{"/logout"},
	}
	cfg.ApplyDefaults()
	return cfg
}

func locators(kv ...string) []navcheck.LocatorConfig {
	l := make([]navcheck.LocatorConfig, 0)
	for i := 0; i+1 < len(kv); i += 2 {
		l = append(l, navcheck.LocatorConfig{Kind: kv[i], Query: kv[i+1]})
	}
	return l
}

func testBrowser() *mock.Browser {
	instagram := mock.Link("instagram", mock.OpensTab("https://www.instagram.com/shop"), navcheck.CSS("a.ig"))
	instagram.Hidden = true
	page := &mock.Page{URL: home, Elements: []*mock.Element{
		mock.Link("facebook", mock.OpensTab("https://www.facebook.com/shop"), navcheck.LinkText("Facebook")),
		mock.Link("youtube", mock.GoesTo("https://www.yootube.com/"), navcheck.ID("yt")),
		mock.Link("burger", mock.Reveals(instagram), navcheck.CSS(".burger")),
		instagram,
		{Label: "newsletter", Hidden: true, Matches: []navcheck.Selector{navcheck.Name("newsletter")}},
	}}
	return mock.NewBrowser("about:blank", page)
}

func opener(b *mock.Browser) engine.DriverOpener {
	return func(ctx context.Context, cfg *navcheck.Config) (navcheck.Driver, error) {
		return b, nil
	}
}

func TestEngineRun(t *testing.T) {
	cfg := testConfig()
	cfg.Checks = []navcheck.CheckConfig{
		{Name: "facebook", Target: locators("id", "fb", "link_text", "Facebook"), Expect: "facebook.com"},
		{Name: "twitter", Target: locators("css", "a.tw"), Expect: "twitter.com", Optional: true},
		{Name: "youtube", Target: locators("id", "yt"), Expect: "youtube.com"},
		{Name: "instagram", Prepare: [][]navcheck.LocatorConfig{locators("css", ".burger")}, Target: locators("css", "a.ig"), Expect: "instagram.com"},
		{Name: "newsletter", Target: locators("name", "newsletter")},
		{Name: "logout", Page: "https://shop.example.com/logout", Target: locators("id", "x")},
	}
	cfg.ApplyDefaults()

	b := testBrowser()
	defer b.Close()
	s := mock.MakeMockOutcomeStore()
	e := engine.New(cfg, s, opener(b))
	if err := e.Init(context.Background()); err != nil {
		t.Fatalf("error init: %s", err)
	}
	if err := e.Run(context.Background()); err != nil {
		t.Fatalf("unexpected run error: %s", err)
	}

	expected := map[string]navcheck.CheckStatus{
		"facebook":   navcheck.CheckPassed,
		"twitter":    navcheck.CheckSkipped,
		"youtube":    navcheck.CheckFailed,
		"instagram":  navcheck.CheckPassed,
		"newsletter": navcheck.CheckPassed,
		"logout":     navcheck.CheckSkipped,
	}
	results := e.Reporter().Results()
	if len(results) != len(expected) {
		t.Fatalf("expected %d results got %d", len(expected), len(results))
	}
	for _, result := range results {
		if result.Status != expected[result.Name] {
			t.Fatalf("%s: expected %s got %s: %v", result.Name, expected[result.Name], result.Status, result.Err)
		}
	}

	youtube := results[2]
	mismatch := &navcheck.OriginMismatchErr{}
	if !errors.As(youtube.Err, &mismatch) {
		t.Fatalf("youtube should fail with an origin mismatch: %v", youtube.Err)
	}
	if results[0].Target.Index != 1 {
		t.Fatalf("facebook should resolve by its fallback: %s", spew.Sdump(results[0].Target))
	}

	if len(s.Outcomes) != 3 {
		t.Fatalf("expected 3 stored outcomes got %d", len(s.Outcomes))
	}
	for _, o := range s.Outcomes {
		if o.RunID != e.RunID() || o.Label == "" {
			t.Fatalf("outcome missing run or label: %s", o)
		}
	}
	if s.Outcomes[0].Scope != navcheck.OutOfScope {
		t.Fatalf("facebook outcome should be out of scope got %s", s.Outcomes[0].Scope)
	}
	if b.URLOf(b.Focused()) != home || len(b.Open()) != 1 {
		t.Fatalf("session not back at baseline: %s %v", b.URLOf(b.Focused()), b.Open())
	}
}

func TestEngineAbortsAfterRestoreFailure(t *testing.T) {
	cfg := testConfig()
	cfg.Checks = []navcheck.CheckConfig{
		{Name: "facebook", Target: locators("link_text", "Facebook"), Expect: "facebook.com"},
		{Name: "youtube", Target: locators("id", "yt"), Expect: "youtube.com"},
	}
	cfg.ApplyDefaults()

	b := testBrowser()
	defer b.Close()
	origin := b.Focused()
	b.SwitchToFn = func(handle navcheck.ContextHandle) error {
		if handle == origin {
			return errors.New("target crashed")
		}
		return nil
	}

	e := engine.New(cfg, mock.MakeMockOutcomeStore(), opener(b))
	err := e.Run(context.Background())
	if !navcheck.IsFatal(err) {
		t.Fatalf("expected fatal run error got %v", err)
	}
	results := e.Reporter().Results()
	if results[0].Status != navcheck.CheckAborted || results[1].Status != navcheck.CheckAborted {
		t.Fatalf("expected both checks aborted: %s %s", results[0].Status, results[1].Status)
	}
	if b.Calls("Click") != 1 {
		t.Fatalf("no check should run after a failed restore, %d clicks", b.Calls("Click"))
	}
}

func TestEngineStoreErrorsAreLogged(t *testing.T) {
	cfg := testConfig()
	cfg.Checks = []navcheck.CheckConfig{
		{Name: "facebook", Target: locators("link_text", "Facebook"), Expect: "facebook.com"},
	}
	cfg.ApplyDefaults()

	b := testBrowser()
	defer b.Close()
	s := mock.MakeMockOutcomeStore()
	s.AddOutcomeFn = func(outcome *navcheck.NavigationOutcome) error {
		return errors.New("disk full")
	}

	e := engine.New(cfg, s, opener(b))
	if err := e.Run(context.Background()); err != nil {
		t.Fatalf("store errors must not fail the run: %s", err)
	}
	if !s.AddOutcomeCalled || e.Reporter().Results()[0].Status != navcheck.CheckPassed {
		t.Fatalf("expected a passed check that was stored")
	}
}
