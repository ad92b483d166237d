package store_test

import (
	"os"
	"reflect"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"gitlab.com/navcheck/navcheck"
	"gitlab.com/navcheck/store"
)

func TestOutcomeStore(t *testing.T) {
	os.RemoveAll("testdata/outcomes")
	s := store.NewOutcomeStore("testdata/outcomes")
	if err := s.Init(); err != nil {
		t.Fatalf("error init store: %s\n", err)
	}
	defer s.Close()

	outcome := testMakeOutcome("run-1", "facebook")
	outcome.Unexpected = []navcheck.ContextHandle{"tab-3"}
	if err := s.AddOutcome(outcome); err != nil {
		t.Fatalf("error adding: %s\n", err)
	}

	result, err := s.GetOutcome(outcome.ID)
	if err != nil {
		t.Fatalf("error reading back outcome: %s\n", err)
	}

	if string(outcome.ID) != string(result.ID) {
		t.Fatalf("%v != %v\n", outcome.ID, result.ID)
	}
	if result.Verdict != navcheck.Verified || result.Shape != navcheck.ShapeNewContext || result.Restore != navcheck.Restored {
		t.Fatalf("enums not restored: %s", spew.Sdump(result))
	}
	if !reflect.DeepEqual(outcome.Trail, result.Trail) || !reflect.DeepEqual(outcome.Unexpected, result.Unexpected) {
		t.Fatalf("slices not restored: %s", spew.Sdump(result))
	}
	if result.Elapsed != outcome.Elapsed || !result.Started.Equal(outcome.Started) {
		t.Fatalf("times not restored: %s", spew.Sdump(result))
	}
	if result.Label != "facebook" || result.ObservedURL != outcome.ObservedURL || result.Diagnostic != outcome.Diagnostic {
		t.Fatalf("strings not restored: %s", spew.Sdump(result))
	}
}

func TestOutcomeStoreRuns(t *testing.T) {
	path := "testdata/runs"
	os.RemoveAll(path)

	s := store.NewOutcomeStore(path)
	if err := s.Init(); err != nil {
		t.Fatalf("error init store: %s\n", err)
	}
	defer s.Close()

	for i := 0; i < 5; i++ {
		run := "run-a"
		if i%2 == 1 {
			run = "run-b"
		}
		outcome := testMakeOutcome(run, "check")
		outcome.Started = time.Now().Add(time.Duration(i) * time.Second)
		if err := s.AddOutcome(outcome); err != nil {
			t.Fatalf("error adding: %s\n", err)
		}
	}

	runA, err := s.Outcomes("run-a", 0)
	if err != nil {
		t.Fatalf("error listing: %s\n", err)
	}
	if len(runA) != 3 {
		t.Fatalf("expected 3 outcomes for run-a got %d\n", len(runA))
	}
	for i := 1; i < len(runA); i++ {
		if runA[i].Started.Before(runA[i-1].Started) {
			t.Fatalf("outcomes not ordered by start time")
		}
	}

	all, err := s.Outcomes("", 0)
	if err != nil || len(all) != 5 {
		t.Fatalf("expected all 5 outcomes got %d %v\n", len(all), err)
	}

	limited, err := s.Outcomes("", 2)
	if err != nil || len(limited) != 2 {
		t.Fatalf("expected limit of 2 got %d %v\n", len(limited), err)
	}

	runs, err := s.Runs()
	if err != nil {
		t.Fatalf("error counting runs: %s\n", err)
	}
	if runs["run-a"] != 3 || runs["run-b"] != 2 {
		t.Fatalf("unexpected run counts %v\n", runs)
	}
}

func testMakeOutcome(run, label string) *navcheck.NavigationOutcome {
	outcome := navcheck.NewNavigationOutcome(label, "facebook.com")
	outcome.RunID = run
	outcome.Shape = navcheck.ShapeNewContext
	outcome.Verdict = navcheck.Verified
	outcome.Restore = navcheck.Restored
	outcome.StartURL = "https://shop.example.com/"
	outcome.ObservedURL = "https://www.facebook.com/shop"
	outcome.ObservedOrigin = "https://www.facebook.com"
	outcome.Origin = "tab-1"
	outcome.Opened = "tab-2"
	outcome.Scope = navcheck.OutOfScope
	outcome.Trail = append(outcome.Trail, navcheck.StateTriggerSent, navcheck.StateNewContextDetected)
	outcome.Elapsed = 1500 * time.Millisecond
	outcome.Diagnostic = "none"
	outcome.Started = outcome.Started.Round(0).Truncate(time.Millisecond)
	return outcome
}
