package store

import (
	"os"
	"sort"

	badger "github.com/dgraph-io/badger/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gitlab.com/navcheck/navcheck"
)

// OutcomeStore persists navigation outcomes, one key per graph predicate
type OutcomeStore struct {
	Store      *badger.DB
	filepath   string
	predicates []*GraphField
}

// NewOutcomeStore at filepath
func NewOutcomeStore(filepath string) *OutcomeStore {
	return &OutcomeStore{filepath: filepath}
}

// Init opens the database, recovering from an unclean shutdown
func (s *OutcomeStore) Init() error {
	var err error

	if err = os.MkdirAll(s.filepath, 0755); err != nil {
		return err
	}

	s.Store, err = badger.Open(badger.DefaultOptions(s.filepath))

	if errors.Is(err, badger.ErrTruncateNeeded) {
		log.Warn().Msg("there was a failure re-opening database, trying to recover")
		opts := badger.DefaultOptions(s.filepath)
		opts.Truncate = true
		s.Store, err = badger.Open(opts)
	}

	if err != nil {
		return errors.Wrap(err, "opening outcome store")
	}
	s.predicates = DiscoverPredicates(&navcheck.NavigationOutcome{})
	return nil
}

// AddOutcome stores or overwrites an outcome
func (s *OutcomeStore) AddOutcome(outcome *navcheck.NavigationOutcome) error {
	if len(outcome.ID) == 0 {
		return errors.New("outcome has no id")
	}
	return s.Store.Update(func(txn *badger.Txn) error {
		return EncodeStruct(txn, s.predicates, outcome.ID, outcome)
	})
}

// GetOutcome by id
func (s *OutcomeStore) GetOutcome(id []byte) (*navcheck.NavigationOutcome, error) {
	outcome := &navcheck.NavigationOutcome{}
	err := s.Store.View(func(txn *badger.Txn) error {
		return DecodeStruct(txn, s.predicates, id, outcome)
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

// Outcomes of a run ordered by start time, every run when runID is empty
func (s *OutcomeStore) Outcomes(runID string, limit int) ([]*navcheck.NavigationOutcome, error) {
	outcomes := make([]*navcheck.NavigationOutcome, 0)
	err := s.Store.View(func(txn *badger.Txn) error {
		ids, err := RunIterator(txn, runID, limit)
		if err != nil {
			return err
		}
		for _, id := range ids {
			outcome := &navcheck.NavigationOutcome{}
			if err := DecodeStruct(txn, s.predicates, id, outcome); err != nil {
				return err
			}
			outcomes = append(outcomes, outcome)
		}
		return nil
	})
	sort.SliceStable(outcomes, func(i, j int) bool {
		return outcomes[i].Started.Before(outcomes[j].Started)
	})
	return outcomes, err
}

// Runs and how many outcomes each stored
func (s *OutcomeStore) Runs() (map[string]int, error) {
	var counts map[string]int
	err := s.Store.View(func(txn *badger.Txn) error {
		var err error
		counts, err = RunCounts(txn)
		return err
	})
	return counts, err
}

// Close the store
func (s *OutcomeStore) Close() error {
	if s.Store == nil {
		return nil
	}
	return s.Store.Close()
}
