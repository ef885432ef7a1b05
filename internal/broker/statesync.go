package broker

import "context"

// Synchronizer reconciles a broker's stored connected flag with the state
// the orchestrator observes.
//
// It is the only writer of the connected column after a broker is created.
type Synchronizer struct {
	repo Repository
	log  Logger
}

// NewSynchronizer creates a synchronizer over the given repository.
// A nil logger disables logging.
func NewSynchronizer(repo Repository, log Logger) *Synchronizer {
	if log == nil {
		log = noopLogger{}
	}
	return &Synchronizer{repo: repo, log: log}
}

// SetConnected writes a broker's connected flag.
//
// With verifyCurrent set, the stored flag is read first and an identical
// value skips the write entirely, keeping repeated calls idempotent and
// the update noise down. Two concurrent calls for the same broker can
// interleave between read and write; the window is accepted and not
// guarded by a transaction.
//
// Returns ErrBrokerNotFound when the broker does not exist.
func (s *Synchronizer) SetConnected(ctx context.Context, brokerID string, connected, verifyCurrent bool) error {
	if verifyCurrent {
		current, err := s.repo.ConnectedFlag(ctx, brokerID)
		if err != nil {
			return err
		}
		if current == connected {
			s.log.Debug("connected flag already current",
				"broker_id", brokerID,
				"connected", connected,
			)
			return nil
		}
	}

	if err := s.repo.SetConnected(ctx, brokerID, connected); err != nil {
		return err
	}

	s.log.Info("broker connected flag updated",
		"broker_id", brokerID,
		"connected", connected,
	)
	return nil
}
