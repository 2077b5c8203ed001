package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/digkill/faithtrain/internal/models"
)

type SessionResult struct {
	Recorded   bool                `json:"recorded"`
	Credited   int64               `json:"credited"`
	Multiplier int64               `json:"multiplier,omitempty"`
	Balance    int64               `json:"balance"`
	Streak     *models.StreakState `json:"streak"`
}

// TrainingService is the entry point for a completed daily session.
type TrainingService struct {
	store   Store
	streaks *StreakService
	ledger  *PointsLedger
	points  int64
	log     *slog.Logger
}

func NewTrainingService(store Store, streaks *StreakService, ledger *PointsLedger, pointsPerActivity int64, log *slog.Logger) *TrainingService {
	return &TrainingService{store: store, streaks: streaks, ledger: ledger, points: pointsPerActivity, log: log}
}

// Complete records today's activity of kind. Only the first completion of
// a kind per day earns points; the streak is refreshed either way.
func (s *TrainingService) Complete(ctx context.Context, userID int64, kind models.ActivityKind) (*SessionResult, error) {
	if userID <= 0 {
		return nil, ErrNotAuthenticated
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("activity %q: %w", kind, ErrInvalidInput)
	}

	res := &SessionResult{}
	err := s.store.InTx(ctx, func(tx Store) error {
		recorded, err := tx.Streaks().RecordActivity(ctx, userID, kind, s.streaks.Today())
		if err != nil {
			return fmt.Errorf("record activity: %w", err)
		}
		res.Recorded = recorded
		if !recorded || s.points <= 0 {
			return nil
		}
		credit, err := s.ledger.credit(ctx, tx, userID, s.points, "session:"+string(kind))
		if err != nil {
			return err
		}
		res.Credited = credit.Applied
		res.Multiplier = credit.Multiplier
		res.Balance = credit.Balance
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !res.Recorded || res.Credited == 0 {
		balance, err := s.ledger.Balance(ctx, userID)
		if err != nil {
			return nil, err
		}
		res.Balance = balance
	} else {
		s.ledger.hub.Publish(StateChange{UserID: userID, Topic: TopicBalance, Payload: res.Balance})
	}

	// The session is committed at this point; a failed refresh only leaves
	// the streak view to be recomputed on read.
	streak, err := s.streaks.Refresh(ctx, userID)
	if err != nil {
		s.log.Error("refresh streak after session", "user", userID, "err", err)
		if streak, err = s.streaks.Get(ctx, userID); err != nil {
			s.log.Error("read streak after session", "user", userID, "err", err)
		}
	}
	res.Streak = streak
	return res, nil
}
