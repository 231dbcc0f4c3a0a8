package nodes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/clinic-appointment-agent/agent/contract"
	statex "github.com/tanpawarit/clinic-appointment-agent/agent/state"
)

// LoadOrCreateState resumes the thread (or starts it) and opens a turn for
// the incoming message.
func LoadOrCreateState(ctx context.Context, in *GraphState, store statex.Store) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	st, err := loadOrCreateState(ctx, store, in.ThreadID, in.Identity, in.Now)
	if err != nil {
		return nil, err
	}

	in.RunStart = len(st.Messages)
	if err := st.BeginTurn(in.Text, in.Now); err != nil {
		return nil, err
	}
	st.Query = in.Text
	in.Session = st

	log.Debug().
		Str("thread_id", in.ThreadID).
		Int("turns", st.Turns).
		Msg("turn started")
	return in, nil
}

func loadOrCreateState(ctx context.Context, store statex.Store, threadID string, identity int64, now time.Time) (*statex.SessionState, error) {
	st, err := store.Load(ctx, threadID)
	if err == nil {
		if err := st.CheckIdentity(identity); err != nil {
			return nil, err
		}
		return st, nil
	}
	if !errors.Is(err, statex.ErrStateNotFound) {
		return nil, err
	}
	return statex.NewSessionState(threadID, identity, now), nil
}
