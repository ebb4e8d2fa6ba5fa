package eventlog

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/jose-valero/ranked-engine/internal/domain"
)

// Notifier writes every engine event as a structured log line. It doubles as
// the analytics feed during development and as the fallback when no other
// sink is configured.
type Notifier struct {
	log zerolog.Logger
}

func New(log zerolog.Logger) *Notifier {
	return &Notifier{log: log.With().Str("component", "events").Logger()}
}

func (n *Notifier) Publish(_ context.Context, ev domain.Event) {
	e := n.log.Info().Str("event", ev.EventKind())
	switch v := ev.(type) {
	case domain.QueueStatusChanged:
		e = e.Str("entry", v.EntryID).Strs("players", v.Players).Str("status", v.Status)
	case domain.ReadyCheckStarted:
		e = e.Str("proposal", v.ProposalID).Strs("players", v.Players).Dur("expires_in", v.ExpiresIn)
	case domain.ReadyCheckResolved:
		e = e.Str("proposal", v.ProposalID).Str("state", string(v.State))
	case domain.RatingUpdated:
		e = e.Str("player", v.PlayerID).Str("match", v.MatchID).Int("delta", v.Delta).Int("mmr", v.MMR).Int("elo", v.Elo)
	case domain.TierChanged:
		e = e.Str("player", v.PlayerID).Str("from", string(v.From)).Str("to", string(v.To)).Int("rank", v.Rank)
	case domain.SmurfFlagged:
		e = e.Str("player", v.Flag.PlayerID).Float64("score", v.Flag.Score)
	}
	e.Msg("event")
}

// Fanout publishes to every member in order.
type Fanout []interface {
	Publish(ctx context.Context, ev domain.Event)
}

func (f Fanout) Publish(ctx context.Context, ev domain.Event) {
	for _, n := range f {
		n.Publish(ctx, ev)
	}
}
