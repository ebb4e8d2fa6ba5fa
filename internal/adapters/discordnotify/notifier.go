package discordnotify

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/jose-valero/ranked-engine/internal/domain"
)

// Notifier posts moderation-relevant engine events to a Discord channel.
// Only smurf flags and tier changes are interesting to moderators; every
// other event kind is dropped here and served by other notifier fanout
// members instead.
type Notifier struct {
	session *discordgo.Session
	channel string
	log     zerolog.Logger
}

func New(session *discordgo.Session, channelID string, log zerolog.Logger) *Notifier {
	return &Notifier{
		session: session,
		channel: channelID,
		log:     log.With().Str("component", "discordnotify").Logger(),
	}
}

func (n *Notifier) Publish(_ context.Context, ev domain.Event) {
	var msg string
	switch e := ev.(type) {
	case domain.SmurfFlagged:
		msg = fmt.Sprintf("🚩 **Smurf flag** `%s` score=%.2f\n%s",
			e.Flag.PlayerID, e.Flag.Score, evidenceList(e.Flag.Evidence))
	case domain.TierChanged:
		msg = fmt.Sprintf("📈 `%s` moved %s → %s (division %d)", e.PlayerID, e.From, e.To, e.Rank)
	default:
		return
	}
	if _, err := n.session.ChannelMessageSend(n.channel, msg); err != nil {
		n.log.Warn().Err(err).Str("kind", ev.EventKind()).Msg("discord publish")
	}
}

func evidenceList(ev []string) string {
	out := ""
	for _, e := range ev {
		out += "• " + e + "\n"
	}
	return out
}
