package collab

import (
	"context"

	"github.com/rs/zerolog/log"
)

// reconcile removes c from every structure in one loop step and announces
// the departure. Each step tolerates c already being partly or wholly gone.
func (st *State) reconcile(c *Conn, reason string) Outcome {
	if !st.live(c) {
		return Outcome{}
	}
	delete(st.conns, c.ID)
	c.close(reason)

	st.Presence.Unregister(c.ID)

	// Every channel is scanned, not just those joined this session, since
	// boards are also joined automatically at connect time.
	var sends []Instruction
	for _, boardID := range st.Rooms.RemoveConn(c.ID) {
		sends = append(sends, toBoard(boardID, EventOnlineUsersUpdate, st.onlineUsersUpdate(boardID)))
	}

	for _, cleared := range st.Editing.RemoveUser(c.UserID) {
		sends = append(sends, toBoard(cleared.BoardID, EventUserStoppedEditing, EditingPayload{
			CardID:    cleared.CardID,
			User:      c.actor(),
			Timestamp: st.now(),
		}))
	}

	notice := st.userNotice(c)
	boards := st.boards

	return Outcome{
		Sends: sends,
		Effect: func(ctx context.Context) Continuation {
			accessible, err := boards.ListAccessible(ctx, c.UserID)
			return func(_ *State) Outcome {
				if err != nil {
					log.Warn().Err(err).Str("user_id", c.UserID.String()).Msg("collab: disconnect list boards")
					return Outcome{}
				}
				out := make([]Instruction, 0, len(accessible))
				for _, b := range accessible {
					out = append(out, toBoard(b.ID, EventUserDisconnected, notice))
				}
				return Outcome{Sends: out}
			}
		},
	}
}
