// Package session implements XDCC negotiation: the state machine that turns
// IRC events into a DCC transfer, and the Outcome taxonomy every attempt
// ends with.
//
// A Machine is fed events one at a time by the polling loop:
//
//	m := session.NewMachine(p, client, opener, session.DefaultConfig())
//	for ev := range client.Events() {
//		if o := m.Handle(ev); o.Terminal() {
//			return o
//		}
//	}
//
// On idle polls the loop calls CheckReplies, which resends the pack request
// after ReplyTimeout and gives up with NoReply once MaxResends is exceeded.
//
// The machine never touches sockets or files; it issues chat commands through
// a Commander and opens the data channel through an Opener.
package session
