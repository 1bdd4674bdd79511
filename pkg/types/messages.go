package types

// Client -> Server (JSON over /ws, one envelope, "type" selects the variant)
//
// start-session: {}
//
// submit-vote:
//   card: "1"|"2"|"3"|"5"|"8"|"13"|"20"|"40"|"100"|"?"|"coffee"
//
// new-round: {}            // facilitator retry after a failed round
//
// next-feature: {}         // facilitator only
//
// end-session: {}          // facilitator only, finishes early
//
// load-backlog:
//   features: [{id?, name, description?}, ...]
//
// add-feature:
//   name: string
//   description?: string
//
// save-session: {}         // snapshot to the store, best effort
//
// export-results: {}       // final results + statistics, private reply
//
// chat-message:
//   text: string
//
// timer-update:            // facilitator only
//   running: boolean
//   remainingSec: number
//
// timer-reset:             // facilitator only
//   remainingSec: number
//
// leave-session: {}        // explicit leave; a bare disconnect only marks
//                          // the participant unreachable

// Server -> Client
//
// session-joined (private):
//   joined: { sessionId, code, participantId }
//
// session-updated (broadcast):
//   version: number
//   session: snapshot      // votes redacted while a round is collecting
//
// vote-progress (broadcast):
//   progress: { round, votesIn, expected }
//
// round-result (broadcast, exactly once per completed round):
//   result: { round, votes: [{participantId, name, value}],
//             validated, estimate, method, needsRevote, newRound? }
//
// new-round / feature-advanced / session-finished / coffee-break /
// session-saved / results-exported / chat-message / timer-update:
//   see the matching payload field on the envelope
//
// error (private, to the originator of the failed operation):
//   error: { code, message }
