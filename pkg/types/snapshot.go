package types

// Session snapshot (the "session" field of session-updated):
//   id: string
//   code: string               // ^[A-Z0-9]{6}$
//   mode: "strict" | "average"
//   status: "waiting" | "active" | "finished"
//   onBreak: boolean
//   facilitatorAbsent: boolean
//   participants: [{ id, name, facilitator, connected, hasVoted,
//                    vote? }]  // vote omitted while redacted
//   backlog: [{ id, name, description?, estimate, completed,
//               currentRound, roundHistory? }]
//   currentFeatureIndex: number
//   progress: { total, completed, remaining, percentage, currentIndex }
//   createdAt: timestamp

// Saved session (the "snapshot" field of session-saved / coffee-break,
// persisted opaquely by the store and replayed on resume):
//   sessionId: string
//   code: string
//   mode: "strict" | "average"
//   createdAt, savedAt: timestamps
//   participants: [{ id, name, facilitator }]
//   completedFeatures: [{ id, name, description?, estimate, completed }]
//   remainingFeatures: same shape, estimate null
//   currentFeatureIndex: number
