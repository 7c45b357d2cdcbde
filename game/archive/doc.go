// Package archive stores finished games and derives a leaderboard from them.
//
// Two implementations exist: Memory, for tests and single-process servers,
// and Postgres, backed by a pgx connection pool. Both key games by session id,
// so recording the same session twice replaces the earlier entry.
//
// Seats are ranked by label: "human" for human seats and the strategy name
// for computer seats, so the leaderboard compares strategies against each
// other and against people.
package archive
