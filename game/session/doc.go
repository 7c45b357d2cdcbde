// Package session provides session management for Knight's Trail.
//
// The session package implements:
//   - Thread-safe session storage and retrieval
//   - Unique session ID generation
//   - One orchestrator per session, with round fan-out to listeners
//   - Persistence to JSON files or Redis
//   - Session cleanup and expiration
//
// Core Types:
//
// Manager is the main session manager that handles all session operations.
// Each session owns an orchestrator.Orchestrator built from a seeded ruleset
// or restored from a snapshot.
//
// Session Identifiers:
//
// Generated ids are the first eight hex digits of a random UUID. Callers may
// choose their own ids made of letters, digits, '-' and '_'. Lookups are
// case-insensitive.
//
// Persistence:
//
// FilePersistence writes one indented JSON file per session; RedisPersistence
// stores msgpack values under a key prefix with an optional TTL. Both store
// the full engine snapshot, including the generator position, so a reloaded
// game resumes exactly. With persistence configured the manager saves a
// session when it is created and after every round, and loads sessions it
// does not hold in memory on demand.
//
// Usage:
//
//	persistence, _ := session.NewFilePersistence("sessions")
//	manager := session.NewManagerWithPersistence(persistence, registry, logger)
//	manager.OnRound(func(id string, r orchestrator.RoundResult) { ... })
//
//	sess, err := manager.Create("", "classic", rules)
//	if err != nil {
//		log.Fatal(err)
//	}
//	sess, err = manager.Get(sess.ID)
//
// Cleanup:
//
// CleanupExpiredSessions stops and drops idle sessions from memory; their
// persisted copies remain and are reloaded on the next Get.
package session
