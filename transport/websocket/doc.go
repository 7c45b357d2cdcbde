// Package websocket pushes live game updates to browser and bot clients.
//
// A central Hub owns every connection. Clients attach to one session via
// ServeWS and receive JSON messages for that session only:
//
//	{"session_id":"3f2a9c1b","event":"round","round":{...},"game_state":{...}}
//	{"session_id":"3f2a9c1b","event":"state_update","game_state":{...}}
//
// Round broadcasts are queued without blocking, so BroadcastRound can be
// registered directly as an orchestrator round listener. When the queue is
// full the message is dropped and a warning is logged; a client whose own
// buffer is full is disconnected.
//
// Usage:
//
//	hub := websocket.NewHub(logger)
//	go hub.Run(ctx)
//	sessions.OnRound(hub.BroadcastRound)
//
// Incoming frames are read only to keep the connection alive. Moves are
// submitted over the REST API.
package websocket
