// Package api exposes the game service over HTTP.
//
// Endpoints:
//
// Sessions:
//   - POST   /api/sessions                     create ({"config_id":"classic","seed":7}, both optional)
//   - GET    /api/sessions                     list (?sort=created|accessed&order=asc|desc&limit=N)
//   - GET    /api/sessions/unified             dashboard view (?sessionIds=a,b or ?configName=)
//   - POST   /api/sessions/import              resume from {"config_name":..,"snapshot":{..}}
//   - GET    /api/sessions/{id}                session with its current snapshot
//   - DELETE /api/sessions/{id}
//
// Play:
//   - GET  /api/sessions/{id}/state
//   - GET  /api/sessions/{id}/legal-moves?player=N
//   - POST /api/sessions/{id}/moves            {"player_id":0,"to":{"row":2,"col":1}}
//   - POST /api/sessions/{id}/step             play one round
//   - POST /api/sessions/{id}/autoplay         play until game over or a human must act
//   - POST /api/sessions/{id}/reset            restart with the same seed
//   - GET  /api/sessions/{id}/history          turn records (?page=&limit=&order=)
//   - GET  /api/sessions/{id}/export           snapshot as a download
//   - POST /api/replay/verify                  replay a snapshot's history and compare
//
// Catalog and archive:
//   - GET  /api/configs, POST /api/configs, GET /api/configs/{name}
//   - GET  /api/strategies
//   - GET  /api/leaderboard?limit=N
//   - GET  /api/games/recent?limit=N
//   - GET  /api/games/{id}
//
// Infrastructure:
//   - GET /healthz
//   - GET /metrics (when a metrics.Collector is given)
//   - GET /ws?session={id} upgrades to a websocket fed by the hub
//
// Errors are returned as {"error": "..."}. Missing sessions, presets and
// archived games map to 404. Illegal requests for a player map to 400.
// Requests that the game's current phase forbids map to 409, and a missing
// archive maps to 503.
package api
