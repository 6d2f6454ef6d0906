/*
Package api exposes the engine over HTTP for the admin dashboard.

	GET  /api/projects              all discovered projects
	POST /api/projects/refresh      force a discovery refresh
	GET  /api/projects/{name}       one project
	GET  /api/projects/{name}/logs  recent logs, ?tail=N
	POST /api/projects/{name}/{action}
	GET  /api/operations            audit log, ?project= &limit=
	GET  /api/operations/{id}
	GET  /api/events                websocket event feed
	GET  /health /ready /metrics

Action endpoints return 200 on success and 409 with the operation result on
failure; the result body says what went wrong either way. The compose file
used by up/build/pull always comes from the discovered snapshot, never from
the request.
*/
package api
