// Package server exposes the task queue over a small JSON HTTP API.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation registers method-qualified patterns on an [http.ServeMux],
// so wildcards like {id} are available through [http.Request.PathValue].
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
//
// # Endpoints
//
// [NewAPI] wires:
//
//	POST /api/tasks              create a task (201), or return the active duplicate when unique is set (200)
//	GET  /api/tasks              list tasks; filters: status, type, entity_mbid, entity_id, limit
//	GET  /api/tasks/stats        counts by status and type
//	GET  /api/tasks/{id}         one task
//	POST /api/tasks/{id}/cancel  cancel a pending or running task
//	POST /api/tasks/{id}/retry   retry a failed task
//	GET  /api/unmatched          unmatched tracks with their suggestions
//	GET  /healthz                database ping
//
// # Errors
//
// Errors are returned as {"error": "..."}. Missing tasks are 404, illegal lifecycle transitions and
// exhausted retries are 409, bad types or payloads are 400. Anything else is a logged 500.
package server
