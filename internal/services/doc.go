// Package services defines the [MetadataSource] interface for remote music catalogs and implements it for MusicBrainz.
//
// # MusicBrainz Implementation
//
// [MusicBrainzService] calls the ws/2 JSON API with a descriptive User-Agent. Every request waits on a
// [rate.Limiter] and runs under the HTTP client timeout, so a stuck remote cannot wedge a worker.
//
// # Caching
//
// Successful responses are stored in a [Cache] keyed by endpoint and query:
//   - [RedisCache] : go-redis backed, shared across processes, cleared with SCAN + DEL
//   - [MemoryCache] : in-process fallback when no Redis address is configured
//
// The cache-clear task calls [Cache.Clear] with an optional key prefix.
//
// # Error Handling
//
// Services use typed errors from shared package:
//   - [shared.ErrEntityNotFound] : 404 for the requested ID
//   - [shared.ErrTimeout] : client timeout or cancelled context
//   - [shared.ErrServiceUnavailable] : 503 or 429 from the server
//   - [shared.ErrAPIRequest] : any other transport or status failure
package services
