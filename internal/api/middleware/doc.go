// Package middleware provides HTTP middleware for the sandbox service.
//
//   - CORS: cross-origin resource sharing via gin-contrib/cors
//   - RateLimit: per-IP token buckets, idle clients evicted after IdleTTL
//   - GlobalRateLimit: one token bucket for every client
//
// Rejected requests get 429 with a Retry-After header.
//
// Example Usage:
//
//	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
//	router.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
package middleware
