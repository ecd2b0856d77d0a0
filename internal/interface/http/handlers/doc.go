// Package handlers holds the HTTP building blocks shared by the API
// server: dependency health checks and request middleware.
//
// # Health checks
//
// CompositeHealthChecker runs named probes in parallel, each under its
// own timeout, and reports unhealthy when any probe fails:
//
//	checker := handlers.NewCompositeHealthChecker("v1.0.0")
//	checker.AddCheck("database", handlers.NewDatabaseCheck(pool))
//	checker.AddCheck("cache", handlers.NewCacheCheck(cache))
//
//	status := checker.Check(ctx)
//
// # Middleware
//
//	// API key authentication for staff endpoints
//	auth := handlers.NewAPIKeyAuth("X-API-Key", []string{"secret-key"})
//	protected := auth.Middleware(myHandler)
//
//	// Hardening headers and body size cap
//	secure := handlers.SecurityHeadersMiddleware(myHandler)
//	capped := handlers.RequestSizeLimitMiddleware(1 << 20)(myHandler)
package handlers
