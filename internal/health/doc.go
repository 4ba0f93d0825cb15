// Package health provides liveness and readiness probes for the key
// daemon.
//
// Liveness answers "is the process running" and never consults
// dependencies. Readiness runs every registered check against the
// store, the event pipeline and the secrets provider, and flips to
// unhealthy while the daemon is draining so load balancers stop
// routing new work during shutdown.
//
// # Usage
//
//	checker := health.NewChecker(version, logger)
//	checker.RegisterCheck("store", func(ctx context.Context) health.Check {
//	    if err := st.Ping(ctx); err != nil {
//	        return health.Check{Status: health.StatusUnhealthy, Message: err.Error()}
//	    }
//	    return health.Check{Status: health.StatusHealthy}
//	})
//
//	checker.Register(engine)
package health
