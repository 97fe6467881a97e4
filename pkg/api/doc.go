// Package api serves the agent's local HTTP surface. It binds loopback
// by default and exposes health, status, the last resolution, fresh
// device facts, a sysinfo report and a trigger for an immediate
// reconciliation cycle.
//
// # Usage
//
//	server := api.NewServer(api.Config{}, agent, logger)
//	go func() {
//		if err := server.Start(ctx); err != nil {
//			logger.Error().Err(err).Msg("API server failed")
//		}
//	}()
//
// Start blocks until the context is cancelled and shuts the server
// down gracefully. The Controller interface decouples the API from the
// daemon; anything that can report status and run a resolution can
// serve it.
//
// # Endpoints
//
//	GET  /v1/healthy     liveness check
//	GET  /v1/status      agent identity and last resolution summary
//	GET  /v1/resolution  last full resolution document
//	GET  /v1/facts       fresh device facts probe
//	GET  /v1/device      sysinfo report
//	POST /v1/resolve     run a reconciliation cycle now
//	GET  /metrics        Prometheus metrics, when configured
package api
