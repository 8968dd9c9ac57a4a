// Package api hosts the status server that lets operators watch generation
// runs. Routes:
//   - GET /healthz for liveness probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/runs and /v1/runs/{run_id} for run history via the
//     store.RunRepository interface.
package api
