// Package main hosts the quayside deployment tool entrypoint.
//
// Architecture overview:
//   - Recipes: internal/recipe describes the image variants (standard,
//     render, bundled) as ordered build stages and renders them to
//     Dockerfiles. Dependency layers always precede the source copy so
//     code-only changes reuse the cached engine layers.
//   - Provisioning: internal/provision installs the OS dependency set
//     and the browser engine on a host filesystem, records a completion
//     marker for idempotent re-runs, and launch-verifies the engine via
//     Chromedp before any build depends on it.
//   - Assembly: internal/assemble drives the Docker Engine API to turn
//     a rendered recipe into a tagged image, failing closed on any
//     daemon-side build error.
//   - Runtime: internal/runtimecfg resolves the serving port from the
//     environment at startup; internal/supervisor keeps a fixed pool of
//     gunicorn workers alive, distinguishing startup-fatal exits from
//     crashes worth restarting; internal/probe watches the service's
//     health endpoint with a startup grace period.
//   - Releases: internal/release applies idempotent schema migrations
//     through pgx and only then refreshes the service container, so a
//     failed migration never puts traffic on an incompatible schema.
//   - Plumbing: Viper populates config from env/files (QUAYSIDE_*
//     overrides); zap provides structured logging; Prometheus metrics
//     are exported on the status server's /metrics handler; release
//     records can be archived to memory, local disk, or GCS, with
//     optional Pub/Sub deploy events.
//
// Run locally: go run ./cmd/quayside serve --config config.yaml (or
// rely solely on env overrides). The supervised service reads PORT at
// startup; the tool itself serves status on server.port.
package main
