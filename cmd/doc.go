// Package cmd defines and implements the CLI commands for the festcrawl executable.
//
// Architecture overview:
//   - Configuration: internal/config layers defaults, an optional config file, FESTCRAWL_* environment variables
//     and the persistent flags (--seeds, --state, --output, --max-depth, --batch-size). The root command resolves
//     it once, builds the zap logger and the internal/app container, and stores the container in the command context.
//   - Batches: internal/scheduler pops up to batch-size entries off the frontier, fetches them concurrently through
//     the retrying fetch strategy (colly first, chromedp on 403 or exhausted retries), extracts records with the
//     per-host dispatcher, pushes discovered links and the next page, then saves the checkpoint. A batch is never
//     interrupted; signals are honored between batches.
//   - Persistence: the checkpoint is one JSON document written atomically to a file (or kept in Redis). Records and
//     errors are appended as JSON Lines and optionally mirrored to Postgres and Pub/Sub. Raw pages can be archived
//     to a local directory or GCS.
//   - Observability: zap logs (optionally rotated to a file), Prometheus counters served with /v1/status on the
//     status server when --addr is set, and OpenTelemetry spans around batches and fetches.
//
// Commands:
//   - run: one batch, or batches until the frontier drains with --continuous.
//   - status: summarize the saved checkpoint.
//   - preview: fetch and extract a URL list once, without crawling.
//   - smoke: offline self-checks, plus a live fetch with --online.
package cmd
