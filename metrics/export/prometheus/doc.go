// Package prometheus renders quizcore metrics in Prometheus text exposition format.
//
// [NewPrometheusExporter] accepts a [quizcore.Engine] and exposes an [http.Handler].
// Counter names are prefixed quizcore_*_total; the single histogram is
// quizcore_score_latency_seconds. Engines also report a quizcore_active_sessions gauge.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry. Callers mount the Handler.
//   - Mutate engine state.
package prometheus
