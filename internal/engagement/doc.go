// Package engagement implements the per-page engagement session: scroll depth,
// dwell time, view counting, read-metrics beacons, A/B impressions, and web
// vitals forwarding.
//
// Every browser input is an injected capability (Clock, Viewport,
// FrameScheduler, signal sources) and every output goes through a Transport or
// AnalyticsSink, so trackers run unchanged inside the relay and in tests.
// Trackers never return errors on their reactive paths; malformed input makes
// them no-op and one-shot guarantees are enforced with OneShot flags.
package engagement
