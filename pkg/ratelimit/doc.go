// Package ratelimit throttles calls to the external Instagram API and to
// Airtable.
//
// Governor is the rate governor for the Instagram proxy. It enforces a
// rolling one-minute budget of requests_per_minute calls (plus a one-second
// window so bursts stay near requests_per_minute/60 per second) and minimum
// spacing between account calls and between post calls. It never rejects a
// call; it only delays it. Construct one per process and pass it to every
// component that talks to the API.
//
// TokenBucket refills continuously and is used to keep Airtable requests
// under the per-base limit. SlidingWindow is the exact request log behind
// the Governor. RedisWindow keeps the same log in Redis when several
// processes share one API key.
//
// All limiters take a Clock; FakeClock makes them deterministic in tests.
package ratelimit
