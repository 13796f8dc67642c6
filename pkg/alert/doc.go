// Package alert delivers operational alerts to a webhook endpoint.
//
// Alerts are queued and delivered by a background worker so callers on the
// turn hot path never block on HTTP. When the queue is full new alerts are
// dropped and counted rather than applying backpressure. A nil *Dispatcher
// is valid and discards everything, so call sites do not need to guard on
// alerting being enabled.
package alert
