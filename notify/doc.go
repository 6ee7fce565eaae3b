// Package notify computes and throttles transfer progress signals: a
// sliding-window instant rate, a throttled progressed() edge trigger for
// UI refresh, and a final average rate once a transfer ends.
package notify
