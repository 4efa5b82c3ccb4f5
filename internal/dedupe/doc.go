// Package dedupe drops webhook deliveries that were already handled. The chat
// platform retries deliveries it considers unacknowledged, so the same message
// id can arrive more than once.
package dedupe
