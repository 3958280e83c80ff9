// Package core holds the hook registry, the webhook subscription and delivery
// contracts, and the services that dispatch events and deliver them. Storage,
// queue and HTTP adapters depend on this package; core does not depend on them.
package core
