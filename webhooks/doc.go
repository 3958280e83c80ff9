// Package webhooks holds the receiving side of the outbound webhook contract.
//
// A Processor verifies the X-Webhook-Signature HMAC, rejects stale
// timestamps, decodes the delivery envelope and dedupes redeliveries by
// X-Webhook-Delivery before handing the event to a Handler. Handler errors
// answer 500 so the sender retries the delivery.
package webhooks
