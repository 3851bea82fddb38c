// Package core contains the webhook ingestion domain: notifications, verified
// events, ingestion records, configuration, error taxonomy and the effect
// contracts. Adapters (HTTP, SQL, queue, provider clients) depend on this
// package; core must not depend on any of them.
package core
