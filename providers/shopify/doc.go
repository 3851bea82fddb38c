// Package shopify talks to the Shopify Admin GraphQL API on behalf of
// webhook effects: it writes order metafields and mints voucher codes.
package shopify
