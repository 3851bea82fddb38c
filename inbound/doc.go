// Package inbound exposes the webhook pipeline over HTTP with gin.
//
// The response status is decided by the pipeline before any downstream work
// starts; effects are dispatched only after the response has been written.
package inbound
