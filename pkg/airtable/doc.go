// Package airtable is a small client for the Airtable REST API: paged
// listing with formulas and field selection, and batched create/update.
//
// Requests are throttled with a token bucket (Airtable allows five requests
// per second per base) and retried on 429, 409, 5xx and network errors.
// Failures surface as *errors.StoreError.
package airtable
