// Package ingest runs sync cycles.
//
// A cycle lists the active accounts from the store and processes them one at
// a time: fetch the profile, optionally fetch posts page by page, then write
// the profile to the account row and upsert each post. A failing account is
// logged, recorded on its row and skipped. Listing failures, rejected
// credentials and rate governor assertions end the cycle with an error.
//
// Cancellation is honoured between accounts only. With a checkpoint manager
// configured, completed accounts are remembered so an interrupted cycle can
// be resumed without repeating them.
package ingest
