// Package store adapts the Airtable base to the sync domain: it lists the
// active accounts and writes profile results, errors and posts back.
//
// Every write is keyed so that repeating it is harmless. Profile results
// patch the account's own row, and posts are matched on their ID column
// before a row is created.
package store
