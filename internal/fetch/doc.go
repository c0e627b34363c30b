// Package fetch copies artifacts from the network to disk. Fetches are
// idempotent: an artifact already present at its destination is never
// downloaded again. Transfers stream into a ".part" file that is renamed
// onto the destination only after the declared size and SHA-1 check out,
// so an interrupted download can never be mistaken for a complete one.
package fetch
