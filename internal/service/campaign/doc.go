// Package campaign implements the campaign lifecycle: creation, starting
// a run on a dedicated worker, cancellation, and persisting results.
package campaign
