// Package poll repairs historical poll option data and applies votes.
//
// Options have been stored in several shapes over time: bare strings, maps
// missing an id or a vote count, and the canonical {id, text, votes} form.
// Normalize turns any of them into the canonical form, and Vote and Tally
// only ever operate on normalized options.
package poll
