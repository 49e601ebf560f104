// Package classifier turns citizen feedback text into a sentiment score, a
// sentiment label, up to three topic tags and an optional place name.
//
// Classification is a pure function over an immutable Lexicon and a pluggable
// PolarityScorer. It never fails: malformed or empty input degrades to a
// neutral result with no tags.
package classifier
