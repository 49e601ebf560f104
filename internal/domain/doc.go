// Package domain defines the core domain types and interfaces.
//
// Concept-oriented files (errors.go, feedback.go, poll.go, alert.go) hold shared types and the
// repository/cache contracts the application layer depends on. Besides the sentiment threshold
// helpers there is no implementation code here, just contracts.
package domain
