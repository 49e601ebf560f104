// Package app provides the application service layer.
//
// Orchestrates use cases: feedback intake and statistics, poll creation and voting,
// trending-topic alerts, the dashboard snapshot.
// Sits between HTTP handlers and domain repositories. Depends on domain interfaces, not concrete implementations.
package app
