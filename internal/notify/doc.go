// Package notify delivers bundle-ready messages to WebSocket clients.
//
// Clients connect on a path that carries their id. A notification for a
// connected client is written immediately; one for an absent client is
// stored as a pending download and replayed the next time that client
// connects.
package notify
