// Command hashtoken produces bcrypt hashes for the AUTH_TOKEN_HASH setting
// of the preview watcher, so the bearer token does not have to be stored in
// plain text.
//
// Usage:
//
//	hashtoken <command>
//
// Commands:
//
//	hash    Prompt for a token twice without echo and print its bcrypt hash.
//	verify  Prompt for a token and check it against AUTH_TOKEN_HASH.
//
// Environment:
//
//	AUTH_TOKEN_HASH - hash checked by the verify command
//	BCRYPT_COST     - cost for new hashes (default 12)
package main
