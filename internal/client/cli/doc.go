// Package cli provides the interactive notesync command-line client.
//
// It wires configuration, the local store, the remote backend, the sync
// orchestrator with its scheduler and the media watcher, and serves a REPL
// for editing notes and controlling synchronization. Background cycles report
// through orchestrator events; the prompt shows account, passphrase and
// connectivity state.
package cli
