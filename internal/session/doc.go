// Package session stores conversation transcripts as JSONL files under
// the waveline data directory.
//
// # Layout
//
// Each project gets one directory keyed by a hash of its absolute path:
//
//	<dataDir>/projects/<hash>/
//	    project.json      marker recording the project path
//	    2025-11-16.jsonl  one transcript file per calendar day
//
// The hash is the first 20 characters of the base64url-encoded SHA-256
// of the absolute project path, so transcripts survive project renames
// only when the path is stable, and unrelated projects never collide.
//
// # Entries
//
// A transcript line is one types.Entry: a user message, an assistant
// message with token usage, a tool call, or a tool result. Lines are
// compact JSON. Appends run under a cross-process file lock and fsync
// before returning, so concurrent writers (a running server plus CLI
// invocations) never interleave partial lines.
//
// # Reading
//
// The reader streams line by line and skips anything it cannot parse,
// logging the line number at warn level. A corrupt line loses that one
// entry, never the rest of the file. Lines carrying only a "role" are
// normalized to the equivalent "type".
//
// Token accounting sums the usage counters of every entry belonging to
// a session id, across however many daily files the session spans.
package session
