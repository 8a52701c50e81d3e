// Package cli locates the agent CLI binary and builds the command line and
// environment it is started with.
//
// Discovery searches, in order: an explicit path, the system PATH, and
// common install directories (/usr/local/bin, /usr/bin, ~/.local/bin,
// ~/.claude/local). The version reported by "<cli> -v" is compared against
// MinimumVersion and a warning is logged when it is older.
//
// The process is always started in streaming mode: prompts and control
// responses travel over stdin as newline-delimited JSON.
package cli
