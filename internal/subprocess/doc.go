// Package subprocess runs the agent CLI as a child process and speaks the
// framed protocol over its stdin and stdout.
package subprocess
