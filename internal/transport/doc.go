// Package transport implements the framed, newline-delimited JSON link to
// the peer process.
//
// A Transport turns outgoing JSON values into one line each and turns the
// incoming byte stream into a sequence of Frames. A line that does not decode
// is logged and skipped; it never ends the sequence. End of stream ends the
// sequence cleanly and is the Router's signal to tear down.
//
// Stream is the concrete Transport over any reader/writer pair. The
// subprocess package layers process supervision on top of it.
package transport
