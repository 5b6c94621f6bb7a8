// Package wire implements the tracker's framed-message codec: a
// byte-oriented stream of length-prefixed ints, strings, and byte blobs,
// matching the tracker⇆worker protocol's host-native framing.
package wire
