// Package sdp implements the client side of the Bluetooth Service
// Discovery Protocol, limited to what an A2DP source needs: a
// ServiceSearchAttribute request for the Audio Sink class and the
// interpretation of the returned records as AudioServiceRecord values.
//
// Data elements are decoded into Element trees; UUIDs are normalised to
// 128-bit uuid.UUID values on the Bluetooth base UUID so 16, 32 and 128-bit
// encodings compare equal.
//
// AudioServiceRecord values round-trip through JSON so they can be
// persisted per device; ParseAudioServiceRecord validates the JSON against
// an embedded schema before decoding it.
package sdp
