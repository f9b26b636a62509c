// Package wire implements the FileHarbor framing protocol.
//
// # Frame Structure
//
// Every message on the wire is a frame:
//
//	HEADER (60 bytes) || JSON PAYLOAD (L bytes) || BINARY BODY (B bytes)
//
// The header is fixed-width so a reader can read exactly HeaderSize bytes,
// then L, then B, with no framing ambiguity:
//
//	Offset  Size  Field          Description
//	------  ----  -------------  ----------------------------------
//	0       4     Magic          'F' 'H' 'B' 'R'
//	4       2     Version        Protocol version (currently 1)
//	6       1     Kind           1=REQUEST 2=RESPONSE 3=DATA
//	7       1     Command        Command code
//	8       2     Status         Status code (0 in requests)
//	10      2     Reserved       Zero
//	12      4     PayloadLen     L, max 64 KiB
//	16      8     BodyLen        B, max 16 MiB
//	24      4     Reserved       Zero
//	28      32    Digest         SHA-256(payload || body)
//
// All fields are big-endian. Receivers recompute the digest over the payload
// and body and compare before acting on either; a mismatch is a fatal
// protocol error for the connection, as are oversize lengths and a bad magic.
//
// # Payload Encoding
//
// Payloads are JSON documents with snake_case keys. Encoding is deterministic
// enough for tests but is not canonicalized on the wire: the digest covers
// the bytes actually sent.
package wire
