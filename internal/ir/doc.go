// Package ir provides the canonical value representation shared by every
// configuration domain.
//
// Field values stored by the config engine are IRValue trees. They are
// serialized with MarshalCanonical (RFC 8785 JSON, NFC strings) so that two
// devices holding the same logical state produce byte-identical payloads.
//
// Key constraints:
//   - NO float types anywhere - integers are int64
//   - NO null - absence is modelled by omitting a key
//   - Byte strings travel as lowercase hex IRString values
//
// ir imports nothing internal.
package ir
