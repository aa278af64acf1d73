// Package codec encodes the five preference value types (bool, int32, int64,
// float32, string) into the byte slices stored by a db.KVDB engine.
//
// Every encoded value starts with a one byte Type tag followed by the payload:
//
//	bool     tag | 0x00 or 0x01
//	int32    tag | 4 bytes big endian
//	int64    tag | 8 bytes big endian
//	float32  tag | 4 bytes big endian IEEE 754
//	string   tag | raw UTF-8 bytes
//
// Decoding a value as a different type fails with ErrTypeMismatch, so a store
// never silently reinterprets a value written under another type.
package codec
