// Package errors provides structured, actionable error messages for the
// pipwire CLI.
//
// Each error has a unique code (e.g., "P003") that maps to a short message,
// a longer explanation and a hint. Protocol errors are mapped to codes by
// their class, so a malformed field always reports P003 no matter which
// command hit it.
//
// # Usage
//
//	if _, err := reg.Encode(id, rec); err != nil {
//	    errors.PrintError(os.Stderr, errors.FromError(err, "P011"))
//	}
//	// Output:
//	// error[P004] protocol: Unknown packet
//	//   cause  protocol: packet "jump" not registered
//	//   detail No packet is registered under this id.
//	//   hint   Run `pipwire schema` to list the packet ids.
package errors
