// Package errors provides coded, actionable errors for the peerlink CLI.
//
// Each code (e.g., "P100") maps to a category, a short message, and
// optionally a longer explanation and a hint:
//
//	err := errors.New("P200").Wrap(bindErr)
//	errors.PrintError(os.Stderr, err)
//	// ERROR P200: Could not open transport
//	//
//	//   The listen address may already be in use or the remote host may be
//	//   unreachable.
//	//
//	//   Cause: listen udp :7777: bind: address already in use
//	//
//	//   Hint: Pick another port with --listen or check --connect
package errors
