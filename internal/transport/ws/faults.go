package ws

import "errors"

// Connection-fatal fault classes. Handlers and the codec wrap errors with
// one of these sentinels; the connection loop closes the socket when it
// sees them. Business rejections never use these, they travel back to the
// client as error-coded payloads on the open connection.
var (
	// ErrProtocolFault marks malformed or out-of-order frames, including
	// business opcodes arriving before the key exchange finished.
	ErrProtocolFault = errors.New("protocol fault")

	// ErrCryptoFault marks frames that fail decryption or decryption-mode
	// checks for the session's current phase.
	ErrCryptoFault = errors.New("crypto fault")
)
