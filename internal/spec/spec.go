package spec

// Steganography constants
const (
	HEADER_BITS   = 32 // Bits for storing payload length
	HEADER_SIZE   = 4  // Bytes for storing payload length
	BITS_PER_BYTE = 8  // Standard byte size
	CHANNELS      = 3  // RGB channels used per pixel, alpha is never touched
)

// Security constants
const (
	SALT_SIZE    = 16     // Salt for PBKDF2, stored in clear in front of the token
	NONCE_SIZE   = 12     // GCM nonce size
	KEY_SIZE     = 32     // AES-256 key size
	TAG_SIZE     = 16     // GCM authentication tag
	PBKDF2_ITERS = 200000 // PBKDF2 iterations

	// Envelope token layout: [VERSION(1)][TIMESTAMP(8)][NONCE(12)][CIPHERTEXT][TAG(16)]
	TOKEN_VERSION   = 0x80
	TIMESTAMP_SIZE  = 8
	TOKEN_PREFIX    = 1 + TIMESTAMP_SIZE + NONCE_SIZE
	TOKEN_OVERHEAD  = TOKEN_PREFIX + TAG_SIZE
	PAYLOAD_MINIMUM = SALT_SIZE + TOKEN_OVERHEAD
)
