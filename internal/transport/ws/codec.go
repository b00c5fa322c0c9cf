package ws

import (
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/arklim/social-platform-messenger/internal/infra/security"
)

// Codec turns payload structs into wire frames and back. The outbound
// pipeline is json, then zstd, then AES once the session has a key. The
// compression step is best-effort: when the compressed form is not
// strictly smaller the original bytes ship instead, so the inbound side
// decompresses speculatively and keeps the input on failure.
//
// Decoding is gated by session phase. Before the key exchange completes
// only RSA frames (or the plaintext key-exchange frame itself) are
// accepted; afterwards only AES frames are. A frame encrypted for the
// wrong phase is a crypto fault and costs the connection.
type Codec struct {
	keypair    *security.Keypair
	compressor *zstd.Encoder
	expander   *zstd.Decoder
}

// NewCodec builds a codec around the process keypair. The zstd
// encoder and decoder are stateless in EncodeAll/DecodeAll mode and
// shared by every connection.
func NewCodec(keypair *security.Keypair) (*Codec, error) {
	compressor, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	expander, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &Codec{keypair: keypair, compressor: compressor, expander: expander}, nil
}

// Encode serializes payload for the wire. A nil cipher leaves the frame
// in compressed plaintext, used only for the public-key frame sent
// before any symmetric key exists.
func (c *Codec) Encode(cipher *security.SessionCipher, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	data := c.compress(raw)

	if cipher == nil {
		return data, nil
	}

	encrypted, err := cipher.Encrypt(data)
	if err != nil {
		return nil, fmt.Errorf("%w: encrypt frame: %v", ErrCryptoFault, err)
	}
	return encrypted, nil
}

// Decode recovers the JSON bytes of an inbound frame according to the
// session phase carried by cipher (nil means the key exchange has not
// completed yet).
func (c *Codec) Decode(cipher *security.SessionCipher, frame []byte) ([]byte, error) {
	if len(frame) == 0 {
		return nil, fmt.Errorf("%w: empty frame", ErrProtocolFault)
	}

	if cipher != nil {
		plain, err := cipher.Decrypt(frame)
		if err != nil {
			return nil, fmt.Errorf("%w: aes decrypt: %v", ErrCryptoFault, err)
		}
		return c.expand(plain), nil
	}

	// Pre-handshake the only expected frame is the session-key delivery,
	// RSA-encrypted with our public key. Plaintext is tolerated for
	// clients that send the key exchange uncompressed and unencrypted.
	if plain, err := c.keypair.Decrypt(frame); err == nil {
		return c.expand(plain), nil
	}

	candidate := c.expand(frame)
	if !json.Valid(candidate) {
		return nil, fmt.Errorf("%w: frame is neither rsa nor plaintext", ErrCryptoFault)
	}
	return candidate, nil
}

// Opcode peeks the routing tag without decoding the full payload.
func (c *Codec) Opcode(data []byte) (OpCode, error) {
	var envelope struct {
		OpCode *uint8 `json:"opCode"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return 0, fmt.Errorf("%w: parse envelope: %v", ErrProtocolFault, err)
	}
	if envelope.OpCode == nil {
		return 0, fmt.Errorf("%w: envelope has no opcode", ErrProtocolFault)
	}
	return OpCode(*envelope.OpCode), nil
}

func (c *Codec) compress(data []byte) []byte {
	compressed := c.compressor.EncodeAll(data, nil)
	if len(compressed) >= len(data) {
		return data
	}
	return compressed
}

func (c *Codec) expand(data []byte) []byte {
	expanded, err := c.expander.DecodeAll(data, nil)
	if err != nil {
		return data
	}
	return expanded
}
