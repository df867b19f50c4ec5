package security

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"

	"github.com/tutu-network/tutuledger/internal/domain"
)

// SigningBytes returns the RFC 8785 canonical JSON of the event without its
// signature. Every node must hash the same bytes regardless of how the event
// was re-encoded in transit.
func SigningBytes(ev domain.Event) ([]byte, error) {
	raw, err := json.Marshal(ev.Unsigned())
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	canon, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonicalize event: %w", err)
	}
	return canon, nil
}

// SignEvent sets ev.Author to the keypair's id and fills ev.Signature.
func SignEvent(kp *Keypair, ev domain.Event) (domain.Event, error) {
	ev.Author = kp.PublicKeyHex()
	msg, err := SigningBytes(ev)
	if err != nil {
		return ev, err
	}
	ev.Signature = hex.EncodeToString(kp.Sign(msg))
	return ev, nil
}

// Ed25519Verifier checks that ev.Signature was produced by ev.Author.
type Ed25519Verifier struct{}

// VerifyEvent implements domain.SignatureVerifier.
func (Ed25519Verifier) VerifyEvent(ev domain.Event) error {
	pub, err := DecodePublicKey(ev.Author)
	if err != nil {
		return fmt.Errorf("%w: author: %v", domain.ErrBadSignature, err)
	}
	sig, err := hex.DecodeString(ev.Signature)
	if err != nil || len(sig) == 0 {
		return fmt.Errorf("%w: signature is not hex", domain.ErrBadSignature)
	}
	msg, err := SigningBytes(ev)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrBadSignature, err)
	}
	if !Verify(msg, sig, pub) {
		return domain.ErrBadSignature
	}
	return nil
}
