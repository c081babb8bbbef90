package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
)

// ErrUnknownPayloadTag is returned when decoding a payload whose tag has no schema.
var ErrUnknownPayloadTag = errors.New("unknown payload tag")

// PayloadTag keys the payload schema: protocol x kind.
type PayloadTag struct {
	Protocol Protocol
	Kind     EventKind
}

// String renders the tag as "protocol:kind".
func (t PayloadTag) String() string {
	return string(t.Protocol) + ":" + string(t.Kind)
}

// ParsePayloadTag parses "protocol:kind".
func ParsePayloadTag(s string) (PayloadTag, error) {
	protocol, kind, ok := strings.Cut(s, ":")
	if !ok || protocol == "" || !EventKind(kind).IsValid() {
		return PayloadTag{}, fmt.Errorf("%w: %q", ErrUnknownPayloadTag, s)
	}
	return PayloadTag{Protocol: Protocol(protocol), Kind: EventKind(kind)}, nil
}

// Payload is the tagged union of per-event details. Consumers switch on the
// concrete type: *OpenPayload, *FeeClaimPayload, *ClosePayload, *UnknownPayload.
type Payload interface {
	Tag() PayloadTag
	payload()
}

// OpenPayload details a position_open event.
type OpenPayload struct {
	Protocol        Protocol     `json:"protocol"`
	ReceiptMint     string       `json:"receiptMint"`
	PositionAddress string       `json:"positionAddress,omitempty"`
	Deposited       []TokenDelta `json:"deposited"`
	UnpricedMints   []string     `json:"unpricedMints,omitempty"`
}

// FeeClaimPayload details a fee_claim event.
type FeeClaimPayload struct {
	Protocol        Protocol     `json:"protocol"`
	PositionAddress string       `json:"positionAddress,omitempty"`
	Collected       []TokenDelta `json:"collected"`
	UnpricedMints   []string     `json:"unpricedMints,omitempty"`
}

// ClosePayload details a position_close event.
type ClosePayload struct {
	Protocol        Protocol     `json:"protocol"`
	ReceiptMint     string       `json:"receiptMint"`
	PositionAddress string       `json:"positionAddress,omitempty"`
	Withdrawn       []TokenDelta `json:"withdrawn"`
	UnpricedMints   []string     `json:"unpricedMints,omitempty"`
}

// UnknownPayload keeps the raw evidence of a recognized but unclassifiable
// transaction for later inspection or override.
type UnknownPayload struct {
	Protocol       Protocol     `json:"protocol"`
	Reason         string       `json:"reason"`
	MatchedProgram string       `json:"matchedProgram"`
	Deltas         []TokenDelta `json:"deltas"`
}

func (p *OpenPayload) Tag() PayloadTag {
	return PayloadTag{Protocol: p.Protocol, Kind: KindPositionOpen}
}

func (p *FeeClaimPayload) Tag() PayloadTag {
	return PayloadTag{Protocol: p.Protocol, Kind: KindFeeClaim}
}

func (p *ClosePayload) Tag() PayloadTag {
	return PayloadTag{Protocol: p.Protocol, Kind: KindPositionClose}
}

func (p *UnknownPayload) Tag() PayloadTag {
	return PayloadTag{Protocol: p.Protocol, Kind: KindUnknown}
}

func (*OpenPayload) payload()     {}
func (*FeeClaimPayload) payload() {}
func (*ClosePayload) payload()    {}
func (*UnknownPayload) payload()  {}

// payloadSchemas lists every tag that can be decoded.
var payloadSchemas = func() map[PayloadTag]func() Payload {
	schemas := make(map[PayloadTag]func() Payload)
	for _, p := range []Protocol{ProtocolOrcaWhirlpools, ProtocolRaydiumCLMM, ProtocolMeteoraDLMM, ProtocolMeteoraDAMMV2} {
		RegisterPayloadProtocol(schemas, p)
	}
	return schemas
}()

// RegisterPayloadProtocol adds the four kind schemas of protocol to schemas.
func RegisterPayloadProtocol(schemas map[PayloadTag]func() Payload, protocol Protocol) {
	schemas[PayloadTag{protocol, KindPositionOpen}] = func() Payload { return &OpenPayload{} }
	schemas[PayloadTag{protocol, KindFeeClaim}] = func() Payload { return &FeeClaimPayload{} }
	schemas[PayloadTag{protocol, KindPositionClose}] = func() Payload { return &ClosePayload{} }
	schemas[PayloadTag{protocol, KindUnknown}] = func() Payload { return &UnknownPayload{} }
}

// RegisterProtocol makes payloads of a custom protocol decodable.
// It must be called during initialization, before any decoding.
func RegisterProtocol(protocol Protocol) {
	RegisterPayloadProtocol(payloadSchemas, protocol)
}

type payloadEnvelope struct {
	Tag  string          `json:"tag"`
	Body json.RawMessage `json:"body"`
}

// EncodePayload serializes p into a tagged envelope. A nil payload encodes to nil.
func EncodePayload(p Payload) ([]byte, error) {
	if p == nil {
		return nil, nil
	}
	body, err := sonic.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal payload body: %w", err)
	}
	out, err := sonic.Marshal(payloadEnvelope{Tag: p.Tag().String(), Body: body})
	if err != nil {
		return nil, fmt.Errorf("marshal payload envelope: %w", err)
	}
	return out, nil
}

// DecodePayload parses a tagged envelope. Empty input decodes to nil.
func DecodePayload(data []byte) (Payload, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}

	var env payloadEnvelope
	if err := sonic.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal payload envelope: %w", err)
	}

	tag, err := ParsePayloadTag(env.Tag)
	if err != nil {
		return nil, err
	}
	newBody, ok := payloadSchemas[tag]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPayloadTag, env.Tag)
	}

	p := newBody()
	if err := sonic.Unmarshal(env.Body, p); err != nil {
		return nil, fmt.Errorf("unmarshal payload %s: %w", env.Tag, err)
	}
	if p.Tag() != tag {
		return nil, fmt.Errorf("payload body protocol does not match tag %s", env.Tag)
	}
	return p, nil
}

// ClonePayload deep-copies a payload.
func ClonePayload(p Payload) Payload {
	switch v := p.(type) {
	case *OpenPayload:
		c := *v
		c.Deposited = append([]TokenDelta(nil), v.Deposited...)
		c.UnpricedMints = append([]string(nil), v.UnpricedMints...)
		return &c
	case *FeeClaimPayload:
		c := *v
		c.Collected = append([]TokenDelta(nil), v.Collected...)
		c.UnpricedMints = append([]string(nil), v.UnpricedMints...)
		return &c
	case *ClosePayload:
		c := *v
		c.Withdrawn = append([]TokenDelta(nil), v.Withdrawn...)
		c.UnpricedMints = append([]string(nil), v.UnpricedMints...)
		return &c
	case *UnknownPayload:
		c := *v
		c.Deltas = append([]TokenDelta(nil), v.Deltas...)
		return &c
	}
	return nil
}
