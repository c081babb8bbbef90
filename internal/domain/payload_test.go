package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayload_EnvelopeCarriesTag(t *testing.T) {
	p := &ClosePayload{
		Protocol:    ProtocolRaydiumCLMM,
		ReceiptMint: "receiptMint",
		Withdrawn: []TokenDelta{
			{Mint: "mintA", Symbol: "USDC", Decimals: 6, Amount: decimal.RequireFromString("120.5")},
		},
	}

	data, err := EncodePayload(p)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"tag":"raydium_clmm:position_close"`)

	decoded, err := DecodePayload(data)
	require.NoError(t, err)

	got, ok := decoded.(*ClosePayload)
	require.True(t, ok, "expected *ClosePayload, got %T", decoded)
	assert.Equal(t, "receiptMint", got.ReceiptMint)
	require.Len(t, got.Withdrawn, 1)
	assert.True(t, got.Withdrawn[0].Amount.Equal(decimal.RequireFromString("120.5")))
}

func TestDecodePayload_RejectsUnknownTag(t *testing.T) {
	_, err := DecodePayload([]byte(`{"tag":"uniswap:position_open","body":{}}`))
	require.ErrorIs(t, err, ErrUnknownPayloadTag)

	_, err = DecodePayload([]byte(`{"tag":"orca_whirlpools:swap","body":{}}`))
	require.ErrorIs(t, err, ErrUnknownPayloadTag)
}

func TestDecodePayload_RejectsProtocolMismatch(t *testing.T) {
	_, err := DecodePayload([]byte(`{"tag":"orca_whirlpools:fee_claim","body":{"protocol":"raydium_clmm"}}`))
	require.Error(t, err)
}

func TestDecodePayload_Empty(t *testing.T) {
	p, err := DecodePayload(nil)
	require.NoError(t, err)
	assert.Nil(t, p)

	data, err := EncodePayload(nil)
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestRegisterProtocol(t *testing.T) {
	RegisterProtocol("test_amm")

	data, err := EncodePayload(&UnknownPayload{Protocol: "test_amm", Reason: "mixed_flows"})
	require.NoError(t, err)

	p, err := DecodePayload(data)
	require.NoError(t, err)
	assert.Equal(t, PayloadTag{Protocol: "test_amm", Kind: KindUnknown}, p.Tag())
}

func TestEvent_CloneIsDeep(t *testing.T) {
	pos := "P1"
	e := &Event{
		Signature:  "sig",
		PositionID: &pos,
		Payload:    &FeeClaimPayload{Protocol: ProtocolOrcaWhirlpools, Collected: []TokenDelta{{Mint: "m"}}},
	}

	c := e.Clone()
	*c.PositionID = "P2"
	c.Payload.(*FeeClaimPayload).Collected[0].Mint = "other"

	assert.Equal(t, "P1", *e.PositionID)
	assert.Equal(t, "m", e.Payload.(*FeeClaimPayload).Collected[0].Mint)
}
