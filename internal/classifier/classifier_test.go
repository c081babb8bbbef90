package classifier

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-position-tracker/internal/domain"
	"solana-position-tracker/internal/solana"
)

const (
	testWallet  = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"
	testPool    = "HJPjoWUrhoZzkNfRpHuieeFk9WcZWjwy6PBjZ81ngndJ"
	testReceipt = "mSoLzYCxHdYgdzU16g5QSh3i5K3z3KZK7ytfqcJm7So"
	testBonk    = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"
)

// newTx builds a successful transaction in which wallet is the fee payer and
// programID is invoked at the top level with the pool account.
func newTx(sig, programID string) *solana.Transaction {
	return &solana.Transaction{
		Slot:      250000000,
		Signature: sig,
		BlockTime: 1700000000,
		Meta: &solana.TransactionMeta{
			Fee:          5000,
			PreBalances:  []uint64{2_000_000_000},
			PostBalances: []uint64{2_000_000_000 - 5000},
		},
		Message: &solana.TransactionMessage{
			AccountKeys: []solana.AccountKey{{Address: testWallet, Signer: true, Writable: true}},
			Instructions: []solana.Instruction{
				{ProgramID: programID, Accounts: []string{testPool, testWallet}},
			},
		},
	}
}

// addToken records a token account; "" for pre or post means the account
// did not exist at that point.
func addToken(tx *solana.Transaction, index int, mint, owner string, decimals int, pre, post string) {
	if pre != "" {
		tx.Meta.PreTokenBalances = append(tx.Meta.PreTokenBalances, solana.TokenBalance{
			AccountIndex: index, Mint: mint, Owner: owner, Amount: pre, Decimals: decimals,
		})
	}
	if post != "" {
		tx.Meta.PostTokenBalances = append(tx.Meta.PostTokenBalances, solana.TokenBalance{
			AccountIndex: index, Mint: mint, Owner: owner, Amount: post, Decimals: decimals,
		})
	}
}

// setLamports sets the wallet's native change, excluding the fee.
func setLamports(tx *solana.Transaction, delta int64) {
	tx.Meta.PostBalances[0] = uint64(int64(tx.Meta.PreBalances[0]) - int64(tx.Meta.Fee) + delta)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestClassify_PositionOpen(t *testing.T) {
	c := New(DefaultConfig())

	tx := newTx("sigOpen", OrcaWhirlpoolsProgram)
	addToken(tx, 3, testReceipt, testWallet, 0, "", "1")
	addToken(tx, 4, USDCMint, testWallet, 6, "200000000", "100000000")
	addToken(tx, 5, testBonk, testWallet, 5, "1000000", "0")
	addToken(tx, 6, USDCMint, testPool, 6, "5000000000", "5100000000")
	addToken(tx, 7, testBonk, testPool, 5, "0", "1000000")

	e := c.Classify(tx, testWallet, domain.ProtocolOrcaWhirlpools, dec("150"))
	require.NotNil(t, e)

	assert.Equal(t, domain.KindPositionOpen, e.Kind)
	assert.Equal(t, "sigOpen", e.Signature)
	assert.Equal(t, testWallet, e.WalletAddress)
	assert.True(t, e.Succeeded)
	require.NotNil(t, e.PositionID)
	assert.Equal(t, testReceipt, *e.PositionID)
	require.NotNil(t, e.PoolID)
	assert.Equal(t, testPool, *e.PoolID)

	assert.Equal(t, USDCMint, e.TokenY.Mint)
	assert.Equal(t, "USDC", e.TokenY.Symbol)
	assert.True(t, e.TokenY.Amount.Equal(dec("-100")), "token y %s", e.TokenY.Amount)
	assert.Equal(t, testBonk, e.TokenX.Mint)
	assert.True(t, e.TokenX.Amount.Equal(dec("-10")))
	assert.True(t, e.TotalUSDValue.Equal(dec("100")), "usd %s", e.TotalUSDValue)

	payload, ok := e.Payload.(*domain.OpenPayload)
	require.True(t, ok)
	assert.Equal(t, testReceipt, payload.ReceiptMint)
	assert.Equal(t, []string{testBonk}, payload.UnpricedMints)
	assert.Len(t, payload.Deposited, 2)

	mint, err := solana.DecodeAddress(testReceipt)
	require.NoError(t, err)
	want, _, err := solana.FindProgramAddress([][]byte{[]byte("position"), mint}, OrcaWhirlpoolsProgram)
	require.NoError(t, err)
	assert.Equal(t, want, payload.PositionAddress)
}

func TestClassify_FeeClaimUsesHeldReceipt(t *testing.T) {
	c := New(DefaultConfig())

	tx := newTx("sigFee", RaydiumCLMMProgram)
	addToken(tx, 3, testReceipt, testWallet, 0, "1", "1")
	addToken(tx, 4, USDCMint, testWallet, 6, "0", "1500000")
	setLamports(tx, 10_000_000) // +0.01 SOL

	e := c.Classify(tx, testWallet, domain.ProtocolRaydiumCLMM, dec("150"))
	require.NotNil(t, e)

	assert.Equal(t, domain.KindFeeClaim, e.Kind)
	require.NotNil(t, e.PositionID)
	assert.Equal(t, testReceipt, *e.PositionID)
	assert.True(t, e.TotalUSDValue.Equal(dec("3")), "usd %s", e.TotalUSDValue)
	assert.Equal(t, USDCMint, e.TokenY.Mint)
	assert.Equal(t, WSOLMint, e.TokenX.Mint)
	assert.True(t, e.TokenX.Amount.Equal(dec("0.01")))

	payload, ok := e.Payload.(*domain.FeeClaimPayload)
	require.True(t, ok)
	assert.Len(t, payload.Collected, 2)
	assert.Empty(t, payload.UnpricedMints)
}

func TestClassify_PositionClose(t *testing.T) {
	c := New(DefaultConfig())

	tx := newTx("sigClose", OrcaWhirlpoolsProgram)
	tx.Meta.LogMessages = []string{
		"Program " + OrcaWhirlpoolsProgram + " invoke [1]",
		"Program log: Instruction: DecreaseLiquidity",
		"Program log: Instruction: ClosePosition",
	}
	addToken(tx, 3, testReceipt, testWallet, 0, "1", "0")
	addToken(tx, 4, USDCMint, testWallet, 6, "0", "120000000")

	e := c.Classify(tx, testWallet, domain.ProtocolOrcaWhirlpools, dec("150"))
	require.NotNil(t, e)

	assert.Equal(t, domain.KindPositionClose, e.Kind)
	assert.Equal(t, testReceipt, *e.PositionID)
	assert.True(t, e.TotalUSDValue.Equal(dec("120")))

	payload, ok := e.Payload.(*domain.ClosePayload)
	require.True(t, ok)
	assert.Equal(t, testReceipt, payload.ReceiptMint)
	assert.NotEmpty(t, payload.PositionAddress)
}

func TestClassify_EmptyPositionCloseCountsRentRefund(t *testing.T) {
	c := New(DefaultConfig())

	// Liquidity was withdrawn earlier; closing only refunds the account rent.
	tx := newTx("sigBurn", OrcaWhirlpoolsProgram)
	addToken(tx, 3, testReceipt, testWallet, 0, "1", "0")
	setLamports(tx, 2_039_280)

	e := c.Classify(tx, testWallet, domain.ProtocolOrcaWhirlpools, dec("150"))
	require.NotNil(t, e)
	assert.Equal(t, domain.KindPositionClose, e.Kind)
	assert.Equal(t, testReceipt, *e.PositionID)
}

func TestClassify_PreferUnknownOverGuess(t *testing.T) {
	tests := []struct {
		name   string
		build  func(tx *solana.Transaction)
		reason string
	}{
		{
			name: "inflow with decrease hint and no receipt change",
			build: func(tx *solana.Transaction) {
				tx.Meta.LogMessages = []string{"Program log: Instruction: DecreaseLiquidityV2"}
				addToken(tx, 4, USDCMint, testWallet, 6, "0", "50000000")
			},
			reason: ReasonDecreaseNoReceipt,
		},
		{
			name: "outflow without receipt",
			build: func(tx *solana.Transaction) {
				addToken(tx, 4, USDCMint, testWallet, 6, "50000000", "0")
			},
			reason: ReasonOutflowNoReceipt,
		},
		{
			name: "swap routed through the pool",
			build: func(tx *solana.Transaction) {
				addToken(tx, 4, USDCMint, testWallet, 6, "50000000", "0")
				addToken(tx, 5, testBonk, testWallet, 5, "0", "700000000")
			},
			reason: ReasonMixedFlows,
		},
		{
			name: "receipt minted while receiving tokens",
			build: func(tx *solana.Transaction) {
				addToken(tx, 3, testReceipt, testWallet, 0, "", "1")
				addToken(tx, 4, USDCMint, testWallet, 6, "0", "50000000")
			},
			reason: ReasonMintWithInflow,
		},
		{
			name: "receipt burned while paying tokens",
			build: func(tx *solana.Transaction) {
				addToken(tx, 3, testReceipt, testWallet, 0, "1", "0")
				addToken(tx, 4, USDCMint, testWallet, 6, "50000000", "0")
			},
			reason: ReasonBurnWithOutflow,
		},
		{
			name: "receipt minted with no deposit",
			build: func(tx *solana.Transaction) {
				addToken(tx, 3, testReceipt, testWallet, 0, "", "1")
			},
			reason: ReasonMintNoOutflow,
		},
		{
			name: "receipt burned with no withdrawal",
			build: func(tx *solana.Transaction) {
				addToken(tx, 3, testReceipt, testWallet, 0, "1", "0")
			},
			reason: ReasonBurnNoInflow,
		},
		{
			name: "two receipts moved",
			build: func(tx *solana.Transaction) {
				addToken(tx, 3, testReceipt, testWallet, 0, "", "1")
				addToken(tx, 8, testPool, testWallet, 0, "1", "0")
			},
			reason: ReasonMultipleReceipts,
		},
	}

	c := New(DefaultConfig())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := newTx("sig", OrcaWhirlpoolsProgram)
			tt.build(tx)

			e := c.Classify(tx, testWallet, domain.ProtocolOrcaWhirlpools, dec("150"))
			require.NotNil(t, e)
			assert.Equal(t, domain.KindUnknown, e.Kind)

			payload, ok := e.Payload.(*domain.UnknownPayload)
			require.True(t, ok)
			assert.Equal(t, tt.reason, payload.Reason)
			assert.Equal(t, OrcaWhirlpoolsProgram, payload.MatchedProgram)
		})
	}
}

func TestClassify_BelowEpsilonEmitsNothing(t *testing.T) {
	c := New(DefaultConfig())

	tx := newTx("sigDust", OrcaWhirlpoolsProgram)
	addToken(tx, 4, testBonk, testWallet, 9, "1000", "1500") // 5e-7
	setLamports(tx, 100)                                     // 1e-7 SOL

	assert.Nil(t, c.Classify(tx, testWallet, domain.ProtocolOrcaWhirlpools, dec("150")))
}

func TestClassify_EpsilonIsTunable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Epsilon = dec("0.01")
	c := New(cfg)

	tx := newTx("sig", OrcaWhirlpoolsProgram)
	addToken(tx, 4, USDCMint, testWallet, 6, "0", "5000") // 0.005 USDC

	assert.Nil(t, c.Classify(tx, testWallet, domain.ProtocolOrcaWhirlpools, dec("150")))
	assert.NotNil(t, New(DefaultConfig()).Classify(tx, testWallet, domain.ProtocolOrcaWhirlpools, dec("150")))
}

func TestClassify_UnrelatedTransaction(t *testing.T) {
	c := New(DefaultConfig())

	tx := newTx("sig", "11111111111111111111111111111111")
	addToken(tx, 4, USDCMint, testWallet, 6, "0", "50000000")

	assert.Nil(t, c.Classify(tx, testWallet, domain.ProtocolOrcaWhirlpools, dec("150")))
	assert.Nil(t, c.ClassifyAny(tx, testWallet, dec("150")))
	assert.Nil(t, c.Classify(tx, testWallet, domain.Protocol("nope"), dec("150")))
	assert.Nil(t, c.Classify(nil, testWallet, domain.ProtocolOrcaWhirlpools, dec("150")))
}

func TestClassify_ProgramExtractionStrategies(t *testing.T) {
	c := New(DefaultConfig())

	withFlow := func(tx *solana.Transaction) *solana.Transaction {
		addToken(tx, 4, USDCMint, testWallet, 6, "0", "50000000")
		return tx
	}

	inner := withFlow(newTx("inner", "JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4"))
	inner.Meta.InnerInstructions = []solana.InnerInstructions{{
		Index:        0,
		Instructions: []solana.Instruction{{ProgramID: MeteoraDLMMProgram}},
	}}
	e := c.Classify(inner, testWallet, domain.ProtocolMeteoraDLMM, decimal.Zero)
	require.NotNil(t, e)
	assert.Equal(t, domain.KindFeeClaim, e.Kind)

	keys := withFlow(newTx("keys", "ComputeBudget111111111111111111111111111111"))
	keys.Message.AccountKeys = append(keys.Message.AccountKeys, solana.AccountKey{Address: "cpamdSomeFutureDeployment1111111111111111111"})
	e = c.Classify(keys, testWallet, domain.ProtocolMeteoraDAMMV2, decimal.Zero)
	require.NotNil(t, e, "prefix rule on account keys")

	logs := withFlow(newTx("logs", "ComputeBudget111111111111111111111111111111"))
	logs.Meta.LogMessages = []string{"Program " + RaydiumCLMMProgram + " invoke [2]"}
	e = c.Classify(logs, testWallet, domain.ProtocolRaydiumCLMM, decimal.Zero)
	require.NotNil(t, e)

	id, name, ok := firstMatch(DefaultStrategies(), logs, &DefaultConfig().Protocols[1])
	require.True(t, ok)
	assert.Equal(t, RaydiumCLMMProgram, id)
	assert.Equal(t, "logs", name)
}

func TestClassify_FailedTransactionKeptAsUnknown(t *testing.T) {
	c := New(DefaultConfig())

	tx := newTx("sigFailed", OrcaWhirlpoolsProgram)
	tx.Meta.Err = map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}}

	e := c.Classify(tx, testWallet, domain.ProtocolOrcaWhirlpools, dec("150"))
	require.NotNil(t, e)
	assert.False(t, e.Succeeded)
	assert.Equal(t, domain.KindUnknown, e.Kind)
	assert.Equal(t, ReasonFailed, e.Payload.(*domain.UnknownPayload).Reason)
}

func TestClassify_Deterministic(t *testing.T) {
	c := New(DefaultConfig())

	tx := newTx("sig", OrcaWhirlpoolsProgram)
	addToken(tx, 3, testReceipt, testWallet, 0, "", "1")
	addToken(tx, 4, USDCMint, testWallet, 6, "200000000", "100000000")
	addToken(tx, 5, testBonk, testWallet, 5, "1000000", "0")
	addToken(tx, 6, USDCMint, testPool, 6, "0", "100000000")
	setLamports(tx, -250_000_000)

	first := c.Classify(tx, testWallet, domain.ProtocolOrcaWhirlpools, dec("142.5"))
	second := c.Classify(tx, testWallet, domain.ProtocolOrcaWhirlpools, dec("142.5"))
	require.NotNil(t, first)
	assert.Equal(t, first, second)

	a, err := domain.EncodePayload(first.Payload)
	require.NoError(t, err)
	b, err := domain.EncodePayload(second.Payload)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestClassify_NativeSOLUnpricedWithoutRate(t *testing.T) {
	c := New(DefaultConfig())

	tx := newTx("sig", OrcaWhirlpoolsProgram)
	addToken(tx, 3, testReceipt, testWallet, 0, "", "1")
	setLamports(tx, -1_000_000_000)

	e := c.Classify(tx, testWallet, domain.ProtocolOrcaWhirlpools, decimal.Zero)
	require.NotNil(t, e)
	assert.Equal(t, domain.KindPositionOpen, e.Kind)
	assert.True(t, e.TotalUSDValue.IsZero())
	assert.Equal(t, []string{WSOLMint}, e.Payload.(*domain.OpenPayload).UnpricedMints)
	assert.Equal(t, WSOLMint, e.TokenY.Mint)
	assert.True(t, e.TokenY.Amount.Equal(dec("-1")))
}

func TestClassify_SyntheticProtocol(t *testing.T) {
	const program = "Synth1111111111111111111111111111111111111"
	synthetic := domain.Protocol("synthetic_amm")

	c := New(Config{
		Protocols: []ProtocolConfig{{
			Protocol:        synthetic,
			ProgramIDs:      []string{program},
			ReceiptDecimals: 0,
		}},
		Quotes: map[string]Quote{testBonk: {Symbol: "BONK", Stable: true}},
	})

	tx := newTx("sig", program)
	addToken(tx, 3, testReceipt, testWallet, 0, "", "1")
	addToken(tx, 4, testBonk, testWallet, 5, "500000", "0")

	e := c.ClassifyAny(tx, testWallet, decimal.Zero)
	require.NotNil(t, e)
	assert.Equal(t, synthetic, e.Protocol)
	assert.Equal(t, domain.KindPositionOpen, e.Kind)
	assert.True(t, e.TotalUSDValue.Equal(dec("5")))
	assert.Empty(t, e.Payload.(*domain.OpenPayload).PositionAddress)
	assert.Equal(t, []domain.Protocol{synthetic}, c.Protocols())
}

func TestClassifyAny_FirstEmittingProtocolWins(t *testing.T) {
	c := New(DefaultConfig())

	tx := newTx("sig", RaydiumCLMMProgram)
	tx.Message.Instructions = append(tx.Message.Instructions, solana.Instruction{ProgramID: MeteoraDLMMProgram})
	addToken(tx, 4, USDCMint, testWallet, 6, "0", "50000000")

	e := c.ClassifyAny(tx, testWallet, decimal.Zero)
	require.NotNil(t, e)
	assert.Equal(t, domain.ProtocolRaydiumCLMM, e.Protocol)
}
