package solana

import (
	"encoding/json"
)

// rawTransaction is the getTransaction result. It decodes both "json" and
// "jsonParsed" encodings: account keys may be plain strings or objects, and
// instructions may reference programs by id or by account index.
type rawTransaction struct {
	Slot        int64           `json:"slot"`
	BlockTime   *int64          `json:"blockTime"`
	Version     json.RawMessage `json:"version"`
	Meta        *rawMeta        `json:"meta"`
	Transaction *rawTxBody      `json:"transaction"`
}

type rawMeta struct {
	Err               interface{}       `json:"err"`
	Fee               uint64            `json:"fee"`
	PreBalances       []uint64          `json:"preBalances"`
	PostBalances      []uint64          `json:"postBalances"`
	PreTokenBalances  []rawTokenBalance `json:"preTokenBalances"`
	PostTokenBalances []rawTokenBalance `json:"postTokenBalances"`
	InnerInstructions []rawInnerGroup   `json:"innerInstructions"`
	LogMessages       []string          `json:"logMessages"`
}

type rawTokenBalance struct {
	AccountIndex  int    `json:"accountIndex"`
	Mint          string `json:"mint"`
	Owner         string `json:"owner"`
	ProgramID     string `json:"programId"`
	UITokenAmount struct {
		Amount   string `json:"amount"`
		Decimals int    `json:"decimals"`
	} `json:"uiTokenAmount"`
}

type rawInnerGroup struct {
	Index        int              `json:"index"`
	Instructions []rawInstruction `json:"instructions"`
}

type rawTxBody struct {
	Signatures []string    `json:"signatures"`
	Message    *rawMessage `json:"message"`
}

type rawMessage struct {
	AccountKeys  []rawAccountKey  `json:"accountKeys"`
	Instructions []rawInstruction `json:"instructions"`
}

type rawAccountKey struct {
	Pubkey   string `json:"pubkey"`
	Signer   bool   `json:"signer"`
	Writable bool   `json:"writable"`
}

func (k *rawAccountKey) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		k.Pubkey = s
		return nil
	}
	type plain rawAccountKey
	return json.Unmarshal(data, (*plain)(k))
}

type rawInstruction struct {
	ProgramID      string          `json:"programId"`
	ProgramIDIndex *int            `json:"programIdIndex"`
	Program        string          `json:"program"`
	Accounts       json.RawMessage `json:"accounts"`
	Data           string          `json:"data"`
}

func (r *rawTransaction) decode(signature string) *Transaction {
	tx := &Transaction{
		Slot:      r.Slot,
		Signature: signature,
		Version:   decodeVersion(r.Version),
	}
	if r.BlockTime != nil {
		tx.BlockTime = *r.BlockTime
	}

	var keys []AccountKey
	if r.Transaction != nil && r.Transaction.Message != nil {
		keys = make([]AccountKey, len(r.Transaction.Message.AccountKeys))
		for i, k := range r.Transaction.Message.AccountKeys {
			keys[i] = AccountKey{Address: k.Pubkey, Signer: k.Signer, Writable: k.Writable}
		}
		tx.Message = &TransactionMessage{
			AccountKeys:  keys,
			Instructions: decodeInstructions(r.Transaction.Message.Instructions, keys),
		}
		if signature == "" && len(r.Transaction.Signatures) > 0 {
			tx.Signature = r.Transaction.Signatures[0]
		}
	}

	if r.Meta != nil {
		meta := &TransactionMeta{
			Err:               r.Meta.Err,
			Fee:               r.Meta.Fee,
			PreBalances:       r.Meta.PreBalances,
			PostBalances:      r.Meta.PostBalances,
			PreTokenBalances:  decodeTokenBalances(r.Meta.PreTokenBalances),
			PostTokenBalances: decodeTokenBalances(r.Meta.PostTokenBalances),
			LogMessages:       r.Meta.LogMessages,
		}
		for _, group := range r.Meta.InnerInstructions {
			meta.InnerInstructions = append(meta.InnerInstructions, InnerInstructions{
				Index:        group.Index,
				Instructions: decodeInstructions(group.Instructions, keys),
			})
		}
		tx.Meta = meta
	}

	return tx
}

func decodeVersion(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func decodeTokenBalances(raw []rawTokenBalance) []TokenBalance {
	if len(raw) == 0 {
		return nil
	}
	out := make([]TokenBalance, len(raw))
	for i, b := range raw {
		out[i] = TokenBalance{
			AccountIndex: b.AccountIndex,
			Mint:         b.Mint,
			Owner:        b.Owner,
			ProgramID:    b.ProgramID,
			Amount:       b.UITokenAmount.Amount,
			Decimals:     b.UITokenAmount.Decimals,
		}
	}
	return out
}

func decodeInstructions(raw []rawInstruction, keys []AccountKey) []Instruction {
	if len(raw) == 0 {
		return nil
	}
	out := make([]Instruction, 0, len(raw))
	for _, ri := range raw {
		ix := Instruction{
			ProgramID: ri.ProgramID,
			Program:   ri.Program,
			Data:      ri.Data,
			Accounts:  decodeInstructionAccounts(ri.Accounts, keys),
		}
		if ix.ProgramID == "" && ri.ProgramIDIndex != nil {
			ix.ProgramID = keyAt(keys, *ri.ProgramIDIndex)
		}
		out = append(out, ix)
	}
	return out
}

// decodeInstructionAccounts accepts addresses (jsonParsed) or indices (json).
func decodeInstructionAccounts(raw json.RawMessage, keys []AccountKey) []string {
	if len(raw) == 0 {
		return nil
	}
	var addrs []string
	if err := json.Unmarshal(raw, &addrs); err == nil {
		return addrs
	}
	var idx []int
	if err := json.Unmarshal(raw, &idx); err != nil {
		return nil
	}
	addrs = make([]string, 0, len(idx))
	for _, i := range idx {
		addrs = append(addrs, keyAt(keys, i))
	}
	return addrs
}

func keyAt(keys []AccountKey, i int) string {
	if i < 0 || i >= len(keys) {
		return ""
	}
	return keys[i].Address
}
