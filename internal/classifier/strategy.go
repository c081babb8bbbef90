package classifier

import (
	"strings"

	"solana-position-tracker/internal/solana"
)

// Strategy extracts a protocol program ID from one part of a transaction.
type Strategy struct {
	Name string
	Find func(tx *solana.Transaction, p *ProtocolConfig) (string, bool)
}

// DefaultStrategies returns the extraction order: top-level instructions,
// inner instructions, account keys, then log invocations. Some nodes surface
// a program only as a referenced account or in logs.
func DefaultStrategies() []Strategy {
	return []Strategy{
		{Name: "instructions", Find: findInInstructions},
		{Name: "inner_instructions", Find: findInInnerInstructions},
		{Name: "account_keys", Find: findInAccountKeys},
		{Name: "logs", Find: findInLogs},
	}
}

// firstMatch runs strategies in order and returns the first hit.
func firstMatch(strategies []Strategy, tx *solana.Transaction, p *ProtocolConfig) (programID, strategy string, ok bool) {
	for _, s := range strategies {
		if id, found := s.Find(tx, p); found {
			return id, s.Name, true
		}
	}
	return "", "", false
}

func findInInstructions(tx *solana.Transaction, p *ProtocolConfig) (string, bool) {
	if tx.Message == nil {
		return "", false
	}
	for _, ix := range tx.Message.Instructions {
		if p.Matches(ix.ProgramID) {
			return ix.ProgramID, true
		}
	}
	return "", false
}

func findInInnerInstructions(tx *solana.Transaction, p *ProtocolConfig) (string, bool) {
	if tx.Meta == nil {
		return "", false
	}
	for _, group := range tx.Meta.InnerInstructions {
		for _, ix := range group.Instructions {
			if p.Matches(ix.ProgramID) {
				return ix.ProgramID, true
			}
		}
	}
	return "", false
}

func findInAccountKeys(tx *solana.Transaction, p *ProtocolConfig) (string, bool) {
	if tx.Message == nil {
		return "", false
	}
	for _, k := range tx.Message.AccountKeys {
		if p.Matches(k.Address) {
			return k.Address, true
		}
	}
	return "", false
}

// findInLogs matches "Program <id> invoke [n]" lines.
func findInLogs(tx *solana.Transaction, p *ProtocolConfig) (string, bool) {
	if tx.Meta == nil {
		return "", false
	}
	for _, line := range tx.Meta.LogMessages {
		id, ok := invokedProgram(line)
		if ok && p.Matches(id) {
			return id, true
		}
	}
	return "", false
}

func invokedProgram(line string) (string, bool) {
	fields := strings.Fields(line)
	if len(fields) < 3 || fields[0] != "Program" || fields[2] != "invoke" {
		return "", false
	}
	return fields[1], true
}

// protocolAccounts collects the accounts passed to the protocol's
// instructions, top-level and inner.
func protocolAccounts(tx *solana.Transaction, p *ProtocolConfig) map[string]struct{} {
	accounts := make(map[string]struct{})
	add := func(ixs []solana.Instruction) {
		for _, ix := range ixs {
			if !p.Matches(ix.ProgramID) {
				continue
			}
			for _, a := range ix.Accounts {
				accounts[a] = struct{}{}
			}
		}
	}
	if tx.Message != nil {
		add(tx.Message.Instructions)
	}
	if tx.Meta != nil {
		for _, group := range tx.Meta.InnerInstructions {
			add(group.Instructions)
		}
	}
	return accounts
}
