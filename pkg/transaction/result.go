package transaction

import "fmt"

// StatusExecuted is the only status that means the transaction took effect.
const StatusExecuted = "executed"

// ExecutionStatus mirrors the ledger's status object, e.g.
// {"type":"moveabort","location":"...","abort_code":"..."}.
type ExecutionStatus struct {
	Type      string `json:"type"`
	Location  string `json:"location,omitempty"`
	AbortCode string `json:"abort_code,omitempty"`
}

func (s ExecutionStatus) String() string {
	switch {
	case s.AbortCode != "":
		return fmt.Sprintf("%s at %s (abort code %s)", s.Type, s.Location, s.AbortCode)
	case s.Location != "":
		return fmt.Sprintf("%s at %s", s.Type, s.Location)
	default:
		return s.Type
	}
}

type ExecutionResult struct {
	TxHash  string          `json:"tx_hash"`
	GasUsed string          `json:"gas_used"`
	Status  ExecutionStatus `json:"status"`
}

func (r ExecutionResult) Executed() bool {
	return r.Status.Type == StatusExecuted
}
