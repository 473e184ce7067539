package iso7816

import (
	"fmt"
	"strings"
)

// A Transaction is the atomic unit of ISO 7816-3 communication: one command
// APDU and the response it produced.
//
// A Trace is the chronological sequence of transactions behind one logical
// operation. A single logical intent ("select this file") can span several
// physical exchanges when the chip answers 61XX (GET RESPONSE needed) or
// 6CXX (wrong Le, retry); the Trace preserves that whole conversation and
// IsSuccess evaluates the final outcome.

// Transaction is a completed command-response pair.
type Transaction struct {
	Command  *CommandAPDU
	Response *ResponseAPDU
}

// IsSuccess reports whether the transaction ended with a success status.
// A missing response counts as failure.
func (t *Transaction) IsSuccess() bool {
	if t.Response == nil {
		return false
	}
	return t.Response.Status.IsSuccess()
}

// Trace is the full history of a logical exchange, including automatic
// 61XX/6CXX follow-ups.
type Trace []Transaction

// Last returns the final transaction, or nil for an empty trace.
func (t Trace) Last() *Transaction {
	if len(t) == 0 {
		return nil
	}
	return &t[len(t)-1]
}

// IsSuccess reports whether the final transaction succeeded, which decides
// the outcome of the logical operation.
func (t Trace) IsSuccess() bool {
	last := t.Last()
	return last != nil && last.IsSuccess()
}

// Data returns the response payload of the final transaction. Intermediate
// 61XX responses never carry the payload the caller is after.
func (t Trace) Data() []byte {
	last := t.Last()
	if last == nil || last.Response == nil {
		return nil
	}
	return last.Response.Data
}

// Status returns the final status word, or SW_ERR_UNKNOWN for an empty
// trace.
func (t Trace) Status() StatusWord {
	last := t.Last()
	if last == nil || last.Response == nil {
		return SW_ERR_UNKNOWN
	}
	return last.Response.Status
}

// Describe renders the trace as a multi-line report for debugging.
func (t Trace) Describe() string {
	var sb strings.Builder
	for i, tx := range t {
		sb.WriteString(fmt.Sprintf("[%d] > %s\n", i+1, tx.Command))
		if tx.Response != nil {
			sb.WriteString(fmt.Sprintf("    < %s\n", tx.Response))
		} else {
			sb.WriteString("    < (no response)\n")
		}
	}
	return sb.String()
}
