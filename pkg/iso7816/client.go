package iso7816

import (
	"context"
	"fmt"
)

// The Client is a high-level driver over the physical connection. It
// resolves the ISO 7816-3 transport behaviors that T=0-style stacks leak
// into the application layer:
//
//  1. "61 XX" (response available): the chip holds XX more bytes; the
//     client issues GET RESPONSE automatically.
//  2. "6C XX" (wrong length): the chip suggests the correct Le; the client
//     re-sends the original command with Le = XX.
//
// Send returns the Trace of every atomic transaction performed to fulfill
// the logical request.

// Transceiver abstracts the contactless connection to the chip. One call
// exchanges one raw command APDU for one raw response APDU; ctx bounds the
// exchange and carries cancellation when the card leaves the field.
type Transceiver interface {
	Transceive(ctx context.Context, cmd []byte) ([]byte, error)
}

// Client manages logical APDU exchanges with the chip.
type Client struct {
	Card Transceiver
}

// NewClient creates a Client over the given transceiver.
func NewClient(card Transceiver) *Client {
	return &Client{Card: card}
}

// maxFollowUps bounds the 61XX/6CXX continuations within one logical
// exchange. A chip that never reaches a final status is broken.
const maxFollowUps = 16

// Send transmits a command and resolves 61XX/6CXX protocol handling.
func (c *Client) Send(ctx context.Context, cmd *CommandAPDU) (Trace, error) {
	var trace Trace

	for followUps := 0; ; followUps++ {
		rawCmd, err := cmd.Bytes()
		if err != nil {
			return trace, fmt.Errorf("encoding error: %w", err)
		}

		rawResp, err := c.Card.Transceive(ctx, rawCmd)
		if err != nil {
			return trace, fmt.Errorf("transmission error: %w", err)
		}

		resp, err := ParseResponseAPDU(rawResp)
		if err != nil {
			return trace, err
		}
		trace = append(trace, Transaction{Command: cmd, Response: resp})

		sw1 := resp.Status.SW1()
		sw2 := resp.Status.SW2()
		if sw1 != 0x61 && sw1 != 0x6C {
			return trace, nil
		}
		if followUps >= maxFollowUps {
			return trace, fmt.Errorf("no final status after %d follow-ups", followUps)
		}

		if sw1 == 0x61 {
			// More data available, fetch it with GET RESPONSE on the
			// same logical channel.
			respCls := cmd.Class
			respCls.IsChained = false

			ins, _ := NewInstruction(INS_GET_RESPONSE)
			cmd = NewCommandAPDU(respCls, ins, 0x00, 0x00, nil, int(sw2))
			continue
		}

		// 6CXX: wrong Le, re-issue with the length the chip suggested.
		retry := *cmd
		retry.Ne = int(sw2)
		cmd = &retry
	}
}
