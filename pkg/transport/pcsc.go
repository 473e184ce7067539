package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/ebfe/scard"
	"github.com/pion/logging"
)

// PCSC adapts a connected scard.Card to the context-aware transceiver
// contract. The PC/SC Transmit call itself cannot be interrupted, so
// cancellation is handled by abandoning the in-flight call; its goroutine
// finishes in the background and its buffered channel is collected later.
type PCSC struct {
	card *scard.Card
	log  logging.LeveledLogger
}

// NewPCSC wraps an already connected card.
func NewPCSC(card *scard.Card, loggerFactory logging.LoggerFactory) *PCSC {
	p := &PCSC{card: card}
	if loggerFactory != nil {
		p.log = loggerFactory.NewLogger("transport")
	}
	return p
}

// Connect establishes a PC/SC context and connects to the named reader, or
// to the first reader listed when name is empty.
func Connect(name string, loggerFactory logging.LoggerFactory) (*PCSC, func(), error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, nil, fmt.Errorf("establishing PC/SC context: %w", err)
	}

	readers, err := ctx.ListReaders()
	if err != nil || len(readers) == 0 {
		ctx.Release()
		return nil, nil, ErrNoReader
	}
	if name == "" {
		name = readers[0]
	}

	card, err := ctx.Connect(name, scard.ShareShared, scard.ProtocolAny)
	if err != nil {
		ctx.Release()
		return nil, nil, fmt.Errorf("connecting to %q: %w", name, mapError(err))
	}

	cleanup := func() {
		card.Disconnect(scard.LeaveCard)
		ctx.Release()
	}
	return NewPCSC(card, loggerFactory), cleanup, nil
}

// Transceive sends one APDU and waits for the response or the context.
func (p *PCSC) Transceive(ctx context.Context, cmd []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	type result struct {
		resp []byte
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		resp, err := p.card.Transmit(cmd)
		ch <- result{resp, mapError(err)}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.err != nil && p.log != nil {
			p.log.Warnf("transmit failed: %v", r.err)
		}
		return r.resp, r.err
	}
}

// mapError translates PC/SC error codes into the package sentinels where a
// classification exists, keeping the original code in the message.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, scard.ErrRemovedCard),
		errors.Is(err, scard.ErrNoSmartcard),
		errors.Is(err, scard.ErrResetCard),
		errors.Is(err, scard.ErrUnpoweredCard),
		errors.Is(err, scard.ErrUnresponsiveCard):
		return fmt.Errorf("%w: %v", ErrTagLost, err)
	case errors.Is(err, scard.ErrTimeout):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	default:
		return err
	}
}
