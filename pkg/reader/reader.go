/*
Package reader orchestrates a complete identity read from an eID chip: it
selects the eMRTD application, runs the BAC handshake seeded from the
optically scanned MRZ, opens the secure messaging channel and transfers
EF.COM, DG1, DG2 and EF.SOD. The chip's DG1 is compared against the
scanned MRZ before the result is trusted.

Card-in-field problems are retried with exponential backoff, but only
while they can still be retried safely: once the secure channel has
carried authenticated traffic, every failure ends the read.
*/
package reader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pion/logging"
	"github.com/qudamyker/eidreader/pkg/bac"
	"github.com/qudamyker/eidreader/pkg/iso7816"
	"github.com/qudamyker/eidreader/pkg/lds"
	"github.com/qudamyker/eidreader/pkg/mrz"
	"github.com/qudamyker/eidreader/pkg/secure"
	"github.com/qudamyker/eidreader/pkg/tlv"
	"github.com/qudamyker/eidreader/pkg/transport"
)

// Read errors.
var (
	// ErrAppletNotFound reports a chip without the eMRTD application.
	ErrAppletNotFound = errors.New("reader: eMRTD application not found")

	// ErrFileNotFound reports a SELECT for a file the chip does not carry.
	ErrFileNotFound = errors.New("reader: file not found")

	// ErrDG1Missing reports an EF.COM directory without DG1. A document
	// without a chip-side MRZ cannot be cross-checked and is rejected.
	ErrDG1Missing = errors.New("reader: chip lists no DG1")
)

// Defaults for the zero-value Config.
const (
	DefaultAttempts    = 3
	DefaultBaseBackoff = 500 * time.Millisecond
	DefaultChunkSize   = 224
)

// Config tunes a read. The zero value is usable.
type Config struct {
	// Attempts bounds how often a transient failure is retried.
	Attempts int

	// BaseBackoff is the first retry delay; later delays double and
	// carry jitter.
	BaseBackoff time.Duration

	// ChunkSize bounds each READ BINARY, keeping the protected response
	// within short APDU limits.
	ChunkSize int

	// Random drives the backoff jitter. Defaults to DefaultRandomSource.
	Random RandomSource

	// LoggerFactory creates the loggers for the reader and the protocol
	// layers below it. If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory

	// OnProgress, when set, receives stage events for UI feedback. A
	// retried attempt starts a fresh event stream.
	OnProgress func(Event)
}

func (c Config) withDefaults() Config {
	if c.Attempts <= 0 {
		c.Attempts = DefaultAttempts
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = DefaultBaseBackoff
	}
	if c.ChunkSize <= 0 || c.ChunkSize > iso7816.MaxShortLe {
		c.ChunkSize = DefaultChunkSize
	}
	return c
}

// ChipData is the result of a successful, consistency-checked read.
type ChipData struct {
	MRZ  *mrz.Info           // chip-side MRZ from DG1 (authoritative)
	COM  *lds.COMFile        // data group directory
	Face *lds.FaceImage      // from DG2, nil when absent or unparsable
	SOD  *lds.SecurityObject // hash manifest, nil when absent or unparsable
	Raw  map[int][]byte      // raw data group files by number
}

type runner struct {
	client     *iso7816.Client
	cfg        Config
	log        logging.LeveledLogger
	onProgress func(Event)
}

// ReadChip performs a full read against the chip behind card, seeded with
// the optically scanned MRZ. It retries transient transport failures up to
// cfg.Attempts times with fresh handshake nonces each time, and returns
// data only after the chip's DG1 matched the scanned MRZ.
func ReadChip(ctx context.Context, card iso7816.Transceiver, scanned *mrz.Info, cfg Config) (*ChipData, error) {
	cfg = cfg.withDefaults()

	r := &runner{
		client:     iso7816.NewClient(card),
		cfg:        cfg,
		onProgress: cfg.OnProgress,
	}
	if cfg.LoggerFactory != nil {
		r.log = cfg.LoggerFactory.NewLogger("reader")
	}

	docKeys := bac.DeriveDocumentKeys(scanned)
	defer docKeys.Wipe()

	backoff := NewBackoff(cfg.BaseBackoff, cfg.Random)

	var lastErr error
	for attempt := 0; attempt < cfg.Attempts; attempt++ {
		if attempt > 0 {
			delay := backoff.Delay(attempt - 1)
			if r.log != nil {
				r.log.Infof("attempt %d failed (%v), retrying in %v", attempt, lastErr, delay)
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		data, retryable, err := r.attempt(ctx, docKeys, scanned)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
	}

	return nil, fmt.Errorf("reader: %d attempts exhausted: %w", cfg.Attempts, lastErr)
}

// attempt runs one complete select/authenticate/read cycle. The boolean
// reports whether the failure is safe to retry: only transient transport
// errors before the channel carried authenticated traffic qualify.
func (r *runner) attempt(ctx context.Context, docKeys *bac.Keys, scanned *mrz.Info) (*ChipData, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	trace, err := r.client.Send(ctx, iso7816.SelectApplication(iso7816.PlainClass(), lds.AID))
	if err != nil {
		return nil, transport.IsTransient(err), fmt.Errorf("selecting eMRTD application: %w", err)
	}
	if !trace.IsSuccess() {
		return nil, false, fmt.Errorf("%w: %s", ErrAppletNotFound, trace.Status().Verbose())
	}

	r.emit(StageChallenging, 0)
	session := bac.NewSession(bac.SessionConfig{
		Client:        r.client,
		Keys:          docKeys,
		LoggerFactory: r.cfg.LoggerFactory,
	})
	sessionKeys, err := session.Authenticate(ctx)
	if err != nil {
		return nil, transport.IsTransient(err), err
	}
	r.emit(StageAuthenticating, 0)

	channel := secure.NewChannel(sessionKeys, r.cfg.LoggerFactory)
	defer channel.Close()

	// From here on the channel has carried authenticated traffic; no
	// failure below is retryable.
	data, err := r.readFiles(ctx, channel, scanned)
	if err != nil {
		return nil, false, err
	}

	r.emit(StageDone, 1)
	return data, false, nil
}

// readFiles transfers and parses the planned files in order: EF.COM first
// to learn the directory, DG1 next so an inconsistent document is rejected
// before any further transfer, then DG2 and EF.SOD.
func (r *runner) readFiles(ctx context.Context, channel *secure.Channel, scanned *mrz.Info) (*ChipData, error) {
	comRaw, err := r.readFile(ctx, channel, lds.FileEFCOM)
	if err != nil {
		return nil, fmt.Errorf("reading EF.COM: %w", err)
	}
	com, err := lds.ParseCOM(comRaw)
	if err != nil {
		return nil, err
	}
	if !com.Has(1) {
		return nil, ErrDG1Missing
	}

	planned := 3 // EF.COM, DG1, EF.SOD
	if com.Has(2) {
		planned++
	}
	done := 1
	r.emit(StageReading, float64(done)/float64(planned))

	data := &ChipData{COM: com, Raw: make(map[int][]byte)}

	dg1ID, _ := lds.FileIDForDataGroup(1)
	dg1Raw, err := r.readFile(ctx, channel, dg1ID)
	if err != nil {
		return nil, fmt.Errorf("reading DG1: %w", err)
	}
	dg1, err := lds.ParseDG1(dg1Raw)
	if err != nil {
		return nil, err
	}
	if err := VerifyConsistency(dg1.Info, scanned); err != nil {
		return nil, err
	}
	data.MRZ = dg1.Info
	data.Raw[1] = dg1Raw
	done++
	r.emit(StageReading, float64(done)/float64(planned))

	if com.Has(2) {
		dg2ID, _ := lds.FileIDForDataGroup(2)
		dg2Raw, err := r.readFile(ctx, channel, dg2ID)
		if err != nil {
			return nil, fmt.Errorf("reading DG2: %w", err)
		}
		data.Raw[2] = dg2Raw
		face, err := lds.ParseDG2(dg2Raw)
		if err != nil {
			if r.log != nil {
				r.log.Warnf("DG2 image extraction failed: %v", err)
			}
		} else {
			data.Face = face
		}
		done++
		r.emit(StageReading, float64(done)/float64(planned))
	}

	sodRaw, err := r.readFile(ctx, channel, lds.FileEFSOD)
	switch {
	case errors.Is(err, ErrFileNotFound):
		if r.log != nil {
			r.log.Warn("chip carries no EF.SOD")
		}
	case err != nil:
		return nil, fmt.Errorf("reading EF.SOD: %w", err)
	default:
		sod, err := lds.ParseSecurityObject(sodRaw)
		if err != nil {
			if r.log != nil {
				r.log.Warnf("EF.SOD unusable: %v", err)
			}
		} else {
			data.SOD = sod
		}
	}
	done++
	r.emit(StageReading, float64(done)/float64(planned))

	return data, nil
}

// readFile selects an elementary file and transfers it in bounded chunks:
// a short read of the BER header first to learn the file size, then the
// body.
func (r *runner) readFile(ctx context.Context, channel *secure.Channel, fileID uint16) ([]byte, error) {
	resp, err := channel.Exchange(ctx, r.client, iso7816.SelectEF(iso7816.PlainClass(), fileID))
	if err != nil {
		return nil, err
	}
	if resp.Status == iso7816.SW_ERR_FILE_NOT_FOUND {
		return nil, fmt.Errorf("%w: 0x%04X", ErrFileNotFound, fileID)
	}
	if resp.Status != iso7816.SW_NO_ERROR {
		return nil, fmt.Errorf("selecting file 0x%04X: %s", fileID, resp.Status.Verbose())
	}

	head, err := r.readChunk(ctx, channel, 0, tlv.HeaderPrefixLength)
	if err != nil {
		return nil, err
	}
	hdr, err := tlv.DecodeHeader(head)
	if err != nil {
		return nil, fmt.Errorf("file 0x%04X: %w", fileID, err)
	}
	total := hdr.Total()
	if total > iso7816.MaxReadBinaryOffset {
		return nil, fmt.Errorf("file 0x%04X too large: %d bytes", fileID, total)
	}

	buf := append([]byte(nil), head...)
	for len(buf) < total {
		n := total - len(buf)
		if n > r.cfg.ChunkSize {
			n = r.cfg.ChunkSize
		}
		chunk, err := r.readChunk(ctx, channel, len(buf), n)
		if err != nil {
			return nil, err
		}
		if len(chunk) == 0 {
			return nil, fmt.Errorf("file 0x%04X: empty read at offset %d", fileID, len(buf))
		}
		buf = append(buf, chunk...)
	}
	return buf[:total], nil
}

func (r *runner) readChunk(ctx context.Context, channel *secure.Channel, offset, ne int) ([]byte, error) {
	resp, err := channel.Exchange(ctx, r.client, iso7816.ReadBinary(iso7816.PlainClass(), offset, ne))
	if err != nil {
		return nil, err
	}
	if resp.Status != iso7816.SW_NO_ERROR {
		return nil, fmt.Errorf("read at offset %d: %s", offset, resp.Status.Verbose())
	}
	return resp.Data, nil
}
