// Command eidreader reads the identity data of a contactless eID card
// through a PC/SC reader. The card's MRZ, as printed on the document, seeds
// the access keys; the chip contents are only reported after they match it.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/pion/logging"
	"github.com/spf13/cobra"

	"github.com/qudamyker/eidreader/pkg/mrz"
	"github.com/qudamyker/eidreader/pkg/reader"
	"github.com/qudamyker/eidreader/pkg/transport"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		readerName string
		line1      string
		line2      string
		line3      string
		mrzFile    string
		attempts   int
		timeout    time.Duration
		verbose    bool
		faceOut    string
	)

	cmd := &cobra.Command{
		Use:   "eidreader",
		Short: "Read identity data from a contactless eID chip",
		Long: `eidreader connects to a PC/SC smart card reader, authenticates against
the chip with keys derived from the scanned machine readable zone and
transfers the identity files over a secure channel.

The three MRZ lines come from --mrz1/--mrz2/--mrz3 or from a file with
one line per row (--mrz-file).`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			lines, err := mrzLines(line1, line2, line3, mrzFile)
			if err != nil {
				return err
			}
			scanned, err := mrz.Parse(lines[0], lines[1], lines[2])
			if err != nil {
				return fmt.Errorf("scanned MRZ rejected: %w", err)
			}

			loggerFactory := newLoggerFactory(verbose)

			card, cleanup, err := transport.Connect(readerName, loggerFactory)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx := context.Background()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			cfg := reader.Config{
				Attempts:      attempts,
				LoggerFactory: loggerFactory,
				OnProgress: func(e reader.Event) {
					if e.Stage == reader.StageReading {
						fmt.Fprintf(os.Stderr, "\r%s %3.0f%%", e.Stage, e.Fraction*100)
						return
					}
					fmt.Fprintf(os.Stderr, "\r%s...\n", e.Stage)
				},
			}

			data, err := reader.ReadChip(ctx, card, scanned, cfg)
			fmt.Fprintln(os.Stderr)
			if err != nil {
				return err
			}

			printResult(cmd.OutOrStdout(), data)

			if faceOut != "" && data.Face != nil {
				if err := os.WriteFile(faceOut, data.Face.Data, 0o644); err != nil {
					return fmt.Errorf("writing face image: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Face image (%s, %d bytes) written to %s\n",
					data.Face.Format, len(data.Face.Data), faceOut)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&readerName, "reader", "", "PC/SC reader name (default: first reader)")
	cmd.Flags().StringVar(&line1, "mrz1", "", "first MRZ line (30 characters)")
	cmd.Flags().StringVar(&line2, "mrz2", "", "second MRZ line (30 characters)")
	cmd.Flags().StringVar(&line3, "mrz3", "", "third MRZ line (30 characters)")
	cmd.Flags().StringVar(&mrzFile, "mrz-file", "", "file containing the three MRZ lines")
	cmd.Flags().IntVar(&attempts, "attempts", reader.DefaultAttempts, "read attempts before giving up")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "overall read timeout (0 disables)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "protocol-level logging")
	cmd.Flags().StringVar(&faceOut, "face-out", "", "write the DG2 face image to this file")

	return cmd
}

// mrzLines resolves the MRZ input: either all three line flags or a file.
func mrzLines(line1, line2, line3, mrzFile string) ([3]string, error) {
	var lines [3]string

	if mrzFile != "" {
		raw, err := os.ReadFile(mrzFile)
		if err != nil {
			return lines, fmt.Errorf("reading MRZ file: %w", err)
		}
		var rows []string
		for _, row := range strings.Split(string(raw), "\n") {
			if row = strings.TrimSpace(row); row != "" {
				rows = append(rows, row)
			}
		}
		if len(rows) != 3 {
			return lines, fmt.Errorf("MRZ file must hold exactly 3 lines, found %d", len(rows))
		}
		copy(lines[:], rows)
		return lines, nil
	}

	if line1 == "" || line2 == "" || line3 == "" {
		return lines, fmt.Errorf("provide --mrz1/--mrz2/--mrz3 or --mrz-file")
	}
	return [3]string{line1, line2, line3}, nil
}

func newLoggerFactory(verbose bool) *logging.DefaultLoggerFactory {
	factory := logging.NewDefaultLoggerFactory()
	factory.DefaultLogLevel = logging.LogLevelWarn
	if verbose {
		factory.DefaultLogLevel = logging.LogLevelDebug
	}
	factory.Writer = os.Stderr
	return factory
}

func printResult(out io.Writer, data *reader.ChipData) {
	fmt.Fprintf(out, "Document number: %s\n", data.MRZ.DocumentNumber)
	fmt.Fprintf(out, "Name:            %s, %s\n", data.MRZ.Surname, data.MRZ.GivenNames)
	fmt.Fprintf(out, "Birth date:      %s\n", data.MRZ.BirthDate)
	fmt.Fprintf(out, "Expiry date:     %s\n", data.MRZ.ExpiryDate)
	fmt.Fprintf(out, "Nationality:     %s\n", data.MRZ.Nationality)
	fmt.Fprintf(out, "Issuing state:   %s\n", data.MRZ.IssuingState)
	fmt.Fprintf(out, "Data groups:     %v\n", data.COM.DataGroups)

	if data.SOD != nil {
		fmt.Fprintf(out, "Security object: %s over %d data groups (signature not verified)\n",
			data.SOD.DigestAlgorithm, len(data.SOD.Hashes))
	} else {
		fmt.Fprintln(out, "Security object: unavailable")
	}
}
