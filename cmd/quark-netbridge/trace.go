// Copyright 2026 The Quark Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/pflag"

	"github.com/gao-feng/Quark/lib/trace"
)

// runTrace prints the records of a trace file, optionally filtered to
// one descriptor. With --raw each record is printed in CBOR diagnostic
// notation as stored.
func runTrace(args []string, stdout io.Writer) error {
	var fd int
	var raw bool
	flagSet := pflag.NewFlagSet(binaryName+" trace", pflag.ContinueOnError)
	flagSet.SetOutput(stdout)
	flagSet.IntVar(&fd, "fd", -1, "only print records for this descriptor")
	flagSet.BoolVar(&raw, "raw", false, "print CBOR diagnostic notation instead of decoded masks")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if flagSet.NArg() != 1 {
		return fmt.Errorf("usage: %s trace [--fd N] [--raw] <file>", binaryName)
	}

	if raw {
		return printRaw(flagSet.Arg(0), fd, stdout)
	}

	records, err := trace.ReadFile(flagSet.Arg(0))
	if err != nil {
		return err
	}

	printed := 0
	for _, record := range records {
		if fd >= 0 && record.FD != fd {
			continue
		}
		fmt.Fprintf(stdout, "%8d  fd=%-5d %s\n", record.Sequence, record.FD, record.Mask)
		printed++
	}
	fmt.Fprintf(stdout, "%d records\n", printed)
	return nil
}

func printRaw(path string, fd int, stdout io.Writer) error {
	records, err := trace.ReadRawFile(path)
	if err != nil {
		return err
	}
	printed := 0
	for _, record := range records {
		if fd >= 0 && record.FD != fd {
			continue
		}
		fmt.Fprintf(stdout, "%8d  %s\n", record.Sequence, record.Notation)
		printed++
	}
	fmt.Fprintf(stdout, "%d records\n", printed)
	return nil
}
