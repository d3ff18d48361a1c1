/*
	Copyright (c) 2025 the acarsplit project
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	acarsplit.go: Batch splitter. Reads a JAERO ACARS log file and writes
	one output file per label, tail number, message type or keyword bucket.
*/

package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/jaerotools/acarsplit/acars"
	"github.com/jaerotools/acarsplit/common"
)

func chooseScheme(byLabel, byTail, byType bool, keyword string) (acars.Scheme, error) {
	n := 0
	scheme := acars.ByLabel
	if byLabel {
		n++
	}
	if byTail {
		n++
		scheme = acars.ByTail
	}
	if byType {
		n++
		scheme = acars.ByType
	}
	if keyword != "" {
		n++
		scheme = acars.ByKeyword
	}
	if n > 1 {
		return 0, errors.New("-l, -t, -m and -k are mutually exclusive")
	}
	if strings.ContainsAny(keyword, `/\`) {
		return 0, errors.New("keyword must not contain path separators")
	}
	return scheme, nil
}

func classify(message string, scheme acars.Scheme, keyword string) string {
	switch scheme {
	case acars.ByLabel:
		return acars.ExtractLabel(message)
	case acars.ByTail:
		return acars.ExtractTail(message)
	case acars.ByType:
		return acars.MessageType(message)
	case acars.ByKeyword:
		if acars.ContainsKeyword(message, keyword) {
			return keyword
		}
	}
	return ""
}

func main() {
	outputDir := flag.String("o", "acars_split", "Directory the split files are written to")
	byLabel := flag.Bool("l", false, "Split by label (the default)")
	byTail := flag.Bool("t", false, "Split by tail number")
	byType := flag.Bool("m", false, "Split by message type (CPDLC, ADS-C, MIAM, OTHER)")
	keyword := flag.String("k", "", "Split by keyword containment")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: acarsplit [-o dir] [-l | -t | -m | -k KEYWORD] <logfile>\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	input := flag.Arg(0)

	scheme, err := chooseScheme(*byLabel, *byTail, *byType, *keyword)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err.Error())
		flag.Usage()
		os.Exit(2)
	}

	if !common.FileExists(input) {
		fmt.Fprintf(os.Stderr, "Error: Input file '%s' not found.\n", input)
		os.Exit(1)
	}
	content, err := os.ReadFile(input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Input file '%s' not found.\n", input)
		os.Exit(1)
	}

	messages := acars.Split(string(content))
	if len(messages) == 0 {
		fmt.Fprintln(os.Stderr, "Warning: Can't distinguish headers--bad formatting? Set JAERO to output format 3.")
		return
	}

	keys := make([]string, len(messages))
	classified := 0
	for i, m := range messages {
		keys[i] = classify(m, scheme, *keyword)
		if keys[i] != "" {
			classified++
		}
	}
	if classified == 0 {
		fmt.Fprintf(os.Stderr, "Warning: No messages could be classified by %s.\n", scheme)
		return
	}

	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Error: couldn't create output directory '%s': %s\n", *outputDir, err.Error())
		os.Exit(1)
	}

	router := &acars.Router{Dir: *outputDir, Scheme: scheme, Keyword: *keyword}
	for i, m := range messages {
		if err := router.Route(keys[i], m); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err.Error())
			os.Exit(1)
		}
	}

	buckets := router.Buckets()
	if err := router.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err.Error())
		os.Exit(1)
	}
	for _, b := range buckets {
		fmt.Printf("Created %s with %d messages\n", b.Path, b.Count)
	}
}
