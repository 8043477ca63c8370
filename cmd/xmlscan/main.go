// Command xmlscan converts an XML document to relational CSV files from the
// command line. It can also stop after the discovery pass and print the
// structure report, which is useful for inspecting an unfamiliar feed before
// converting it.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"xmlcsv/internal/discover"
	"xmlcsv/internal/export"
	"xmlcsv/internal/hierarchy"
	"xmlcsv/internal/xmlenc"
)

func main() {
	var (
		inPath    string
		outDir    string
		reportOut string
		scanOnly  bool
		quoteAll  bool
		noBOM     bool
		delimiter string
		minRepeat int64
		maxDepth  int
		sampleCap int64
	)
	flag.StringVar(&inPath, "in", "", "input XML file (required)")
	flag.StringVar(&outDir, "out", "", "output directory for CSV files (default <input>_csv)")
	flag.StringVar(&reportOut, "report", "", "write the discovery report JSON to this path, or - for stdout")
	flag.BoolVar(&scanOnly, "scan-only", false, "stop after discovery; implies -report - unless -report is set")
	flag.StringVar(&delimiter, "delimiter", "", "CSV delimiter character (default comma)")
	flag.BoolVar(&quoteAll, "quote-all", false, "quote every CSV cell")
	flag.BoolVar(&noBOM, "no-bom", false, "omit the UTF-8 byte order mark")
	flag.Int64Var(&minRepeat, "min-repeat", 0, "occurrences a path needs to become a record candidate (default 5)")
	flag.IntVar(&maxDepth, "max-depth", 0, "deepest element level inspected (default 15)")
	flag.Int64Var(&sampleCap, "sample-cap", 0, "stop discovery after this many elements")
	verbose := flag.Bool("v", false, "enable verbose logs")
	flag.Parse()

	if inPath == "" {
		flag.Usage()
		os.Exit(2)
	}
	if len(delimiter) > 1 {
		fatalf("delimiter must be a single character")
	}

	opts := discover.Options{
		SampleCap: sampleCap,
		MaxDepth:  maxDepth,
		MinRepeat: minRepeat,
	}

	start := time.Now()
	rep, legacy, err := discoverWithRetry(inPath, opts, *verbose)
	if err != nil {
		fatalf("discover: %v", err)
	}
	if *verbose {
		log.Printf("stage=discover ok encoding=%s candidates=%d duration=%s",
			rep.Meta.Encoding, len(rep.Candidates), time.Since(start).Round(time.Millisecond))
	}

	if scanOnly && reportOut == "" {
		reportOut = "-"
	}
	if reportOut != "" {
		if err := writeReport(rep, reportOut); err != nil {
			fatalf("write report: %v", err)
		}
	}
	if scanOnly {
		return
	}

	cands := hierarchy.FilterContainers(rep.Candidates)
	if len(cands) == 0 {
		fatalf("no convertible data found in %s", inPath)
	}
	forest := hierarchy.Resolve(cands)
	if err := hierarchy.Validate(forest); err != nil {
		fatalf("resolve hierarchy: %v", err)
	}

	if outDir == "" {
		base := strings.TrimSuffix(inPath, filepath.Ext(inPath))
		outDir = base + "_csv"
	}

	rc, _, err := openInput(inPath, legacy)
	if err != nil {
		fatalf("reopen input: %v", err)
	}
	defer rc.Close()

	var csvDelim rune
	if delimiter != "" {
		csvDelim = rune(delimiter[0])
	}
	ex := &export.Exporter{
		OutDir: outDir,
		CSV:    export.CSVOptions{Delimiter: csvDelim, QuoteAll: quoteAll, NoBOM: noBOM},
	}
	if *verbose {
		ex.Logger = log.Default()
	}
	stats, err := ex.Run(rc, forest)
	if err != nil {
		fatalf("export: %v", err)
	}
	if len(stats.Rows) == 0 {
		fatalf("no convertible data found in %s", inPath)
	}

	bases := make([]string, 0, len(stats.Rows))
	for base := range stats.Rows {
		bases = append(bases, base)
	}
	sort.Strings(bases)
	for _, base := range bases {
		fmt.Printf("%s.csv\t%d rows\n", filepath.Join(outDir, base), stats.Rows[base])
	}
	fmt.Printf("%d records -> %d files in %s\n",
		stats.MainRecords, len(stats.Rows), time.Since(start).Round(time.Millisecond))
}

// discoverWithRetry runs the first pass, falling back to the legacy encoding
// once when the resolved encoding fails to parse. The returned flag tells the
// export pass which opener won.
func discoverWithRetry(path string, opts discover.Options, verbose bool) (*discover.Report, bool, error) {
	rep, err := discoverOnce(path, opts, false)
	if err == nil {
		return rep, false, nil
	}
	if verbose {
		log.Printf("retrying with legacy encoding after parse failure: %v", err)
	}
	rep, retryErr := discoverOnce(path, opts, true)
	if retryErr != nil {
		return nil, false, err
	}
	return rep, true, nil
}

func discoverOnce(path string, opts discover.Options, legacy bool) (*discover.Report, error) {
	rc, encName, err := openInput(path, legacy)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	rep, err := discover.Discover(rc, filepath.Base(path), opts)
	if err != nil {
		return nil, err
	}
	rep.Meta.Encoding = encName
	return rep, nil
}

func openInput(path string, legacy bool) (io.ReadCloser, string, error) {
	if legacy {
		return xmlenc.OpenFileLegacy(path)
	}
	return xmlenc.OpenFile(path)
}

func writeReport(rep *discover.Report, dest string) error {
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if dest == "-" {
		_, err = os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(dest, data, 0o644)
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
