package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lucasjlepore/srm-analyzer/pipeline"
)

func main() {
	var (
		srmPath   = flag.String("srm", "", "Path to input .srm file")
		outDir    = flag.String("out", "", "Output directory")
		ftp       = flag.Float64("ftp", 0, "FTP override in watts")
		format    = flag.String("format", "parquet", "Canonical sample format: parquet|csv")
		overwrite = flag.Bool("overwrite", true, "Allow writing into non-empty output directories")
		fitOut    = flag.Bool("fit", false, "Also write the ride as ride.fit")
		blobOut   = flag.Bool("blob", false, "Also write compressed sample columns as samples.mebo")
		dbPath    = flag.String("db", "", "SQLite database to save the decoded ride into")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s --srm input.srm --out outdir [--ftp 250] [--format parquet|csv] [--fit] [--blob] [--db rides.db]\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()

	if strings.TrimSpace(*srmPath) == "" || strings.TrimSpace(*outDir) == "" {
		flag.Usage()
		os.Exit(2)
	}

	result, err := pipeline.Run(pipeline.Options{
		SRMPath:     *srmPath,
		OutDir:      *outDir,
		FTPOverride: *ftp,
		Format:      *format,
		Overwrite:   *overwrite,
		CopySource:  true,
		ExportFIT:   *fitOut,
		ExportBlob:  *blobOut,
		DBPath:      *dbPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "srm_analyze failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("srm_analyze complete\n")
	fmt.Printf("Output dir:          %s\n", result.OutputDir)
	fmt.Printf("records.jsonl:       %s\n", result.RecordsPath)
	fmt.Printf("manifest.json:       %s\n", result.ManifestPath)
	fmt.Printf("canonical samples:   %s\n", result.CanonicalSamplesPath)
	fmt.Printf("intervals:           %s\n", result.IntervalsPath)
	fmt.Printf("workout structure:   %s\n", result.WorkoutStructurePath)
	fmt.Printf("activity summary:    %s\n", result.ActivitySummaryPath)
	fmt.Printf("training summary:    %s\n", result.TrainingSummaryPath)
	if result.FITPath != "" {
		fmt.Printf("fit export:          %s\n", result.FITPath)
	}
	if result.BlobPath != "" {
		fmt.Printf("sample blob:         %s\n", result.BlobPath)
	}
	if result.SourceCopyPath != "" {
		fmt.Printf("source copy:         %s\n", result.SourceCopyPath)
	}
	if result.RideID > 0 {
		fmt.Printf("stored ride id:      %d (%s)\n", result.RideID, *dbPath)
	}
	for _, w := range result.Warnings {
		fmt.Printf("warning:             %s\n", w)
	}
}
