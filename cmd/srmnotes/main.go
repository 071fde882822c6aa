package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	srmnotes "github.com/lucasjlepore/srm-analyzer"
)

func main() {
	var (
		ftp          = flag.Float64("ftp", 0, "FTP in watts (optional; if omitted the tool estimates FTP from best 20-minute power)")
		jsonOut      = flag.Bool("json", false, "Emit full analysis as JSON")
		showSegments = flag.Bool("segments", false, "Include interval-by-interval summary in text output")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <path-to-srm-file>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	filePath := flag.Arg(0)
	analysis, err := srmnotes.AnalyzeFile(filePath, srmnotes.Config{FTPWatts: *ftp})
	if err != nil {
		fmt.Fprintf(os.Stderr, "analysis failed: %v\n", err)
		os.Exit(1)
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(analysis); err != nil {
			fmt.Fprintf(os.Stderr, "json encode failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	fmt.Println(analysis.Notes)
	if *showSegments && len(analysis.Segments) > 0 {
		fmt.Println()
		fmt.Println("Interval Summary")
		for _, seg := range analysis.Segments {
			name := seg.Name
			if name == "" {
				name = "-"
			}
			fmt.Printf(
				"- %02d marker %-3s | %-10s | %6.0f W | %5.0f bpm | %5.0f rpm | %6.1fs\n",
				seg.Index,
				name,
				seg.Label,
				seg.AvgPowerWatts,
				seg.AvgHeartRate,
				seg.AvgCadence,
				seg.DurationSeconds,
			)
		}
	}
}
