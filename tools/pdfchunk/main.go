package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/neighbr/backend-go/internal/knowledge"
)

func main() {
	var (
		input      = flag.String("input", "", "PDF file path (required)")
		addressing = flag.String("addressing", "page", "Addressing scheme: page or flat")
		maxLength  = flag.Int("max", knowledge.DefaultMaxChunkLength, "Maximum chunk length in characters")
		license    = flag.String("license", os.Getenv("UNIPDF_LICENSE_KEY"), "unipdf metered license key")
		full       = flag.Bool("full", false, "Print full chunk content")
	)
	flag.Parse()

	if *input == "" {
		fmt.Fprintln(os.Stderr, "error: -input is required")
		flag.Usage()
		os.Exit(1)
	}

	scheme, err := knowledge.ParseAddressingScheme(*addressing)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	data, err := os.ReadFile(*input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: read %s: %v\n", *input, err)
		os.Exit(1)
	}

	extractor, err := knowledge.NewPDFExtractor(*license)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("File:       %s\n", *input)
	fmt.Printf("Addressing: %s, max chunk length %d\n", scheme, *maxLength)
	fmt.Println(strings.Repeat("=", 80))

	start := time.Now()
	chunks, err := knowledge.NewChunker(extractor, scheme, *maxLength).ExtractAndChunk(context.Background(), data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: chunk %s: %v\n", *input, err)
		os.Exit(1)
	}
	elapsed := time.Since(start)

	pages := map[int]int{}
	total := 0
	for _, c := range chunks {
		pages[c.PageNumber]++
		total += len(c.Content)

		content := c.Content
		if !*full && len(content) > 120 {
			content = content[:120] + "..."
		}
		fmt.Printf("[page %3d | chunk %3d | %4d chars] %s\n", c.PageNumber, c.ChunkIndex, len(c.Content), content)
	}

	fmt.Println(strings.Repeat("-", 80))
	fmt.Printf("Pages with text: %d\n", len(pages))
	fmt.Printf("Chunks:          %d\n", len(chunks))
	if len(chunks) > 0 {
		fmt.Printf("Avg chunk size:  %d\n", total/len(chunks))
	}
	fmt.Printf("Elapsed:         %v\n", elapsed)
}
