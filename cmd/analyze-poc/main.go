// analyze-poc runs the condition and pricing stages on local image files
// without the queue or the database. Useful for prompt iteration.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/danbi-market/analysis-worker/config"
	"github.com/danbi-market/analysis-worker/internal/ai"
	"github.com/danbi-market/analysis-worker/internal/analysis"
	"github.com/danbi-market/analysis-worker/internal/blob"
	"github.com/danbi-market/analysis-worker/internal/market"
)

func main() {
	description := flag.String("description", "", "seller's description of the item")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [-description text] <image-path> [image-path...]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nEnvironment variables:\n")
		fmt.Fprintf(os.Stderr, "  OPENROUTER_API_KEY or GEMINI_API_KEY  - completion backend\n")
		fmt.Fprintf(os.Stderr, "  GOOGLE_API_KEY, GOOGLE_SEARCH_ENGINE_ID - web search signal\n")
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}

	config.LoadEnvFile()
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	var client ai.Client
	if cfg.Backend == config.BackendGemini {
		client, err = ai.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.ConditionModel)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create gemini client: %v\n", err)
			os.Exit(1)
		}
	} else {
		client = ai.NewOpenRouterClient(ai.OpenRouterOpts{
			BaseURL: cfg.OpenRouterBaseURL,
			APIKey:  cfg.OpenRouterAPIKey,
			Model:   cfg.ConditionModel,
		})
	}

	var images []analysis.Image
	for _, path := range flag.Args() {
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to read image %s: %v\n", path, err)
			os.Exit(1)
		}
		images = append(images, analysis.Image{
			Data:     data,
			MIMEType: blob.MIMETypeForPointer(path),
		})
	}

	prompts := analysis.DefaultPrompts()

	fmt.Println("=== CONDITION ===")
	condition := analysis.NewConditionAnalyzer(client, prompts)
	report, err := condition.Analyze(ctx, images, *description)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Condition analysis failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Name:       %s\n", report.Name)
	fmt.Printf("Usage:      %s\n", report.UsageLevel)
	fmt.Printf("Assessment: %s\n", report.Narrative)
	fmt.Printf("Issues:     %s\n", strings.Join(report.Issues, "; "))
	fmt.Printf("Positives:  %s\n", strings.Join(report.Positives, "; "))

	fmt.Println("\n=== PRICING ===")
	pricing := analysis.NewPriceAggregator(
		client,
		market.NewBunjangClient(),
		market.NewGoogleClient(cfg.GoogleAPIKey, cfg.GoogleSearchEngineID),
		prompts,
	)
	rec, err := pricing.Price(ctx, report)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Pricing failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Recommended: %d %s\n", rec.RecommendedPrice, rec.Currency)
	fmt.Printf("Reason:      %s\n", rec.PriceReason)
}
