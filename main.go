package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"runtime"
	"sort"
	"strings"
	"time"

	"leafscan/config"
	"leafscan/evaluation"
	"leafscan/features"
	"leafscan/logging"
	"leafscan/pipeline"
	"leafscan/signalhandler"
	"leafscan/similarity"
	"leafscan/store"
	"leafscan/types"
	"leafscan/utils"
)

func main() {
	// Set up proper signal handling
	signalhandler.SetupHandler()

	// Set the optimal number of CPUs to use
	runtime.GOMAXPROCS(signalhandler.GetOptimalProcs())

	// Parse command line arguments into a map
	args := utils.ParseArguments()

	command, hasCommand := args["command"]

	// Check if required arguments are missing
	showUsage := !hasCommand
	if hasCommand && (command == "ingest" || command == "evaluate") && args["dataset"] == "" {
		showUsage = true
	}
	if hasCommand && command == "diagnose" && args["image"] == "" {
		showUsage = true
	}
	if hasCommand && command == "export" && args["output"] == "" {
		showUsage = true
	}
	if showUsage {
		utils.PrintUsage()
		os.Exit(1)
	}

	cfg, err := config.Load(args["config"])
	if err != nil {
		log.Fatalf("Error loading configuration: %v", err)
	}
	applyArgOverrides(cfg, args)

	if err := logging.Setup(cfg.Logging.File, cfg.Logging.Verbose); err != nil {
		fmt.Printf("Warning: Failed to setup logging: %v\n", err)
	} else if cfg.Logging.File != "" {
		fmt.Printf("Logging to: %s\n", cfg.Logging.File)
	}
	signalhandler.RegisterCleanup(logging.Close)
	defer logging.Close()

	switch command {
	case "ingest":
		handleIngest(args, cfg)
	case "diagnose":
		handleDiagnose(args, cfg)
	case "evaluate":
		handleEvaluate(args, cfg)
	case "stats":
		handleStats(cfg)
	case "list":
		handleList(args, cfg)
	case "export":
		handleExport(args, cfg)
	case "clear":
		handleClear(cfg)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		utils.PrintUsage()
		os.Exit(1)
	}
}

// applyArgOverrides folds command-line flags over the loaded config.
func applyArgOverrides(cfg *config.Config, args map[string]string) {
	if dbPath, ok := args["database"]; ok && dbPath != "" {
		cfg.Store.Path = dbPath
	} else if dbPath, ok := args["db"]; ok && dbPath != "" {
		// Allow --db as an alias for --database
		cfg.Store.Path = dbPath
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = utils.GetDefaultStorePath()
	}
	if _, ok := args["verbose"]; ok {
		cfg.Logging.Verbose = true
	}
	if logPath, ok := args["logfile"]; ok && logPath != "" {
		cfg.Logging.File = logPath
	}
	if resultsDir, ok := args["results"]; ok && resultsDir != "" {
		cfg.Pipeline.ResultsDir = resultsDir
	}
}

// openStore opens the feature store and registers its cleanup.
func openStore(cfg *config.Config) *store.Store {
	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		log.Fatalf("Error opening feature store: %v", err)
	}
	signalhandler.RegisterCleanup(func() { db.Close() })
	return db
}

// requireStore exits when the store file has never been created.
func requireStore(cfg *config.Config) {
	if _, err := os.Stat(cfg.Store.Path); os.IsNotExist(err) {
		log.Fatalf("Feature store does not exist: %s. Run ingest first.", cfg.Store.Path)
	}
}

func handleIngest(args map[string]string, cfg *config.Config) {
	datasetPath := args["dataset"]

	// Verify dataset path exists and is accessible
	datasetInfo, err := os.Stat(datasetPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Fatalf("Dataset path does not exist: %s", datasetPath)
		}
		log.Fatalf("Cannot access dataset path: %s (%v)", datasetPath, err)
	}
	if !datasetInfo.IsDir() {
		log.Fatalf("Dataset path is not a directory: %s", datasetPath)
	}

	startTime := time.Now()

	// Open the store with retry, SQLite may be briefly locked by another run
	var db *store.Store
	const maxRetries = 3
	for i := 0; i < maxRetries; i++ {
		db, err = store.Open(cfg.Store.Path)
		if err == nil {
			break
		}
		if i < maxRetries-1 {
			log.Printf("Error opening store (attempt %d/%d): %v - retrying...", i+1, maxRetries, err)
			time.Sleep(time.Second * time.Duration(i+1))
		} else {
			log.Fatalf("Error opening store after %d attempts: %v", maxRetries, err)
		}
	}
	defer db.Close()
	signalhandler.RegisterCleanup(func() { db.Close() })

	engine := pipeline.NewEngine(cfg, db)

	fmt.Printf("Starting dataset ingestion...\n")
	fmt.Printf("Dataset: %s\n", datasetPath)
	fmt.Printf("Feature store: %s\n", cfg.Store.Path)
	fmt.Printf("Workers: %d\n", engine.Workers())

	summary, err := engine.Ingest(context.Background(), datasetPath)
	if err != nil {
		log.Fatalf("Error ingesting dataset: %v", err)
	}

	fmt.Printf("\nIngestion complete.\n")
	fmt.Printf("Total execution time: %v\n", time.Since(startTime).Round(time.Second))
	fmt.Printf("\nSummary:\n")
	for _, category := range summary.Categories {
		cs := summary.Stats[category]
		fmt.Printf("- %s: %d stored, %d failed\n", category, cs.Processed, cs.Failed)
	}
	fmt.Printf("Total: %d stored, %d failed (%.1f%% success)\n",
		summary.TotalProcessed(), summary.TotalFailed(), summary.SuccessRate())

	if stats, err := db.Stats(); err == nil {
		fmt.Printf("Store now holds %d signatures across %d categories.\n",
			stats.TotalImages, len(stats.Categories))
	}
}

func handleDiagnose(args map[string]string, cfg *config.Config) {
	imagePath := args["image"]

	// Verify paths exist
	if _, err := os.Stat(imagePath); os.IsNotExist(err) {
		log.Fatalf("Image does not exist: %s", imagePath)
	}
	requireStore(cfg)

	db := openStore(cfg)
	defer db.Close()

	engine := pipeline.NewEngine(cfg, db)

	fmt.Println("Analyzing leaf image...")
	diag, err := engine.Diagnose(context.Background(), imagePath)
	if errors.Is(err, similarity.ErrInsufficientMatches) {
		fmt.Println("\nNo sufficiently similar reference images were found.")
		fmt.Println("Retake the photo with better lighting and focus, or extend the reference corpus.")
		os.Exit(1)
	}
	if err != nil {
		log.Fatalf("Error diagnosing image: %v", err)
	}

	printDiagnosis(diag)
}

func printDiagnosis(diag *types.Diagnosis) {
	result := diag.Classification

	fmt.Printf("\nAnalysis results:\n")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Printf("Identified category: %s\n", result.IdentifiedCategory)
	fmt.Printf("Confidence level: %.1f%%\n", result.Confidence)
	fmt.Printf("Best match similarity: %.1f%%\n", result.BestMatch)
	if result.HasLesions {
		fmt.Printf("Disease evidence: lesions detected\n")
	} else {
		fmt.Printf("Disease evidence: none detected\n")
	}

	fmt.Printf("\nCategory distribution:\n")
	names := make([]string, 0, len(result.CategoryDistribution))
	for name := range result.CategoryDistribution {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("- %s: %.1f%%\n", name, result.CategoryDistribution[name])
	}

	fmt.Printf("\nMost similar images:\n")
	for i, m := range result.SimilarImages {
		fmt.Printf("%d. %s\n", i+1, m.ID)
		fmt.Printf("   Category: %s\n", m.Category)
		fmt.Printf("   Similarity: %.1f%%\n", m.Similarity)
	}

	fmt.Printf("\nRevocation risk: %s (score %.2f)\n", diag.Risk.Level, diag.Risk.Score)
	for _, factor := range diag.Risk.Factors {
		fmt.Printf("- %s\n", factor)
	}

	fmt.Printf("\nRecommendations (%s):\n", diag.Advisory.Tier)
	for _, step := range diag.Advisory.Steps {
		fmt.Printf("- %s\n", step)
	}

	fmt.Printf("\nTotal analysis time: %dms\n", diag.ElapsedMillis)
}

func handleEvaluate(args map[string]string, cfg *config.Config) {
	datasetPath := args["dataset"]

	datasetInfo, err := os.Stat(datasetPath)
	if err != nil {
		log.Fatalf("Cannot access test dataset: %s (%v)", datasetPath, err)
	}
	if !datasetInfo.IsDir() {
		log.Fatalf("Test dataset path is not a directory: %s", datasetPath)
	}
	requireStore(cfg)

	db := openStore(cfg)
	defer db.Close()

	engine := pipeline.NewEngine(cfg, db)
	harness := evaluation.NewHarness(engine)

	fmt.Printf("Evaluating against labeled test images...\n")
	fmt.Printf("Test dataset: %s\n", datasetPath)
	fmt.Printf("Workers: %d\n", engine.Workers())

	startTime := time.Now()
	report, err := harness.Run(context.Background(), datasetPath)
	if err != nil {
		log.Fatalf("Error running evaluation: %v", err)
	}

	printMetrics(report)
	fmt.Printf("\nTotal evaluation time: %v\n", time.Since(startTime).Round(time.Second))

	savedPath, err := report.Save(cfg.Pipeline.ResultsDir)
	if err != nil {
		log.Printf("Warning: could not save report: %v", err)
		return
	}
	fmt.Printf("Report saved to: %s\n", savedPath)
}

func printMetrics(report *evaluation.Report) {
	m := report.Metrics

	fmt.Printf("\nEvaluation results:\n")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Printf("Images evaluated: %d (%d failed)\n", m.TotalTests, report.Failures)
	fmt.Printf("Overall accuracy: %.3f\n", m.OverallAccuracy)
	fmt.Printf("Precision (weighted): %.3f\n", m.Precision)
	fmt.Printf("Recall (weighted): %.3f\n", m.Recall)
	fmt.Printf("F1 score (weighted): %.3f\n", m.F1Score)
	fmt.Printf("Average confidence: %.1f%% (std %.1f)\n", m.AvgConfidence, m.StdConfidence)
	fmt.Printf("Average risk score: %.2f\n", m.AvgRiskScore)

	fmt.Printf("\nConfusion matrix (rows are true labels):\n")
	for i, row := range m.ConfusionMatrix {
		fmt.Printf("  %-18s %v\n", m.Labels[i], row)
	}

	fmt.Printf("\nConfidence distribution:\n")
	fmt.Printf("- High (>=80%%): %d images, accuracy %.3f\n", m.HighConfidence.Count, m.HighConfidence.Accuracy)
	fmt.Printf("- Medium (60-80%%): %d images, accuracy %.3f\n", m.MediumConfidence.Count, m.MediumConfidence.Accuracy)
	fmt.Printf("- Low (<60%%): %d images, accuracy %.3f\n", m.LowConfidence.Count, m.LowConfidence.Accuracy)

	fmt.Printf("\nRisk analysis:\n")
	for _, level := range []types.RiskLevel{types.RiskLow, types.RiskMedium, types.RiskHigh} {
		group, ok := m.RiskAnalysis[level]
		if !ok {
			continue
		}
		fmt.Printf("- %s: %d images, accuracy %.3f, avg confidence %.1f%%, avg risk %.2f\n",
			level, group.Count, group.Accuracy, group.AvgConfidence, group.AvgRiskScore)
	}
}

func handleStats(cfg *config.Config) {
	requireStore(cfg)

	db := openStore(cfg)
	defer db.Close()

	stats, err := db.Stats()
	if err != nil {
		log.Fatalf("Error reading store statistics: %v", err)
	}

	fmt.Printf("Feature store: %s\n", cfg.Store.Path)
	fmt.Printf("Total images: %d\n", stats.TotalImages)

	if len(stats.Categories) > 0 {
		fmt.Printf("\nImages per category:\n")
		names := make([]string, 0, len(stats.Categories))
		for name := range stats.Categories {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("- %s: %d\n", name, stats.Categories[name])
		}
	}
	if stats.LastUpdate != "" {
		fmt.Printf("\nLast update: %s\n", stats.LastUpdate)
	}
}

func handleList(args map[string]string, cfg *config.Config) {
	requireStore(cfg)

	db := openStore(cfg)
	defer db.Close()

	// A single id shows the full record
	if id, ok := args["id"]; ok && id != "" {
		sig, err := db.Get(id)
		if errors.Is(err, store.ErrNotFound) {
			log.Fatalf("No signature stored under id: %s", id)
		}
		if err != nil {
			log.Fatalf("Error reading signature: %v", err)
		}
		printSignature(sig)
		return
	}

	limit := 20
	if limitStr, ok := args["limit"]; ok {
		parsed, err := utils.ParseLimit(limitStr, limit)
		if err != nil {
			fmt.Printf("Warning: %v\n", err)
		}
		limit = parsed
	}

	var (
		records []types.StoredSignature
		err     error
	)
	if category, ok := args["category"]; ok && category != "" {
		records, err = db.ListByCategory(category)
	} else {
		records, err = db.List(limit)
	}
	if err != nil {
		log.Fatalf("Error listing signatures: %v", err)
	}

	if len(records) == 0 {
		fmt.Println("No stored signatures matched.")
		return
	}
	for i, sig := range records {
		fmt.Printf("%d. %s\n", i+1, sig.ID)
		fmt.Printf("   Category: %s\n", sig.Metadata.Category)
		fmt.Printf("   Path: %s\n", sig.Metadata.Path)
		fmt.Printf("   Processed: %s\n", sig.Metadata.ProcessingDate)
	}
}

func printSignature(sig *types.StoredSignature) {
	fmt.Printf("ID: %s\n", sig.ID)
	fmt.Printf("Category: %s\n", sig.Metadata.Category)
	fmt.Printf("Path: %s\n", sig.Metadata.Path)
	fmt.Printf("Processed: %s\n", sig.Metadata.ProcessingDate)

	if len(sig.Vector) != features.VectorSize {
		return
	}
	names := features.Names()
	fmt.Printf("\nShape features:\n")
	for i := features.ShapeStart; i < features.ShapeEnd; i++ {
		fmt.Printf("- %s: %.4f\n", names[i], sig.Vector[i])
	}
}

func handleExport(args map[string]string, cfg *config.Config) {
	outputPath := args["output"]
	requireStore(cfg)

	db := openStore(cfg)
	defer db.Close()

	if err := db.Export(outputPath); err != nil {
		log.Fatalf("Error exporting store: %v", err)
	}

	stats, err := db.Stats()
	if err != nil {
		log.Fatalf("Error reading store statistics: %v", err)
	}
	fmt.Printf("Exported %d signatures to %s\n", stats.TotalImages, outputPath)
}

func handleClear(cfg *config.Config) {
	requireStore(cfg)

	db := openStore(cfg)
	defer db.Close()

	stats, err := db.Stats()
	if err != nil {
		log.Fatalf("Error reading store statistics: %v", err)
	}
	if err := db.Clear(); err != nil {
		log.Fatalf("Error clearing store: %v", err)
	}
	fmt.Printf("Removed %d signatures from %s\n", stats.TotalImages, cfg.Store.Path)
}
