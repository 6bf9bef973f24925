package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// commands recognized on the command line, in usage order.
var commands = []string{"ingest", "diagnose", "evaluate", "stats", "list", "export", "clear"}

// ParseArguments converts command-line arguments into a map of flags and values
func ParseArguments() map[string]string {
	args := make(map[string]string)

	// First, identify the command
	commandIndex := -1
	for i := 1; i < len(os.Args); i++ {
		if isCommand(os.Args[i]) {
			args["command"] = os.Args[i]
			commandIndex = i
			break
		}
	}

	// Process all arguments, skipping the command
	for i := 1; i < len(os.Args); i++ {
		if i == commandIndex {
			continue
		}

		arg := os.Args[i]

		// Handle flags with equals sign (--key=value)
		if strings.HasPrefix(arg, "--") && strings.Contains(arg, "=") {
			parts := strings.SplitN(arg, "=", 2)
			flagName := strings.TrimPrefix(parts[0], "--")
			args[flagName] = parts[1]
			continue
		}

		// Handle flags without equals sign (--key value)
		if strings.HasPrefix(arg, "--") {
			flagName := strings.TrimPrefix(arg, "--")

			// Check if this is a boolean flag (no value)
			if i+1 >= len(os.Args) || strings.HasPrefix(os.Args[i+1], "--") || isCommand(os.Args[i+1]) {
				args[flagName] = "true"
			} else {
				// The next argument is the value
				args[flagName] = os.Args[i+1]
				i++ // Skip the value in the next iteration
			}
		}
	}

	return args
}

func isCommand(word string) bool {
	for _, c := range commands {
		if word == c {
			return true
		}
	}
	return false
}

// GetDefaultStorePath returns the default path for the feature store file
func GetDefaultStorePath() string {
	// Get the executable path
	exePath, err := os.Executable()
	if err != nil {
		// Fallback to current directory if executable path can't be determined
		return "leafscan.db"
	}

	// Keep the store next to the executable
	return filepath.Join(filepath.Dir(exePath), "leafscan.db")
}

// PrintUsage outputs the command-line usage instructions
func PrintUsage() {
	fmt.Printf("Usage:\n")
	fmt.Printf("  %s ingest --dataset=PATH [--database=PATH] [--config=PATH] [--verbose] [--logfile=PATH]\n", os.Args[0])
	fmt.Printf("  %s diagnose --image=PATH [--database=PATH] [--config=PATH]\n", os.Args[0])
	fmt.Printf("  %s evaluate --dataset=PATH [--database=PATH] [--config=PATH] [--results=PATH]\n", os.Args[0])
	fmt.Printf("  %s stats [--database=PATH]\n", os.Args[0])
	fmt.Printf("  %s list [--database=PATH] [--category=NAME] [--id=NAME] [--limit=N]\n", os.Args[0])
	fmt.Printf("  %s export --output=PATH [--database=PATH]\n", os.Args[0])
	fmt.Printf("  %s clear [--database=PATH]\n", os.Args[0])
	fmt.Printf("\nParameters:\n")
	fmt.Printf("  --dataset     : Directory whose subdirectories are category-labeled images\n")
	fmt.Printf("  --image       : Path to the leaf photograph to diagnose\n")
	fmt.Printf("  --database    : Path to the feature store (default: %s)\n", GetDefaultStorePath())
	fmt.Printf("  --config      : YAML file overriding the calibrated defaults\n")
	fmt.Printf("  --results     : Directory for evaluation reports (default: evaluation_results)\n")
	fmt.Printf("  --category    : Restrict list output to one category\n")
	fmt.Printf("  --id          : Show one stored signature in detail\n")
	fmt.Printf("  --limit       : Maximum records to list (default: 20)\n")
	fmt.Printf("  --output      : Destination file for export\n")
	fmt.Printf("  --verbose     : Enable debug logging\n")
	fmt.Printf("  --logfile     : Write log events to this file as well\n")
	fmt.Printf("\nExamples:\n")
	fmt.Printf("  %s ingest --dataset=image/dataset --verbose\n", os.Args[0])
	fmt.Printf("  %s diagnose --image=image/uploads/leaf_03.jpg\n", os.Args[0])
	fmt.Printf("  %s evaluate --dataset=image/test_dataset\n", os.Args[0])
}

// ParseLimit parses and validates a positive integer flag value
func ParseLimit(limitStr string, fallback int) (int, error) {
	parsed, err := strconv.Atoi(limitStr)
	if err != nil || parsed <= 0 {
		return fallback, fmt.Errorf("invalid limit value '%s', using default (%d)", limitStr, fallback)
	}
	return parsed, nil
}
