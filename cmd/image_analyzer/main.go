// Command image_analyzer walks an unknown source with the signature
// scanner and prints the VFS tree it discovers: every volume system,
// image layer, and file system found nested inside the source file,
// indented by depth.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/keramics/keramics/internal/config"
	"github.com/keramics/keramics/internal/metrics"
	"github.com/keramics/keramics/internal/vfs"
)

func showHelp() {
	fmt.Println("usage: image_analyzer [--config file] [--metrics] <source-path>")
	fmt.Println()
	fmt.Println("--config names a YAML file sizing the VFS caches and scan window.")
	fmt.Println("--metrics dumps decode/cache counters to stdout after the walk.")
	os.Exit(1)
}

func main() {
	args, configPath, wantMetrics := splitFlags(os.Args[1:])
	if len(args) != 1 {
		showHelp()
	}
	sourcePath := args[0]

	cfg := config.NewDefault()
	if configPath != "" {
		loaded, err := config.LoadFromFile(configPath)
		if err != nil {
			fmt.Printf("Unable to load config: %s\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("Invalid config: %s\n", err)
		os.Exit(1)
	}

	collector := metrics.NewCollector()
	resolver := vfs.NewResolverWithCapacity(cfg.Cache.Capacity)
	scanner, err := vfs.NewScannerWithWindow(resolver, cfg.Scan.WindowBytes)
	if err != nil {
		fmt.Printf("Unable to build scanner: %s\n", err)
		os.Exit(1)
	}
	tree, err := scanner.Scan(sourcePath)
	collector.RecordDecode("scan", err)
	if err != nil {
		fmt.Printf("Unable to scan source: %s\n", err)
		os.Exit(1)
	}
	printNode(tree, 0)

	if wantMetrics {
		text, err := collector.DumpText()
		if err != nil {
			fmt.Printf("Unable to render metrics: %s\n", err)
			os.Exit(1)
		}
		fmt.Println(text)
	}
}

// splitFlags pulls --config/--metrics out of args, in whichever
// position the caller gave them, and returns the remaining positional
// arguments alongside their values.
func splitFlags(args []string) (positional []string, configPath string, wantMetrics bool) {
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--metrics":
			wantMetrics = true
		case args[i] == "--config" && i+1 < len(args):
			i++
			configPath = args[i]
		case strings.HasPrefix(args[i], "--config="):
			configPath = strings.TrimPrefix(args[i], "--config=")
		default:
			positional = append(positional, args[i])
		}
	}
	return positional, configPath, wantMetrics
}

func printNode(node *vfs.VfsScanNode, depth int) {
	for i := 0; i < depth; i++ {
		fmt.Print("    ")
	}
	fmt.Println(node.Location.Path.String())
	for _, child := range node.Children {
		printNode(child, depth+1)
	}
}
