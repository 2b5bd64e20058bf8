// Command info pretty-prints the format metadata at a VFS location:
// a volume system's partition table, a storage image's header fields,
// or a file system's superblock or boot-sector fields. It does not
// list directory contents.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/keramics/keramics/internal/config"
	"github.com/keramics/keramics/internal/fsio"
	"github.com/keramics/keramics/internal/metrics"
	"github.com/keramics/keramics/internal/vfs"
)

func showHelp() {
	fmt.Println("usage: info [--config file] [--metrics] <format> <source-path> [vfs-path]")
	fmt.Println()
	fmt.Println("formats: apm, gpt, mbr, qcow, sparseimage, udif, vhd, vhdx,")
	fmt.Println("         ewf, ext, ntfs, fat")
	fmt.Println()
	fmt.Println("vfs-path, if given, names the container within source-path holding")
	fmt.Println("the target (e.g. /p1, /vhd1) using the path syntax of the")
	fmt.Println("composition engine; omit it when source-path is already the raw")
	fmt.Println("stream to decode.")
	fmt.Println()
	fmt.Println("--config names a YAML file sizing the VFS caches and scan window.")
	fmt.Println("--metrics dumps decode/cache counters to stdout after printing.")
	os.Exit(1)
}

func main() {
	args, configPath, wantMetrics := splitFlags(os.Args[1:])
	if len(args) < 2 {
		showHelp()
	}
	format := args[0]
	sourcePath := args[1]
	vfsPath := ""
	if len(args) > 2 {
		vfsPath = args[2]
	}

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
	loc, err := vfs.ParsePathString(resolver, sourcePath, vfsPath)
	if err != nil {
		fmt.Printf("Unable to resolve VFS path: %s\n", err)
		os.Exit(1)
	}
	stream, err := resolver.OpenDataStream(loc)
	if err != nil {
		fmt.Printf("Unable to open source: %s\n", err)
		os.Exit(1)
	}

	printer, ok := printerByFormat(format)
	if !ok {
		fmt.Printf("Unknown format: %s\n", format)
		os.Exit(1)
	}
	err = printer(stream)
	collector.RecordDecode(format, err)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

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

func printerByFormat(format string) (func(fsio.DataStream) error, bool) {
	switch format {
	case "apm":
		return printAPM, true
	case "gpt":
		return printGPT, true
	case "mbr":
		return printMBR, true
	case "qcow":
		return printQCOW, true
	case "sparseimage":
		return printSparseImage, true
	case "udif":
		return printUDIF, true
	case "vhd":
		return printVHD, true
	case "vhdx":
		return printVHDX, true
	case "ewf":
		return printEWF, true
	case "ext":
		return printExt, true
	case "ntfs":
		return printNTFS, true
	case "fat":
		return printFAT, true
	default:
		return nil, false
	}
}
