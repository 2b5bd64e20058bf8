package main

import "fmt"

var bytesizeUnits = [...]string{"", "K", "M", "G", "T", "P", "E", "Z", "Y"}

// formatBytesize renders value using base-1024 units (KiB, MiB, ...),
// falling back to a plain "N B" below one unit. No ecosystem
// byte-size formatter appears anywhere in the example corpus, so this
// stays a small stdlib helper rather than a dependency.
func formatBytesize(value uint64) string {
	factor := uint64(1)
	nextFactor := uint64(1024)
	unitsIndex := 0
	for nextFactor <= value {
		factor = nextFactor
		nextFactor *= 1024
		unitsIndex++
	}
	if unitsIndex == 0 {
		return fmt.Sprintf("%d B", value)
	}
	return fmt.Sprintf("%.1f %siB", float64(value)/float64(factor), bytesizeUnits[unitsIndex])
}
