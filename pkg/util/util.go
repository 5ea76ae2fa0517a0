package util

import (
	"fmt"
	"os"

	"github.com/gogpu/ptxc/pkg/config"
)

// Error prints a formatted error message and exits the program.
func Error(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "ptxc: \033[31merror:\033[0m ")
	fmt.Fprintf(os.Stderr, format, args...)
	fmt.Fprintln(os.Stderr)
	os.Exit(1)
}

// Warn prints a formatted warning message if the corresponding warning is
// enabled, tagged with the flag that controls it.
func Warn(cfg *config.Config, wt config.Warning, format string, args ...interface{}) {
	if !cfg.IsWarningEnabled(wt) {
		return
	}
	fmt.Fprintf(os.Stderr, "ptxc: \033[33mwarning:\033[0m ")
	fmt.Fprintf(os.Stderr, format, args...)
	fmt.Fprintf(os.Stderr, " [-W%s]\n", cfg.Warnings[wt].Name)
}

// Info prints a formatted informational message.
func Info(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "ptxc: info: ")
	fmt.Fprintf(os.Stderr, format, args...)
	fmt.Fprintln(os.Stderr)
}

// PrintFeatures prints the current status of all features.
func PrintFeatures(cfg *config.Config) {
	for i := config.Feature(0); i < config.FeatCount; i++ {
		info := cfg.Features[i]
		fmt.Printf("  - %-16s: %v (%s)\n", info.Name, info.Enabled, info.Description)
	}
}

// PrintWarnings prints the current status of all warnings.
func PrintWarnings(cfg *config.Config) {
	for i := config.Warning(0); i < config.WarnCount; i++ {
		info := cfg.Warnings[i]
		fmt.Printf("  - %-16s: %v (%s)\n", info.Name, info.Enabled, info.Description)
	}
}
