// ptxgolden runs the ptxc compiler over a set of LLVM IR files and compares
// the emitted PTX against golden files checked in next to the sources.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/go-cmp/cmp"
)

type Execution struct {
	Stderr   string        `json:"stderr,omitempty"`
	ExitCode int           `json:"exitCode"`
	Duration time.Duration `json:"duration"`
	TimedOut bool          `json:"timed_out,omitempty"`
}

type FileResult struct {
	File    string    `json:"file"`
	Status  string    `json:"status"` // PASS, FAIL, SKIP, ERROR
	Message string    `json:"message,omitempty"`
	Diff    string    `json:"diff,omitempty"`
	Compile Execution `json:"compile"`
}

var (
	compiler     = flag.String("compiler", "./ptxc", "Path to the compiler under test.")
	compilerArgs = flag.String("compiler-args", "", "Extra arguments for the compiler (space-separated).")
	testFiles    = flag.String("test-files", "testdata/*.ll", "Glob pattern(s) for files to test (space-separated).")
	skipFiles    = flag.String("skip-files", "", "Files to skip (space-separated).")
	generate     = flag.Bool("generate", false, "Write golden files instead of comparing against them.")
	outputJSON   = flag.String("output", ".golden_results.json", "Output file for the JSON test report.")
	timeout      = flag.Duration("timeout", 10*time.Second, "Timeout for each compiler run.")
	jobs         = flag.Int("j", 4, "Number of parallel test jobs.")
	verbose      = flag.Bool("v", false, "Enable verbose logging.")
)

const (
	cRed    = "\x1b[91m"
	cYellow = "\x1b[93m"
	cGreen  = "\x1b[92m"
	cCyan   = "\x1b[96m"
	cBold   = "\x1b[1m"
	cNone   = "\x1b[0m"
)

func main() {
	flag.Parse()
	log.SetFlags(0)

	tempDir, err := os.MkdirTemp("", "ptxgolden-*")
	if err != nil {
		log.Fatalf("%s[ERROR]%s Failed to create temp directory: %v\n", cRed, cNone, err)
	}
	defer os.RemoveAll(tempDir)

	files, err := expandGlobPatterns(*testFiles)
	if err != nil {
		log.Fatalf("%s[ERROR]%s Invalid glob pattern(s): %v\n", cRed, cNone, err)
	}
	if len(files) == 0 {
		log.Println("No test files found matching the pattern(s).")
		return
	}

	skipList := make(map[string]bool)
	for _, f := range strings.Fields(*skipFiles) {
		abs, err := filepath.Abs(f)
		if err == nil {
			skipList[abs] = true
		}
	}

	tasks := make(chan string, len(files))
	resultsChan := make(chan *FileResult, len(files))
	var wg sync.WaitGroup

	for i := 0; i < *jobs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for file := range tasks {
				resultsChan <- testFile(file, tempDir)
			}
		}()
	}

	// Identical sources produce identical PTX; test each content hash once.
	seenHashes := make(map[uint64]string)
	for _, file := range files {
		if skipList[file] {
			resultsChan <- &FileResult{File: file, Status: "SKIP", Message: "Explicitly skipped"}
			continue
		}
		content, err := os.ReadFile(file)
		if err != nil {
			resultsChan <- &FileResult{File: file, Status: "ERROR", Message: fmt.Sprintf("Failed to read file: %v", err)}
			continue
		}
		hash := xxhash.Sum64(content)
		if original, seen := seenHashes[hash]; seen {
			resultsChan <- &FileResult{File: file, Status: "SKIP", Message: fmt.Sprintf("Content is identical to %s", original)}
			continue
		}
		seenHashes[hash] = file
		tasks <- file
	}
	close(tasks)

	wg.Wait()
	close(resultsChan)

	var results []*FileResult
	for r := range resultsChan {
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].File < results[j].File })

	printSummary(results)
	writeJSONReport(results)

	for _, r := range results {
		if r.Status == "FAIL" || r.Status == "ERROR" {
			os.Exit(1)
		}
	}
}

func goldenPath(sourceFile string) string {
	return sourceFile + ".golden"
}

func testFile(file, tempDir string) *FileResult {
	outFile := filepath.Join(tempDir, fmt.Sprintf("%016x.ptx", xxhash.Sum64String(file)))

	compile, err := runCompiler(file, outFile)
	if err != nil {
		return &FileResult{File: file, Status: "ERROR", Message: err.Error(), Compile: compile}
	}
	if compile.ExitCode != 0 || compile.TimedOut {
		return &FileResult{
			File:    file,
			Status:  "FAIL",
			Message: fmt.Sprintf("Compiler exited with code %d", compile.ExitCode),
			Diff:    compile.Stderr,
			Compile: compile,
		}
	}

	got, err := os.ReadFile(outFile)
	if err != nil {
		return &FileResult{File: file, Status: "ERROR", Message: "Compiler succeeded but produced no output file", Compile: compile}
	}

	golden := goldenPath(file)
	if *generate {
		if err := os.WriteFile(golden, got, 0o644); err != nil {
			return &FileResult{File: file, Status: "ERROR", Message: fmt.Sprintf("Failed to write golden file: %v", err), Compile: compile}
		}
		return &FileResult{File: file, Status: "PASS", Message: "Golden file written to " + golden, Compile: compile}
	}

	want, err := os.ReadFile(golden)
	if err != nil {
		return &FileResult{File: file, Status: "SKIP", Message: "No golden file; run with -generate first", Compile: compile}
	}

	if xxhash.Sum64(want) != xxhash.Sum64(got) {
		return &FileResult{
			File:    file,
			Status:  "FAIL",
			Message: "PTX output differs from the golden file",
			Diff:    cmp.Diff(string(want), string(got)),
			Compile: compile,
		}
	}
	return &FileResult{File: file, Status: "PASS", Message: "Output matches the golden file", Compile: compile}
}

func runCompiler(sourceFile, outFile string) (Execution, error) {
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	args := []string{"-o", outFile}
	args = append(args, strings.Fields(*compilerArgs)...)
	args = append(args, sourceFile)

	if *verbose {
		log.Printf("[%s] %s %s", sourceFile, *compiler, strings.Join(args, " "))
	}

	start := time.Now()
	cmd := exec.CommandContext(ctx, *compiler, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	err := cmd.Run()

	result := Execution{
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}
	switch {
	case ctx.Err() == context.DeadlineExceeded:
		result.TimedOut = true
		result.ExitCode = -1
	case err != nil:
		exitErr, ok := err.(*exec.ExitError)
		if !ok {
			return result, fmt.Errorf("could not run compiler: %w", err)
		}
		result.ExitCode = exitErr.ExitCode()
	}
	return result, nil
}

func printSummary(results []*FileResult) {
	var passed, failed, skipped, errored int
	for _, r := range results {
		fmt.Println("----------------------------------------------------------------------")
		fmt.Printf("Testing %s%s%s...\n", cCyan, r.File, cNone)
		switch r.Status {
		case "PASS":
			passed++
			fmt.Printf("  [%sPASS%s] %s (%s)\n", cGreen, cNone, r.Message, r.Compile.Duration.Round(time.Millisecond))
		case "FAIL":
			failed++
			fmt.Printf("  [%sFAIL%s] %s\n", cRed, cNone, r.Message)
			fmt.Println(formatDiff(r.Diff))
		case "SKIP":
			skipped++
			fmt.Printf("  [%sSKIP%s] %s\n", cYellow, cNone, r.Message)
		case "ERROR":
			errored++
			fmt.Printf("  [%sERROR%s] %s\n", cRed, cNone, r.Message)
		}
	}
	fmt.Println("----------------------------------------------------------------------")
	fmt.Printf("%sTest Summary:%s %s%d Passed%s, %s%d Failed%s, %s%d Skipped%s, %s%d Errored%s, %d Total\n",
		cBold, cNone, cGreen, passed, cNone, cRed, failed, cNone, cYellow, skipped, cNone, cRed, errored, cNone, len(results))
}

func formatDiff(diff string) string {
	if diff == "" {
		return ""
	}
	var builder strings.Builder
	builder.WriteString("    --- Diff ---\n")
	for _, line := range strings.Split(diff, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "-") {
			builder.WriteString(cRed)
		} else if strings.HasPrefix(trimmed, "+") {
			builder.WriteString(cGreen)
		}
		builder.WriteString("    " + line)
		builder.WriteString(cNone)
		builder.WriteString("\n")
	}
	return builder.String()
}

func writeJSONReport(results []*FileResult) {
	resultsMap := make(map[string]*FileResult, len(results))
	for _, r := range results {
		resultsMap[r.File] = r
	}
	jsonData, err := json.MarshalIndent(resultsMap, "", "  ")
	if err != nil {
		log.Printf("%s[ERROR]%s Failed to marshal results to JSON: %v\n", cRed, cNone, err)
		return
	}
	if err := os.WriteFile(*outputJSON, jsonData, 0o644); err != nil {
		log.Printf("%s[ERROR]%s Failed to write JSON report to %s: %v\n", cRed, cNone, *outputJSON, err)
		return
	}
	fmt.Printf("Full test report saved to %s\n", *outputJSON)
}

func expandGlobPatterns(patterns string) ([]string, error) {
	var allFiles []string
	seen := make(map[string]bool)
	for _, pattern := range strings.Fields(patterns) {
		files, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %s: %w", pattern, err)
		}
		for _, file := range files {
			absFile, err := filepath.Abs(file)
			if err != nil {
				continue
			}
			if !seen[absFile] {
				if info, err := os.Stat(absFile); err == nil && info.Mode().IsRegular() {
					allFiles = append(allFiles, absFile)
					seen[absFile] = true
				}
			}
		}
	}
	return allFiles, nil
}
