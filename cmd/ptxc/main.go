package main

import (
	"fmt"
	"os"

	"github.com/llir/llvm/asm"
	"github.com/llir/llvm/ir"

	"github.com/gogpu/ptxc/pkg/cli"
	"github.com/gogpu/ptxc/pkg/config"
	"github.com/gogpu/ptxc/pkg/driver"
	"github.com/gogpu/ptxc/pkg/loader"
	"github.com/gogpu/ptxc/pkg/nvptx"
	"github.com/gogpu/ptxc/pkg/util"
)

func main() {
	app := cli.NewApp("ptxc")
	app.Synopsis = "[options] <input.ll> ..."
	app.Description = "Lowers LLVM IR modules to PTX assembly for NVIDIA GPUs and optionally assembles and loads them through the CUDA driver."
	app.Repository = "<https://github.com/gogpu/ptxc>"

	var (
		outFile      string
		arch         string
		toolkit      string
		assembler    string
		load         bool
		dumpTree     bool
		verbose      bool
		warningFlags []string
		featureFlags []string
	)

	fs := app.FlagSet
	fs.String(&outFile, "output", "o", "", "Place the PTX output into <file>; empty or '-' writes to stdout.", "file")
	fs.String(&arch, "arch", "a", "sm_70", "Target compute capability.", "sm_NN")
	fs.String(&toolkit, "cuda", "c", "11.3", "CUDA toolkit version the PTX must be compatible with.", "version")
	fs.String(&assembler, "assembler", "", "ptxas", "PTX assembler binary to use with --load.", "path")
	fs.Bool(&load, "load", "l", false, "Assemble the PTX and load it through the CUDA driver.")
	fs.Bool(&dumpTree, "dump-tree", "d", false, "Print the module structure as a tree and exit.")
	fs.Bool(&verbose, "verbose", "v", false, "Print progress information.")
	fs.Special(&warningFlags, "W", "Toggle a warning (e.g. -Wno-clamp-capability).", "name")
	fs.Special(&featureFlags, "F", "Toggle a code generation feature (e.g. -Funsafe-math).", "name")

	cfg := config.NewConfig()
	fs.AddGroup("Warnings", "W", groupEntries(warningEntries(cfg)))
	fs.AddGroup("Features", "F", groupEntries(featureEntries(cfg)))

	app.Action = func(inputFiles []string) error {
		cfg.ProcessFlags(func(fn func(name string)) {
			for _, w := range warningFlags {
				fn("W" + w)
			}
			for _, f := range featureFlags {
				fn("F" + f)
			}
		})
		if err := cfg.SetArch(arch); err != nil {
			util.Error("%v", err)
		}
		if err := cfg.SetToolkit(toolkit); err != nil {
			util.Error("%v", err)
		}
		cfg.Assembler = assembler

		if len(inputFiles) == 0 {
			util.Error("no input files specified")
		}

		mod, err := parseModules(inputFiles)
		if err != nil {
			util.Error("%v", err)
		}

		if dumpTree {
			printModuleTree(inputFiles[0], mod)
			return nil
		}

		ptxVersion, err := nvptx.ResolveDialect(cfg.ToolkitVersion)
		if err != nil {
			util.Error("%v", err)
		}
		if cfg.ComputeCapability > nvptx.MaxBackendCapability {
			util.Warn(cfg, config.WarnClampCapability,
				"sm_%d exceeds the back end ceiling; code is generated for sm_%d, the .target directive keeps sm_%d",
				cfg.ComputeCapability, nvptx.MaxBackendCapability, cfg.ComputeCapability)
		}
		if ptxVersion > nvptx.MaxBackendPTX {
			util.Warn(cfg, config.WarnClampDialect,
				"PTX ISA %s exceeds the back end ceiling; code is generated for ISA %s, the .version directive keeps %s",
				nvptx.DialectString(ptxVersion), nvptx.DialectString(nvptx.MaxBackendPTX), nvptx.DialectString(ptxVersion))
		}

		if verbose {
			util.Info("lowering %d function(s) for sm_%d, PTX ISA %s",
				len(mod.Funcs), cfg.ComputeCapability, nvptx.DialectString(ptxVersion))
		}
		ptx, err := nvptx.EmitWithOptions(mod, cfg.ComputeCapability, cfg.ToolkitVersion, cfg.MachineOptions())
		if err != nil {
			util.Error("%v", err)
		}

		if err := writeOutput(outFile, ptx); err != nil {
			util.Error("%v", err)
		}

		if load {
			if err := loadModule(cfg, ptx, verbose); err != nil {
				util.Error("%v", err)
			}
		}
		return nil
	}

	if err := app.Run(os.Args[1:]); err != nil {
		os.Exit(1)
	}
}

// parseModules parses every input file and merges the results into a single
// module.
func parseModules(paths []string) (*ir.Module, error) {
	var mod *ir.Module
	for _, path := range paths {
		m, err := asm.ParseFile(path)
		if err != nil {
			return nil, err
		}
		if mod == nil {
			mod = m
			continue
		}
		mod.TypeDefs = append(mod.TypeDefs, m.TypeDefs...)
		mod.Globals = append(mod.Globals, m.Globals...)
		mod.Funcs = append(mod.Funcs, m.Funcs...)
	}
	return mod, nil
}

func writeOutput(outFile, ptx string) error {
	if outFile == "" || outFile == "-" {
		_, err := fmt.Print(ptx)
		return err
	}
	return os.WriteFile(outFile, []byte(ptx), 0o644)
}

func loadModule(cfg *config.Config, ptx string, verbose bool) error {
	d, err := driver.Open()
	if err != nil {
		return err
	}
	l := &loader.Loader{Assembler: cfg.Assembler, Driver: d}
	if !l.AssemblerAvailable() {
		util.Warn(cfg, config.WarnFallbackJIT,
			"no working PTX assembler found, falling back to the driver's JIT compiler")
	}
	mod, err := l.Load(ptx, cfg.ComputeCapability)
	if err != nil {
		return err
	}
	if verbose {
		util.Info("module loaded, handle %#x", uintptr(mod))
	}
	return nil
}

func warningEntries(cfg *config.Config) map[string]config.Info {
	entries := make(map[string]config.Info, len(cfg.Warnings))
	for i := config.Warning(0); i < config.WarnCount; i++ {
		info := cfg.Warnings[i]
		entries[info.Name] = info
	}
	return entries
}

func featureEntries(cfg *config.Config) map[string]config.Info {
	entries := make(map[string]config.Info, len(cfg.Features))
	for i := config.Feature(0); i < config.FeatCount; i++ {
		info := cfg.Features[i]
		entries[info.Name] = info
	}
	return entries
}

func groupEntries(infos map[string]config.Info) []cli.GroupEntry {
	entries := make([]cli.GroupEntry, 0, len(infos))
	for _, info := range infos {
		entries = append(entries, cli.GroupEntry{
			Name:    info.Name,
			Usage:   info.Description,
			Enabled: info.Enabled,
		})
	}
	return entries
}
