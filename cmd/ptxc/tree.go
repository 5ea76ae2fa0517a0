package main

import (
	"fmt"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/types"
	"github.com/m1gwings/treedrawer/tree"
)

// printModuleTree draws the module's functions, blocks and instruction counts
// as a tree on stdout.
func printModuleTree(name string, m *ir.Module) {
	root := tree.NewTree(tree.NodeString(name))

	if len(m.Globals) > 0 {
		globals := root.AddChild(tree.NodeString("globals"))
		for _, gv := range m.Globals {
			globals.AddChild(tree.NodeString(gv.Name()))
		}
	}

	for _, f := range m.Funcs {
		label := f.Name()
		if len(f.Blocks) == 0 {
			label += " (decl)"
		} else if _, void := f.Sig.RetType.(*types.VoidType); void {
			label += " (kernel)"
		}
		fn := root.AddChild(tree.NodeString(label))
		for i, b := range f.Blocks {
			fn.AddChild(tree.NodeString(fmt.Sprintf("block %d: %d insts", i, len(b.Insts))))
		}
	}

	fmt.Println(root)
}
