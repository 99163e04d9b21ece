package main

import (
	"fmt"
	"strings"

	"bitbucket.org/Davydov/charphy/tree"
)

// tree command options
var (
	treeCmd  = app.Command("tree", "tree manipulations")
	treeIn   = treeCmd.Arg("tree", "tree in newick format").Required().ExistingFile()
	treeMode = treeCmd.Flag("mode", "program mode "+
		"(newick: reformat, "+
		"brlen: export branch lengths, "+
		"splits: export non-trivial splits with lengths, "+
		"ladderize: sort clades by size, "+
		"reroot: root at --outgroup, "+
		"restrict: keep only --taxon leaves, "+
		"prune: remove --taxon leaves, "+
		"collapse: contract branches not longer than --min)").
		Default("newick").
		Enum("newick", "brlen", "splits", "ladderize", "reroot", "restrict", "prune", "collapse")
	outgroup = treeCmd.Flag("outgroup", "outgroup leaf for reroot").String()
	resolve  = treeCmd.Flag("resolve", "place a binary root on the outgroup branch").Bool()
	taxa     = treeCmd.Flag("taxon", "leaf name for restrict and prune (repeatable)").Strings()
	minLen   = treeCmd.Flag("min", "maximal branch length to collapse").Default("0").Float64()
)

// transformTree applies a tree command mode and returns the text to
// print.
func transformTree(t *tree.Tree, mode string) (string, error) {
	var err error
	var sb strings.Builder
	switch mode {
	case "newick":
	case "brlen":
		for _, node := range t.Nodes() {
			if !node.IsRoot() {
				fmt.Fprintf(&sb, "br%d=%f\n", node.Id, node.BranchLength)
			}
		}
		return sb.String(), nil
	case "splits":
		lengths := t.SplitLengths()
		for _, b := range t.Bipartitions() {
			fmt.Fprintf(&sb, "%s\t%f\n", b, lengths[b.String()])
		}
		return sb.String(), nil
	case "ladderize":
		t = t.Ladderize()
	case "reroot":
		t, err = t.Reroot(*outgroup, *resolve)
	case "restrict":
		t, err = t.Restrict(*taxa...)
	case "prune":
		t, err = t.Prune(*taxa...)
	case "collapse":
		t = t.CollapseShorter(*minLen)
	default:
		return "", fmt.Errorf("unknown mode %q", mode)
	}
	if err != nil {
		return "", err
	}
	return t.String() + "\n", nil
}

func (r *runner) tree(fn string) error {
	t, err := readTree(fn)
	if err != nil {
		return err
	}
	log.Infof("Read tree with %d leaves, rooted=%v", t.NLeaves(), t.IsRooted())
	s, err := transformTree(t, *treeMode)
	if err != nil {
		return err
	}
	r.summary.StartingTree = t.Newick()
	return output(s)
}
