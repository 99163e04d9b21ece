package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	bolt "go.etcd.io/bbolt"

	"bitbucket.org/Davydov/charphy/checkpoint"
	"bitbucket.org/Davydov/charphy/config"
	"bitbucket.org/Davydov/charphy/tree"
)

const fasta = `>A
110110011010?1
>B
1101100110001?
>C
01001001100100
>D
00100110011010
>E
0011011001?011
>F
00110110010011
`

func setup(tst *testing.T) (*runner, string) {
	dir := tst.TempDir()
	ali := filepath.Join(dir, "chars.fst")
	if err := os.WriteFile(ali, []byte(fasta), 0644); err != nil {
		tst.Fatal(err)
	}
	*outF = filepath.Join(dir, "out.txt")
	*checkF = ""
	*plotF = ""
	tst.Cleanup(func() {
		*outF = ""
		*checkF = ""
		*plotF = ""
	})
	cfg := config.Default()
	cfg.Ratchet.Iterations = 3
	cfg.Likelihood.MaxCycles = 2
	return &runner{
		ctx:     context.Background(),
		cfg:     cfg,
		summary: &RunSummary{},
	}, ali
}

func readOut(tst *testing.T) string {
	b, err := os.ReadFile(*outF)
	if err != nil {
		tst.Fatal(err)
	}
	return string(b)
}

func TestDist(tst *testing.T) {
	r, ali := setup(tst)
	if err := r.dist(ali); err != nil {
		tst.Fatal(err)
	}
	if out := readOut(tst); !strings.Contains(out, "A") || !strings.Contains(out, "F") {
		tst.Error("Unexpected distance output:", out)
	}
	if r.summary.NTaxa != 6 || r.summary.NSites != 14 {
		tst.Errorf("Wrong matrix summary: %+v", r.summary)
	}
}

func TestNJ(tst *testing.T) {
	r, ali := setup(tst)
	if err := r.nj(ali); err != nil {
		tst.Fatal(err)
	}
	t, err := tree.ParseNewickString(readOut(tst))
	if err != nil {
		tst.Fatal(err)
	}
	if t.NLeaves() != 6 {
		tst.Error("Wrong number of leaves:", t.NLeaves())
	}
	if r.summary.ScoreKind != "length" {
		tst.Error("Wrong score kind:", r.summary.ScoreKind)
	}
}

func TestPars(tst *testing.T) {
	r, ali := setup(tst)
	r.cfg.Checkpoint.File = filepath.Join(tst.TempDir(), "checkpoint.db")
	*plotF = filepath.Join(tst.TempDir(), "trajectory.png")
	if err := r.pars(ali, ""); err != nil {
		tst.Fatal(err)
	}
	t, err := tree.ParseNewickString(readOut(tst))
	if err != nil {
		tst.Fatal(err)
	}
	if t.NLeaves() != 6 {
		tst.Error("Wrong number of leaves:", t.NLeaves())
	}
	if r.summary.Score <= 0 || r.summary.ScoreKind != "parsimony" {
		tst.Errorf("Wrong score: %+v", r.summary)
	}
	if _, err := os.Stat(*plotF); err != nil {
		tst.Error("No trajectory plot:", err)
	}

	db, err := bolt.Open(r.cfg.Checkpoint.File, 0600, nil)
	if err != nil {
		tst.Fatal(err)
	}
	defer db.Close()
	data, err := checkpoint.NewCheckpointIO(db, []byte("pars"), 0).Load()
	if err != nil || data == nil {
		tst.Fatal("No checkpoint:", err)
	}
	if !data.Final || data.Score != r.summary.Score {
		tst.Errorf("Wrong checkpoint: %+v", data)
	}
}

func TestML(tst *testing.T) {
	r, ali := setup(tst)
	r.cfg.Likelihood.NCat = 2
	if err := r.ml(ali, ""); err != nil {
		tst.Fatal(err)
	}
	if _, err := tree.ParseNewickString(readOut(tst)); err != nil {
		tst.Fatal(err)
	}
	traj := r.summary.Trajectory
	if len(traj) != r.summary.Iterations+1 {
		tst.Error("Wrong trajectory length:", len(traj))
	}
	for i := 1; i < len(traj); i++ {
		if traj[i] < traj[i-1]-1e-9 {
			tst.Error("Likelihood decreased:", traj)
		}
	}
	if _, ok := r.summary.Parameters["alpha"]; !ok {
		tst.Error("No alpha in parameters:", r.summary.Parameters)
	}
}

func TestScore(tst *testing.T) {
	r, ali := setup(tst)
	tfn := filepath.Join(tst.TempDir(), "tree.nwk")
	if err := os.WriteFile(tfn, []byte("(A:0.1,B:0.2,((C:0.3,D:0.05):0.15,(E:0.2,F:0.1):0.4):0.25);"), 0644); err != nil {
		tst.Fatal(err)
	}
	if err := r.score(ali, tfn); err != nil {
		tst.Fatal(err)
	}
	out := readOut(tst)
	if !strings.HasPrefix(out, "parsimony\t") || !strings.Contains(out, "lnL\t") {
		tst.Error("Unexpected score output:", out)
	}
	if r.summary.LnL >= 0 {
		tst.Error("Log-likelihood must be negative:", r.summary.LnL)
	}
}

func TestSummary(tst *testing.T) {
	fn := filepath.Join(tst.TempDir(), "summary.json")
	s := &RunSummary{Command: "ml", Score: -10, Trajectory: []float64{-12, -10}}
	s.Seed = 5
	if err := s.write(fn); err != nil {
		tst.Fatal(err)
	}
	b, err := os.ReadFile(fn)
	if err != nil {
		tst.Fatal(err)
	}
	var res map[string]interface{}
	if err := json.Unmarshal(b, &res); err != nil {
		tst.Fatal(err)
	}
	if res["command"] != "ml" || res["seed"] != 5.0 || res["score"] != -10.0 {
		tst.Error("Wrong summary:", string(b))
	}
}

func TestLoadConfigOverrides(tst *testing.T) {
	defer func() {
		userSet = make(map[string]bool)
	}()
	*iterations = 7
	*ncat = 4
	userSet["iter"] = true
	userSet["ncat"] = true
	c, err := loadConfig()
	if err != nil {
		tst.Fatal(err)
	}
	if c.Ratchet.Iterations != 7 || c.Likelihood.MaxCycles != 7 || c.Likelihood.NCat != 4 {
		tst.Errorf("Overrides not applied: %+v", c)
	}
	// not given on the command line
	if c.Likelihood.Method != "lbfgsb" {
		tst.Error("Wrong default method:", c.Likelihood.Method)
	}
}

func TestLoadConfigCheckpoint(tst *testing.T) {
	dir := tst.TempDir()
	cfn := filepath.Join(dir, "charphy.yaml")
	if err := os.WriteFile(cfn, []byte("checkpoint:\n  file: run.db\n"), 0644); err != nil {
		tst.Fatal(err)
	}
	defer func() {
		*configF = ""
		*checkF = ""
	}()
	*configF = cfn
	*checkF = ""

	c, err := loadConfig()
	if err != nil {
		tst.Fatal(err)
	}
	if c.Checkpoint.File != "run.db" {
		tst.Error("Checkpoint file from settings ignored:", c.Checkpoint.File)
	}

	*checkF = "flag.db"
	c, err = loadConfig()
	if err != nil {
		tst.Fatal(err)
	}
	if c.Checkpoint.File != "flag.db" {
		tst.Error("Checkpoint flag does not override settings:", c.Checkpoint.File)
	}

	// The settings file alone opens the database.
	r, _ := setup(tst)
	r.cfg.Checkpoint.File = filepath.Join(dir, "settings.db")
	cio, closeDB, err := r.openCheckpoint("pars")
	if err != nil {
		tst.Fatal(err)
	}
	defer closeDB()
	if cio == nil {
		tst.Error("No checkpoint opened from settings file")
	}
}

func TestTransformTree(tst *testing.T) {
	t, err := tree.ParseNewickString("(a:1,(b:1,(c:1,(d:1,e:1):1):1):1,f:1);")
	if err != nil {
		tst.Fatal(err)
	}
	defer func() {
		*outgroup = ""
		*taxa = nil
	}()

	s, err := transformTree(t, "brlen")
	if err != nil {
		tst.Fatal(err)
	}
	if n := strings.Count(s, "\n"); n != 9 {
		tst.Errorf("Expected 9 branches, got %d: %s", n, s)
	}

	s, err = transformTree(t, "splits")
	if err != nil {
		tst.Fatal(err)
	}
	if n := strings.Count(s, "\n"); n != 3 {
		tst.Errorf("Expected 3 splits, got %d: %s", n, s)
	}

	*taxa = []string{"a", "b", "c"}
	s, err = transformTree(t, "restrict")
	if err != nil {
		tst.Fatal(err)
	}
	r, err := tree.ParseNewickString(s)
	if err != nil {
		tst.Fatal(err)
	}
	if r.NLeaves() != 3 {
		tst.Error("Wrong restricted tree:", s)
	}

	*outgroup = "e"
	s, err = transformTree(t, "reroot")
	if err != nil {
		tst.Fatal(err)
	}
	r, err = tree.ParseNewickString(s)
	if err != nil {
		tst.Fatal(err)
	}
	if !tree.EqualTopology(t, r) {
		tst.Error("Rerooting changed topology:", s)
	}

	*outgroup = "x"
	if _, err = transformTree(t, "reroot"); err == nil {
		tst.Error("Expected error for unknown outgroup")
	}
}
