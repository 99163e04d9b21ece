package main

import (
	"encoding/json"
	"os"
)

// CallSummary describes the program invocation.
type CallSummary struct {
	// Version stores charphy version.
	Version string `json:"version"`
	// CommandLine is an array storing binary name and all command-line parameters.
	CommandLine []string `json:"commandLine"`
	// Seed is the seed used for random number generation initialization.
	Seed int64 `json:"seed"`
	// NThreads is the number of processes used.
	NThreads int `json:"nThreads"`
	// TotalTime is the running time in seconds.
	TotalTime float64 `json:"time"`
}

// RunSummary is storing charphy run summary information.
type RunSummary struct {
	CallSummary
	// Command is the subcommand which was run.
	Command string `json:"command"`
	// NTaxa and NSites describe the character matrix.
	NTaxa  int `json:"nTaxa"`
	NSites int `json:"nSites"`
	// NPatterns is the number of distinct site patterns.
	NPatterns int `json:"nPatterns"`
	// StartingTree is the starting tree, if any.
	StartingTree string `json:"startingTree,omitempty"`
	// FinalTree is the resulting tree.
	FinalTree string `json:"finalTree,omitempty"`
	// ScoreKind is "length", "parsimony" or "lnL".
	ScoreKind string  `json:"scoreKind,omitempty"`
	Score     float64 `json:"score"`
	// LnL is the log-likelihood reported by the score command.
	LnL float64 `json:"lnL,omitempty"`
	// Parameters are substitution model parameters.
	Parameters map[string]float64 `json:"parameters,omitempty"`
	// Iterations is the number of ratchet iterations or likelihood
	// cycles.
	Iterations int `json:"iterations,omitempty"`
	// Trajectory is the best score after every iteration or cycle.
	Trajectory []float64 `json:"trajectory,omitempty"`
	// Resumed is true if the run started from a checkpoint.
	Resumed bool `json:"resumed,omitempty"`
	// Time is the search time in seconds.
	Time float64 `json:"optimizationTime"`
}

// write saves the summary in json format.
func (s *RunSummary) write(fn string) error {
	j, err := json.Marshal(s)
	if err != nil {
		return err
	}
	log.Debug(string(j))
	return os.WriteFile(fn, j, 0666)
}
