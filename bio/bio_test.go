package bio

import (
	"strings"
	"testing"
)

const fasta1 = `; cognate sets, Swadesh subset
>English
1010 0
>German
11110
>Dutch
100?1
`

func TestParseFasta(tst *testing.T) {
	seqs, err := ParseFasta(strings.NewReader(fasta1))
	if err != nil {
		tst.Fatal("Error parsing:", err)
	}
	if len(seqs) != 3 {
		tst.Fatal("Expected 3 sequences, got", len(seqs))
	}
	if seqs[0].Sequence != "10100" {
		tst.Error("Whitespace was not removed:", seqs[0].Sequence)
	}
	if seqs[2].Name != "Dutch" || seqs[2].Sequence != "100?1" {
		tst.Error("Wrong last sequence:", seqs[2])
	}
	names := seqs.Names()
	if strings.Join(names, ",") != "English,German,Dutch" {
		tst.Error("Wrong names:", names)
	}
}

func TestParseFastaNoPrefix(tst *testing.T) {
	_, err := ParseFasta(strings.NewReader("0101\n>a\n0101\n"))
	if err == nil {
		tst.Error("Expected error for sequence without a header")
	}
}

func TestWrapRoundTrip(tst *testing.T) {
	long := strings.Repeat("01", 100)
	seqs := Sequences{{Name: "a", Sequence: long}, {Name: "b", Sequence: "1"}}
	parsed, err := ParseFasta(strings.NewReader(seqs.String()))
	if err != nil {
		tst.Fatal(err)
	}
	if len(parsed) != 2 || parsed[0].Sequence != long || parsed[1].Sequence != "1" {
		tst.Error("Round trip failed:", parsed)
	}
	for _, line := range strings.Split(seqs.String(), "\n") {
		if len(line) > 80 {
			tst.Error("Line is not wrapped:", len(line))
		}
	}
}
