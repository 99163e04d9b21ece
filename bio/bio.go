// Package bio reads and writes character sequences in FASTA-like
// layout. A sequence is a row of single-byte character states, e.g. a
// presence/absence coding of cognate classes.
package bio

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

// Sequence is a named row of character states.
type Sequence struct {
	Name     string
	Sequence string
}

// Sequences stores multiple sequences, e.g. a character matrix.
type Sequences []Sequence

// ParseFasta parses sequences from a reader. Whitespace inside
// sequence lines is ignored and lines starting with ';' are comments.
func ParseFasta(rd io.Reader) (seqs Sequences, err error) {
	seqs = make(Sequences, 0, 10)
	scanner := bufio.NewScanner(rd)
	// rows of long cognate matrices easily exceed the default token size
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] == ';' {
			continue
		}
		if line[0] == '>' {
			name := strings.TrimSpace(line[1:])
			if name == "" {
				return nil, errors.New("sequence without a name")
			}
			seqs = append(seqs, Sequence{Name: name})
		} else {
			if len(seqs) == 0 {
				return nil, errors.New("sequence w/o prefix")
			}
			seqs[len(seqs)-1].Sequence += strings.Join(strings.Fields(line), "")
		}
	}
	if err = scanner.Err(); err != nil {
		return nil, err
	}
	return
}

// Names returns sequence names in input order.
func (seqs Sequences) Names() []string {
	names := make([]string, len(seqs))
	for i, seq := range seqs {
		names[i] = seq.Name
	}
	return names
}

// Wrap inputs a string and wraps it so string length is n characters
// or less.
func Wrap(seq string, n int) (s string) {
	var b strings.Builder
	for i := 0; i < len(seq); i += n {
		end := i + n
		if end > len(seq) {
			end = len(seq)
		}
		b.WriteString(seq[i:end])
		b.WriteByte('\n')
	}
	return b.String()
}

// String returns a sequence in FASTA format.
func (seq Sequence) String() (s string) {
	return ">" + seq.Name + "\n" + Wrap(seq.Sequence, 80)
}

// String returns sequences in FASTA format.
func (seqs Sequences) String() (s string) {
	var b strings.Builder
	for _, seq := range seqs {
		b.WriteString(seq.String())
	}
	return strings.TrimSuffix(b.String(), "\n")
}
