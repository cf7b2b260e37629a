package tokenizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenizeKeepsHyphenCompounds(t *testing.T) {
	assert.Equal(t, []string{"non-small", "cell"}, Texts(Tokenize("non-small cell")))
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"cystic fibrosis occurs.", []string{"cystic", "fibrosis", "occurs"}},
		{"  spaced\tout\n", []string{"spaced", "out"}},
		{"Parkinson's disease", []string{"Parkinson", "'s", "disease"}},
		{"Parkinson 's disease", []string{"Parkinson", "'s", "disease"}},
		{"o'brien syndrome", []string{"o'brien", "syndrome"}},
		{"e.g. HIV-1, type 2", []string{"e.g", "HIV-1", "type", "2"}},
		{"del(5)(q13) syndrome", []string{"del", "5", "q13", "syndrome"}},
		{"hearing/vision loss", []string{"hearing", "vision", "loss"}},
		{"-leading trailing- --", []string{"leading", "trailing"}},
		{"Sjögren", []string{"Sjögren"}},
		{"", []string{}},
		{"!!!", []string{}},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, Texts(Tokenize(tc.in)), "input %q", tc.in)
	}
}

func TestTokenOffsets(t *testing.T) {
	text := "Patient has Mackay-Shek syndrome."
	toks := Tokenize(text)
	for i, tok := range toks {
		assert.Equal(t, i, tok.Position)
		assert.Equal(t, tok.Text, text[tok.Start:tok.End])
	}
	assert.Equal(t, "Mackay-Shek", toks[2].Text)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "retinal degeneration with nanophthalmos", Key("Retinal  degeneration, with nanophthalmos"))
	assert.Equal(t, "parkinson's", Key("Parkinson's"))
	assert.Equal(t, "huntington's disease", Key("Huntington's Disease"))
	assert.Equal(t, "'s disease", Key("'s disease"))
}

func BenchmarkTokenize(b *testing.B) {
	text := strings.Repeat("non-small cell lung cancer and cystic fibrosis in o'brien's patients. ", 50)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Tokenize(text)
	}
}
