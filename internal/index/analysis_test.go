package index

import (
	"testing"
)

func TestBigramTokenizer(t *testing.T) {
	tokenizer := &bigramTokenizer{}

	tests := []struct {
		input string
		terms []string
	}{
		{"", nil},
		{"a", nil},
		{"ab", []string{"ab"}},
		{"Test", []string{"Te", "es", "st"}},
		{"a b", []string{"a ", " b"}},
		{"日本語", []string{"日本", "本語"}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			stream := tokenizer.Tokenize([]byte(tt.input))
			if len(stream) != len(tt.terms) {
				t.Fatalf("Expected %d tokens, got %d", len(tt.terms), len(stream))
			}
			for i, token := range stream {
				if string(token.Term) != tt.terms[i] {
					t.Errorf("Token[%d] = %q, want %q", i, token.Term, tt.terms[i])
				}
				if token.Position != i+1 {
					t.Errorf("Token[%d] position = %d, want %d", i, token.Position, i+1)
				}
				if tt.input[token.Start:token.End] != tt.terms[i] {
					t.Errorf("Token[%d] offsets [%d:%d] do not cover %q", i, token.Start, token.End, tt.terms[i])
				}
			}
		})
	}
}

func TestBigramTokenizer_TermsDoNotAliasInput(t *testing.T) {
	input := []byte("ABC")
	stream := (&bigramTokenizer{}).Tokenize(input)

	stream[0].Term[0] = 'x'
	if string(input) != "ABC" {
		t.Errorf("Expected input to be untouched, got %q", input)
	}
	if string(stream[1].Term) != "BC" {
		t.Errorf("Expected neighbouring term to be untouched, got %q", stream[1].Term)
	}
}

func TestMappings(t *testing.T) {
	lineMapping, err := NewLineMapping()
	if err != nil {
		t.Fatalf("NewLineMapping failed: %v", err)
	}
	if err := lineMapping.Validate(); err != nil {
		t.Errorf("Line mapping is invalid: %v", err)
	}

	fileMapping, err := NewFileMapping()
	if err != nil {
		t.Fatalf("NewFileMapping failed: %v", err)
	}
	if err := fileMapping.Validate(); err != nil {
		t.Errorf("File mapping is invalid: %v", err)
	}
}
