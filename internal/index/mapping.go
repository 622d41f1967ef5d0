package index

import (
	"fmt"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/whitespace"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/sha1n/gitsearch-mcp-server/internal/domain"
)

// NewLineMapping creates the mapping of the line collection.
func NewLineMapping() (mapping.IndexMapping, error) {
	indexMapping := bleve.NewIndexMapping()

	err := indexMapping.AddCustomAnalyzer(BigramAnalyzerName, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     BigramTokenizerName,
		"token_filters": []string{lowercase.Name},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add bigram analyzer: %w", err)
	}

	err = indexMapping.AddCustomAnalyzer(BranchesAnalyzerName, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": whitespace.Name,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add branches analyzer: %w", err)
	}

	docMapping := bleve.NewDocumentMapping()

	// Content - bigrams with positions, phrase queries need term vectors
	contentField := bleve.NewTextFieldMapping()
	contentField.Analyzer = BigramAnalyzerName
	contentField.Store = true
	contentField.IncludeTermVectors = true
	docMapping.AddFieldMappingsAt(domain.LineFieldContent, contentField)

	docMapping.AddFieldMappingsAt(domain.LineFieldPath, keywordField())

	lineNumberField := bleve.NewNumericFieldMapping()
	lineNumberField.Store = true
	docMapping.AddFieldMappingsAt(domain.LineFieldLineNumber, lineNumberField)

	branchesField := bleve.NewTextFieldMapping()
	branchesField.Analyzer = BranchesAnalyzerName
	branchesField.Store = true
	docMapping.AddFieldMappingsAt(domain.LineFieldBranches, branchesField)

	indexMapping.DefaultMapping = docMapping
	indexMapping.DefaultAnalyzer = keyword.Name

	return indexMapping, nil
}

// NewFileMapping creates the mapping of the file collection. Every field is
// an exact, stored keyword.
func NewFileMapping() (mapping.IndexMapping, error) {
	docMapping := bleve.NewDocumentMapping()
	for _, field := range []string{
		domain.FileFieldAuthorEmail,
		domain.FileFieldDate,
		domain.FileFieldPackage,
		domain.FileFieldPath,
		domain.FileFieldRepositoryType,
		domain.FileFieldBranch,
		domain.FileFieldRepository,
	} {
		docMapping.AddFieldMappingsAt(field, keywordField())
	}

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = docMapping
	indexMapping.DefaultAnalyzer = keyword.Name

	return indexMapping, nil
}

func keywordField() *mapping.FieldMapping {
	field := bleve.NewTextFieldMapping()
	field.Analyzer = keyword.Name
	field.Store = true
	return field
}
