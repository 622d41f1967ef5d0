package domain

// LineDocument is one indexed source line. Identical lines found on several
// branches of a repository share a single document whose Branches field holds
// every branch name, separated by spaces.
type LineDocument struct {
	// Content is the raw line text. It is analyzed into character bigrams.
	Content string `json:"content"`

	// Path is the repository-prefixed file path.
	// Example: "billing-service/src/main/kotlin/App.kt"
	Path string `json:"path"`

	// LineNumber is the 1-based line number within the file.
	LineNumber int `json:"lineNumber"`

	// Branches is the space separated list of branches the line was seen on.
	Branches string `json:"branches"`
}

// FileDocument carries per (file, branch) metadata used by filters and snippets.
type FileDocument struct {
	AuthorEmail    string `json:"authorEmail"`
	Date           string `json:"date"`
	Package        string `json:"package"`
	Path           string `json:"path"`
	RepositoryType string `json:"repositoryType"`
	Branch         string `json:"branch"`
	Repository     string `json:"repository"`
}

// Bleve field names of the line collection.
const (
	LineFieldContent    = "content"
	LineFieldPath       = "path"
	LineFieldLineNumber = "lineNumber"
	LineFieldBranches   = "branches"
)

// Bleve field names of the file collection.
const (
	FileFieldAuthorEmail    = "authorEmail"
	FileFieldDate           = "date"
	FileFieldPackage        = "package"
	FileFieldPath           = "path"
	FileFieldRepositoryType = "repositoryType"
	FileFieldBranch         = "branch"
	FileFieldRepository     = "repository"
)

// LineDocumentFromRecord builds the indexable form of a merged line record.
func LineDocumentFromRecord(key LineKey, branches string) LineDocument {
	return LineDocument{
		Content:    key.Content,
		Path:       key.Path,
		LineNumber: key.LineNumber,
		Branches:   branches,
	}
}

// FileDocumentFromRecord builds the indexable form of a file record.
func FileDocumentFromRecord(r FileRecord) FileDocument {
	return FileDocument{
		AuthorEmail:    r.AuthorEmail,
		Date:           r.Date,
		Package:        r.Package,
		Path:           r.Path,
		RepositoryType: r.RepositoryType,
		Branch:         r.Branch,
		Repository:     r.Repository,
	}
}
