package embeddings

import "strings"

// knownDimensions lists the vector length of common embedding models.
var knownDimensions = map[string]int{
	"BAAI/bge-small-en-v1.5":                 384,
	"BAAI/bge-small-en":                      384,
	"BAAI/bge-base-en-v1.5":                  768,
	"BAAI/bge-base-en":                       768,
	"BAAI/bge-small-zh-v1.5":                 512,
	"sentence-transformers/all-MiniLM-L6-v2": 384,
	"fast-bge-small-en-v1.5":                 384,
	"fast-bge-small-en":                      384,
	"fast-bge-base-en-v1.5":                  768,
	"fast-bge-base-en":                       768,
	"fast-bge-small-zh-v1.5":                 512,
	"fast-all-MiniLM-L6-v2":                  384,
	"text-embedding-3-small":                 1536,
	"text-embedding-3-large":                 3072,
	"text-embedding-ada-002":                 1536,
}

// DetectDimensions returns the vector length for a model name, guessing
// from size hints in the name when the model is unknown.
func DetectDimensions(model string) int {
	if dim, ok := knownDimensions[model]; ok {
		return dim
	}
	name := strings.ToLower(model)
	switch {
	case strings.Contains(name, "base"):
		return 768
	case strings.Contains(name, "large"):
		return 1024
	default:
		return 384
	}
}
