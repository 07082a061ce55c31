package ingest

// ManifestEntry describes one file discovered during Materialise (spec
// §4.9 activity 2).
type ManifestEntry struct {
	Path              string
	Size              int64
	SuspectedLanguage string
}

// languageByExtension is the small override table code parsing also uses;
// kept separate here because the manifest's "suspected_language" is a
// coarse classification for progress reporting, not a parser dispatch key.
var languageByExtension = map[string]string{
	".go":   "go",
	".py":   "python",
	".js":   "javascript",
	".jsx":  "javascript",
	".ts":   "typescript",
	".tsx":  "typescript",
	".java": "java",
	".rs":   "rust",
}

func suspectedLanguage(ext string) string {
	if lang, ok := languageByExtension[ext]; ok {
		return lang
	}
	return ""
}
