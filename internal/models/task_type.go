package models

// Processor type names. The registry maps these to processor implementations;
// the dispatcher never branches on them directly.
const (
	TaskTypeStructure = "structure" // markdown -> outline tree
	TaskTypeConvert   = "convert"   // EPUB archive -> markdown chapters
	TaskTypePDF       = "pdf"       // PDF -> markdown text
	TaskTypeMetadata  = "metadata"  // spreadsheet export -> per-book metadata
	TaskTypeKeywords  = "keywords"  // text -> ranked keywords
	TaskTypeUpload    = "upload"    // artifact -> object storage
)

// KnownTaskTypes lists every built-in processor type
func KnownTaskTypes() []string {
	return []string{
		TaskTypeStructure,
		TaskTypeConvert,
		TaskTypePDF,
		TaskTypeMetadata,
		TaskTypeKeywords,
		TaskTypeUpload,
	}
}
