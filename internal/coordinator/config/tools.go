package config

// Built-in tool names
const (
	// ToolFileReader is the file reading tool name
	ToolFileReader = "file_reader"
	// ToolTextProcessor is the text processing tool name
	ToolTextProcessor = "text_processor"
	// ToolDocumentAnalyzer is the document analysis tool name
	ToolDocumentAnalyzer = "document_analyzer"
	// ToolWebContentFetcher is the web fetch tool name
	ToolWebContentFetcher = "web_content_fetcher"
	// ToolDataFormatter is the data formatting tool name
	ToolDataFormatter = "data_formatter"
)

// AllTools returns the built-in tool names in registration order
func AllTools() []string {
	return []string{
		ToolFileReader,
		ToolTextProcessor,
		ToolDocumentAnalyzer,
		ToolWebContentFetcher,
		ToolDataFormatter,
	}
}
