package protocol

// ContentType names the kind of a content entry in a tool result
type ContentType string

const (
	// ContentText is plain text
	ContentText ContentType = "text"
	// ContentImage references an image by URL (data: URLs included)
	ContentImage ContentType = "image"
	// ContentCode is source or structured output with a language hint
	ContentCode ContentType = "code"
)

// Content is one typed entry of a tool result
type Content struct {
	Type     ContentType `json:"type"`
	Text     string      `json:"text,omitempty"`
	ImageURL string      `json:"image_url,omitempty"`
	MimeType string      `json:"mime_type,omitempty"`
	Code     string      `json:"code,omitempty"`
	Language string      `json:"language,omitempty"`
}

// TextContent builds a text entry
func TextContent(text string) Content {
	return Content{Type: ContentText, Text: text}
}

// ImageContent builds an image entry
func ImageContent(url, mimeType string) Content {
	return Content{Type: ContentImage, ImageURL: url, MimeType: mimeType}
}

// CodeContent builds a code entry
func CodeContent(code, language string) Content {
	return Content{Type: ContentCode, Code: code, Language: language}
}
