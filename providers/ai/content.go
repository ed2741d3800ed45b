package ai

import "strings"

// ContentType identifies the kind of payload carried by a ContentPart.
type ContentType string

const (
	ContentTypeText     ContentType = "text"
	ContentTypeImage    ContentType = "image"
	ContentTypeAudio    ContentType = "audio"
	ContentTypeVideo    ContentType = "video"
	ContentTypeDocument ContentType = "document"
)

// ContentPart is a single piece of multimodal message content. Exactly one of
// the payload fields is set, identified by Type. Text parts carry the Text
// field; media parts carry the matching embedded struct.
type ContentPart struct {
	Type ContentType `json:"type"`

	Text     string        `json:"text,omitempty"`
	Image    *ImageData    `json:"image,omitempty"`
	Audio    *AudioData    `json:"audio,omitempty"`
	Video    *VideoData    `json:"video,omitempty"`
	Document *DocumentData `json:"document,omitempty"`
}

// ImageData holds image content either inline (base64 Data) or by reference (URI).
type ImageData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data,omitempty"` // Base64-encoded payload
	URI      string `json:"uri,omitempty"`  // Remote or bucket location
}

// AudioData holds audio content either inline (base64 Data) or by reference (URI).
type AudioData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data,omitempty"`
	URI      string `json:"uri,omitempty"`
}

// VideoData holds video content either inline (base64 Data) or by reference (URI).
type VideoData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data,omitempty"`
	URI      string `json:"uri,omitempty"`
}

// DocumentData holds document content either inline (base64 Data) or by reference (URI).
type DocumentData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data,omitempty"`
	URI      string `json:"uri,omitempty"`
}

// NewTextPart creates a text content part.
func NewTextPart(text string) ContentPart {
	return ContentPart{Type: ContentTypeText, Text: text}
}

// NewImagePart creates an image content part from inline base64 data.
func NewImagePart(mimeType, data string) ContentPart {
	return ContentPart{Type: ContentTypeImage, Image: &ImageData{MimeType: mimeType, Data: data}}
}

// NewImagePartFromURI creates an image content part referencing a remote location.
func NewImagePartFromURI(mimeType, uri string) ContentPart {
	return ContentPart{Type: ContentTypeImage, Image: &ImageData{MimeType: mimeType, URI: uri}}
}

// NewAudioPart creates an audio content part from inline base64 data.
func NewAudioPart(mimeType, data string) ContentPart {
	return ContentPart{Type: ContentTypeAudio, Audio: &AudioData{MimeType: mimeType, Data: data}}
}

// NewAudioPartFromURI creates an audio content part referencing a remote location.
func NewAudioPartFromURI(mimeType, uri string) ContentPart {
	return ContentPart{Type: ContentTypeAudio, Audio: &AudioData{MimeType: mimeType, URI: uri}}
}

// NewVideoPart creates a video content part from inline base64 data.
func NewVideoPart(mimeType, data string) ContentPart {
	return ContentPart{Type: ContentTypeVideo, Video: &VideoData{MimeType: mimeType, Data: data}}
}

// NewVideoPartFromURI creates a video content part referencing a remote location.
func NewVideoPartFromURI(mimeType, uri string) ContentPart {
	return ContentPart{Type: ContentTypeVideo, Video: &VideoData{MimeType: mimeType, URI: uri}}
}

// NewDocumentPart creates a document content part from inline base64 data.
func NewDocumentPart(mimeType, data string) ContentPart {
	return ContentPart{Type: ContentTypeDocument, Document: &DocumentData{MimeType: mimeType, Data: data}}
}

// NewDocumentPartFromURI creates a document content part referencing a remote location.
func NewDocumentPartFromURI(mimeType, uri string) ContentPart {
	return ContentPart{Type: ContentTypeDocument, Document: &DocumentData{MimeType: mimeType, URI: uri}}
}

// IsBuiltinTool reports whether toolName refers to a provider built-in
// pseudo-tool rather than a user-defined tool. Built-ins are prefixed with an
// underscore (e.g. "_google_search") and must not be sent to providers as
// regular function definitions.
func IsBuiltinTool(toolName string) bool {
	return strings.HasPrefix(toolName, "_")
}
