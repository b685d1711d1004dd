package extract

import "errors"

var (
	// ErrEmptyContent is returned when a file has no non-whitespace content.
	ErrEmptyContent = errors.New("file has no content")

	// ErrUnreadableEncoding is returned when a file is not valid UTF-8 or BOM-marked UTF-16.
	ErrUnreadableEncoding = errors.New("file encoding is not readable text")

	// ErrUnsupportedFormat is returned for extensions outside SupportedExtensions.
	ErrUnsupportedFormat = errors.New("unsupported file format")
)
