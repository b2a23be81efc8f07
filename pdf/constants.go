package pdf

const (
	// DefaultMinPageRatio is the default page-presence ratio (80%) for
	// watermark detection. Lowering it admits images seen on fewer pages.
	DefaultMinPageRatio = 0.8

	// ThumbnailMaxSize is the bounding box (px) for candidate thumbnails.
	ThumbnailMaxSize = 100

	// MaxParallelScans caps how many documents are scanned concurrently.
	MaxParallelScans = 4
)
