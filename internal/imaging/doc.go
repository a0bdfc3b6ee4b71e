// Package imaging holds the pixel-level building blocks of the form
// pipeline: loading scans with their EXIF orientation applied, cropping and
// resizing, Canny edge maps, and a scan quality check.
//
// # Coordinate System
//
// Pixel coordinates are 0-based with (0,0) at the top-left corner, X growing
// rightward and Y downward. Regions are half-open: the top-left corner is
// inclusive and the bottom-right corner exclusive.
//
// # Thread Safety
//
// ImageCache is safe for concurrent use. All other functions are stateless
// and never modify their input images.
package imaging
