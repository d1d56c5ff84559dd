// Package ocr reads text off the cropped box images.
//
// An Engine takes one encoded image (JPEG) and returns an ordered list of
// text annotations. By convention the first annotation is the full text of
// the image and the rest are its individual words or lines; the classifier
// scores all of them, so a word contributes both on its own and as part of
// the full text.
//
// # Engines
//
//   - VisionEngine calls the Google Cloud Vision images:annotate endpoint
//     with TEXT_DETECTION. Credentials come from a service-account JSON
//     file.
//   - TesseractEngine runs Tesseract locally via gosseract. It needs the
//     Tesseract library and language data installed:
//     apt-get install tesseract-ocr tesseract-ocr-eng (Ubuntu/Debian),
//     brew install tesseract (macOS).
//
// # Performance Considerations
//
// OCR dominates cycle latency. Vision is a network round trip per crop;
// callers should bound each call with a context deadline. Tesseract is
// CPU-bound and creates a fresh client per call because gosseract clients
// are not safe for concurrent use.
package ocr
