// Package ocr reads printed text with Tesseract (via gosseract/v2).
//
// The form pipeline uses OCR only as a signal, never as output:
//
//   - TextInRegion tells the detection filter whether a candidate field
//     already holds printed text.
//   - ScoreWords rates a candidate rotation by how much legible text it yields.
//   - DetectDirection guesses reading direction from the script of the page.
//
// # Prerequisites
//
// Tesseract and its language data must be installed on the system:
//   - Ubuntu/Debian: apt-get install tesseract-ocr tesseract-ocr-ara tesseract-ocr-eng
//   - macOS: brew install tesseract tesseract-lang
//
// The default language set is "ara+eng".
//
// Tesseract clients are not safe for concurrent use, so every call opens and
// closes its own client. An Engine itself may be shared between goroutines.
package ocr
