// Package detection turns raw, overlapping detector output into a clean set
// of form fields.
//
// Form pages are typically run through several detectors (a checkbox model,
// a text-box model, an underline finder) whose outputs overlap heavily. This
// package provides:
//
//   - Merge: priority-aware non-maximum suppression over all detections
//   - FillFilter: removal of detections whose region already holds text
//   - HeuristicDetector: a model-free fallback that finds checkbox outlines,
//     framed text boxes and underline rules directly in the pixels
//
// # Priority
//
// A detection whose class mentions "text" or "line" outranks every other
// class regardless of confidence. Fillable text areas are the more useful
// interpretation when a text box and a checkbox claim the same region.
//
// # Coordinate System
//
// All boxes are geometry.Box values in source-image pixels, origin top-left.
package detection
