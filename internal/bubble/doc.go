// Package bubble classifies which option of each question was marked on a
// canonical answer sheet.
//
// The Classifier binarizes the sheet once (ink is foreground), counts ink
// pixels in a square region centred on every template option, and applies a
// decision policy per question:
//
//   - no option above the evidence threshold: unanswered
//   - exactly one: that option
//   - several: the strongest one if it leads the runner-up by more than the
//     dominance margin, otherwise multiple-marked with every candidate
//
// Results are immutable DetectionResult values. Their JSON form maps each
// question ID to null, an option label, or
// {"state": "multiple-marked", "options": [...]}.
package bubble
