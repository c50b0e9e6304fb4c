// Package textutil provides the text helpers shared by the engines and the
// transcript tooling.
//
// The primary use cases are:
//   - Folding diacritics and reducing names to engine-safe file names
//   - Sanitizing display file names for the output directory
//   - Fingerprinting recognised text to spot repeated (looping) segments
//
// Tokenization folds diacritics first, so "perché" and "perche" compare equal.
package textutil
