// Package modelcache stores whisper.cpp model weights on disk.
//
// Catalog resolves model identifiers (tiers such as "balanced", plain names
// such as "base", and "Xenova/whisper-base" style ids) to ggml weight files.
// Index records fetched files in SQLite so a weight file is never downloaded
// twice, and Fetcher downloads missing files under an exclusive file lock so
// concurrent processes sharing a model directory cooperate.
package modelcache
