// Package media wraps the ffmpeg transcoding runtime as an engine executor.
//
// The runtime is loaded lazily, at most once per engine lifetime, and owns a
// private working directory that plays the role of the engine's virtual
// filesystem. Each job writes its input there under a sanitized name, runs a
// fixed argument template for the requested format, reads the output back
// into memory, and always removes both files afterwards.
//
// Key types:
//   - Runtime: the transcoding engine instance (file I/O plus Exec)
//   - Loader: constructs a Runtime; LoadFFmpeg is the production loader
//   - Engine: the engine.Executor serving Convert and ExtractAudio
package media
