// Package transcribe implements the speech-to-text step. Audio is
// extracted per episode with ffmpeg, fed to a whisper.cpp compatible CLI,
// and the tool's JSON is normalized into the transcript document under
// transcripts/. The speech model is a pooled resource shared across the
// run so it is verified once, not once per episode.
package transcribe
