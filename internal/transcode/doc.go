// Package transcode implements the first pipeline step: converting source
// episodes into the working container with the configured codecs. Output
// lands in media/ under the series library root, one file per episode key.
package transcode
