// Package scenedetect implements the scene boundary step. It runs ffmpeg's
// scene-change filter over each episode, merges boundaries that land too
// close together, and writes one scenes document per episode under scenes/.
package scenedetect
