// Package audio reads technical properties of audio files (container, codec, bitrate, sample rate)
// by shelling out to ffprobe, and labels them with a coarse quality tier.
package audio
