package devserver

import (
	"math"
)

// Segments produces deterministic PCM s16le audio for a piece of text: a
// sine tone whose duration scales with the text length, chopped into
// wire-sized segments. Good enough to exercise clients end to end
// without a real synthesis model.
func Segments(text string, sampleRate, channels, segmentBytes int) [][]byte {
	if sampleRate <= 0 {
		sampleRate = 24000
	}
	if channels <= 0 {
		channels = 1
	}
	if segmentBytes <= 0 {
		segmentBytes = 4096
	}

	// ~25ms of audio per character, min 200ms
	frames := len(text) * sampleRate / 40
	if minFrames := sampleRate / 5; frames < minFrames {
		frames = minFrames
	}

	const freq = 220.0
	pcm := make([]byte, 0, frames*channels*2)
	for i := 0; i < frames; i++ {
		v := math.Sin(2 * math.Pi * freq * float64(i) / float64(sampleRate))
		sample := int16(v * 0.2 * 32767)
		for ch := 0; ch < channels; ch++ {
			pcm = append(pcm, byte(uint16(sample)), byte(uint16(sample)>>8))
		}
	}

	var segments [][]byte
	for off := 0; off < len(pcm); off += segmentBytes {
		end := off + segmentBytes
		if end > len(pcm) {
			end = len(pcm)
		}
		segments = append(segments, pcm[off:end])
	}
	return segments
}
