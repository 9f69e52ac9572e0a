// Package audio parses the output format reported by MPD.
package audio

import (
	"strconv"
	"strings"
)

// Format is the decoded output format of the current stream.
type Format struct {
	SampleRate int    `json:"sampleRate"` // Hz
	BitDepth   int    `json:"bitDepth"`
	Float      bool   `json:"float,omitempty"`
	Channels   int    `json:"channels"`
	Kind       string `json:"kind"` // "PCM", "DSD64", "DSD128", ...
}

// ParseFormat parses MPD's audio field: "samplerate:bits:channels"
// (e.g. "192000:24:2", "44100:f:2") or "dsdNNN:channels".
// It returns nil for empty or malformed input.
func ParseFormat(audio string) *Format {
	parts := strings.Split(audio, ":")
	if len(parts) < 2 {
		return nil
	}

	// dsd64:2
	if rate, ok := strings.CutPrefix(strings.ToLower(parts[0]), "dsd"); ok {
		mult, err := strconv.Atoi(rate)
		if err != nil {
			return nil
		}
		f := &Format{SampleRate: mult * 44100, BitDepth: 1, Channels: 2}
		if ch, err := strconv.Atoi(parts[1]); err == nil {
			f.Channels = ch
		}
		f.Kind = kindFor(f.SampleRate)
		return f
	}

	sampleRate, err := strconv.Atoi(parts[0])
	if err != nil {
		return nil
	}

	f := &Format{SampleRate: sampleRate, Channels: 2}
	if parts[1] == "f" {
		f.BitDepth = 32
		f.Float = true
	} else if f.BitDepth, err = strconv.Atoi(parts[1]); err != nil {
		return nil
	}

	if len(parts) >= 3 {
		if ch, err := strconv.Atoi(parts[2]); err == nil {
			f.Channels = ch
		}
	}

	f.Kind = kindFor(sampleRate)
	return f
}

// String renders the format for display, e.g. "PCM 44.1kHz 16-bit".
func (f *Format) String() string {
	if f == nil {
		return ""
	}
	if f.Kind != "PCM" {
		return f.Kind
	}

	depth := FormatBitDepth(f.BitDepth)
	if f.Float {
		depth = "32-bit float"
	}
	s := f.Kind + " " + FormatSampleRate(f.SampleRate) + " " + depth
	if f.Channels == 1 {
		s += " mono"
	} else if f.Channels > 2 {
		s += " " + strconv.Itoa(f.Channels) + "ch"
	}
	return s
}

// Equal compares two formats; nil equals nil.
func (f *Format) Equal(o *Format) bool {
	if f == nil || o == nil {
		return f == o
	}
	return *f == *o
}

// kindFor detects DSD from its 1-bit sample rates.
func kindFor(sampleRate int) string {
	switch sampleRate {
	case 2822400:
		return "DSD64"
	case 5644800:
		return "DSD128"
	case 11289600:
		return "DSD256"
	case 22579200:
		return "DSD512"
	default:
		return "PCM"
	}
}

// FormatSampleRate returns a human-readable sample rate string.
func FormatSampleRate(sampleRate int) string {
	if sampleRate >= 1000000 {
		return kindFor(sampleRate)
	}
	if sampleRate >= 1000 {
		return strconv.FormatFloat(float64(sampleRate)/1000, 'f', -1, 64) + "kHz"
	}
	return strconv.Itoa(sampleRate) + "Hz"
}

// FormatBitDepth returns a human-readable bit depth string.
func FormatBitDepth(bitDepth int) string {
	return strconv.Itoa(bitDepth) + "-bit"
}
