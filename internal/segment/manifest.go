// Package segment cuts long recordings into upload-sized parts.
//
// The segment muxer of ffmpeg writes the parts plus an m3u8 list describing
// them. That list is parsed here, the last two parts are joined when they fit
// under the hard cap, and the final ordered list of part files is returned.
package segment

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
)

const (
	tagSegmentDuration = "#EXTINF:"
	tagEndList         = "#EXT-X-ENDLIST"
	tagTargetDuration  = "#EXT-X-TARGETDURATION:"
)

// Segment is one entry of a segment list.
type Segment struct {
	Path     string
	Duration float64 // seconds
}

// Manifest is the parsed segment list. TargetDuration is informational only
// and is -1 when the list does not declare one.
type Manifest struct {
	TargetDuration float64
	Segments       []Segment
}

// ParseManifest reads an m3u8 segment list as written by ffmpeg's segment
// muxer. Every path line must be preceded by an #EXTINF duration.
func ParseManifest(text string) (Manifest, error) {
	m := Manifest{TargetDuration: -1}

	var (
		pending    float64
		hasPending bool
		lineNo     int
	)

	scanner := bufio.NewScanner(strings.NewReader(text))
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch {
		case strings.HasPrefix(line, tagSegmentDuration):
			// Format: #EXTINF:18001.720898,
			value := strings.TrimSpace(strings.TrimPrefix(line, tagSegmentDuration))
			value = strings.TrimSpace(strings.TrimSuffix(value, ","))
			secs, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return Manifest{}, parseErr("parse manifest", fmt.Errorf("line %d: invalid segment duration %q: %w", lineNo, value, err))
			}
			if secs < 0 {
				return Manifest{}, parseErr("parse manifest", fmt.Errorf("line %d: negative segment duration %q", lineNo, value))
			}
			pending = secs
			hasPending = true

		case strings.HasPrefix(line, tagEndList):
			return m, nil

		case strings.HasPrefix(line, tagTargetDuration):
			value := strings.TrimSpace(strings.TrimPrefix(line, tagTargetDuration))
			secs, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return Manifest{}, parseErr("parse manifest", fmt.Errorf("line %d: invalid target duration %q: %w", lineNo, value, err))
			}
			m.TargetDuration = secs

		case strings.HasPrefix(line, "#"):
			// other tags and comments

		default:
			if !hasPending {
				return Manifest{}, parseErr("parse manifest", fmt.Errorf("line %d: segment %q has no preceding duration", lineNo, line))
			}
			m.Segments = append(m.Segments, Segment{Path: line, Duration: pending})
			pending = 0
			hasPending = false
		}
	}

	if err := scanner.Err(); err != nil {
		return Manifest{}, parseErr("parse manifest", err)
	}
	return m, nil
}
