package recordingsync

import "github.com/classroom-lms/backend/internal/zoom"

// Filter decides whether a recording file becomes a Recording.
type Filter func(f zoom.RecordingFile) bool

// Filter policy names accepted by FilterFor.
const (
	FilterStrict = "strict"
	FilterLoose  = "loose"
)

// StrictVideoFilter accepts finished MP4 files that are not audio-only. It is the canonical policy.
func StrictVideoFilter(f zoom.RecordingFile) bool {
	return f.FileType == zoom.FileTypeMP4 &&
		f.RecordingType != zoom.RecordingTypeAudioOnly &&
		f.Status == zoom.StatusCompleted
}

// LooseVideoFilter accepts any finished MP4 file regardless of recording type.
func LooseVideoFilter(f zoom.RecordingFile) bool {
	return f.FileType == zoom.FileTypeMP4 && f.Status == zoom.StatusCompleted
}

// FilterFor returns the named policy. Unknown names get the strict filter.
func FilterFor(name string) Filter {
	if name == FilterLoose {
		return LooseVideoFilter
	}
	return StrictVideoFilter
}

// EligibleFiles returns the files of a meeting accepted by filter, in source order.
func EligibleFiles(files []zoom.RecordingFile, filter Filter) []zoom.RecordingFile {
	var out []zoom.RecordingFile
	for _, f := range files {
		if filter(f) {
			out = append(out, f)
		}
	}
	return out
}
