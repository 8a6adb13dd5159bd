package encoder

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
)

var frameNameRe = regexp.MustCompile(`^(.*?)(\d+)\.(jpg|jpeg|png)$`)

// InputPattern describes how ffmpeg should read the frame sequence.
type InputPattern struct {
	// Pattern is a printf-style sequence pattern, or a glob when Glob is
	// set.
	Pattern     string
	StartNumber int
	Glob        bool
}

// DeriveInputPattern reconstructs the numeric sequence pattern (prefix,
// index width, start number) from the first frame's file name. Frame names
// that do not follow the prefix+digits convention fall back to a wildcard
// match over the extension.
func DeriveInputPattern(firstFrame string) InputPattern {
	dir := filepath.Dir(firstFrame)
	base := filepath.Base(firstFrame)

	m := frameNameRe.FindStringSubmatch(base)
	if m == nil {
		ext := filepath.Ext(base)
		if ext == "" {
			ext = ".jpg"
		}
		return InputPattern{
			Pattern: filepath.Join(dir, "*"+ext),
			Glob:    true,
		}
	}

	prefix, digits, ext := m[1], m[2], m[3]
	start, err := strconv.Atoi(digits)
	if err != nil {
		return InputPattern{
			Pattern: filepath.Join(dir, "*."+ext),
			Glob:    true,
		}
	}

	return InputPattern{
		Pattern:     filepath.Join(dir, fmt.Sprintf("%s%%0%dd.%s", prefix, len(digits), ext)),
		StartNumber: start,
	}
}

// inputArgs renders the pattern as ffmpeg input arguments.
func (p InputPattern) inputArgs(fps int) []string {
	args := []string{"-framerate", strconv.Itoa(fps)}
	if p.Glob {
		args = append(args, "-pattern_type", "glob")
	} else {
		args = append(args, "-start_number", strconv.Itoa(p.StartNumber))
	}
	return append(args, "-i", p.Pattern)
}
