package encoder

import (
	"fmt"
	"strings"
)

// QualityTier is the coarse quality knob exposed to users.
type QualityTier string

const (
	TierLow    QualityTier = "low"
	TierMedium QualityTier = "medium"
	TierHigh   QualityTier = "high"
)

// ParseTier normalizes a user-supplied quality name.
func ParseTier(s string) (QualityTier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return TierLow, nil
	case "medium", "mid":
		return TierMedium, nil
	case "high":
		return TierHigh, nil
	default:
		return "", fmt.Errorf("unknown quality tier: %s", s)
	}
}

// GIFParams are the derived encoder settings for animated GIF output.
type GIFParams struct {
	TargetFPS   int     // capped at 15; GIF delays get too coarse beyond that
	ScaleFactor float64 // applied on top of the capture scale
	MaxColors   int
	Dither      string
}

// DeriveGIFParams maps a quality tier and the fast-mode flag onto concrete
// GIF settings.
func DeriveGIFParams(tier QualityTier, fastMode bool) GIFParams {
	var p GIFParams
	switch tier {
	case TierLow:
		p = GIFParams{TargetFPS: 10, ScaleFactor: 0.65, MaxColors: 128, Dither: "bayer:bayer_scale=5"}
	case TierHigh:
		p = GIFParams{TargetFPS: 15, ScaleFactor: 1.0, MaxColors: 256, Dither: "floyd_steinberg"}
	default:
		p = GIFParams{TargetFPS: 12, ScaleFactor: 0.8, MaxColors: 200, Dither: "bayer:bayer_scale=3"}
	}

	if fastMode {
		if p.TargetFPS > 10 {
			p.TargetFPS = 10
		}
		if p.MaxColors > 128 {
			p.MaxColors = 128
		}
		p.Dither = "bayer:bayer_scale=5"
	}
	if p.TargetFPS > 15 {
		p.TargetFPS = 15
	}
	return p
}

// WebPParams are the derived encoder settings for animated WebP output.
type WebPParams struct {
	Quality int // libwebp 0-100 scale
}

// DeriveWebPParams maps a quality tier onto libwebp's native quality
// scale.
func DeriveWebPParams(tier QualityTier) WebPParams {
	switch tier {
	case TierLow:
		return WebPParams{Quality: 50}
	case TierHigh:
		return WebPParams{Quality: 90}
	default:
		return WebPParams{Quality: 75}
	}
}

// MP4Params are the derived encoder settings for MP4 output.
type MP4Params struct {
	CRF     int
	Preset  string
	Profile string // "high" for quality, "baseline" for maximum compatibility
}

// DeriveMP4Params maps a quality tier onto x264 settings.
func DeriveMP4Params(tier QualityTier, fastMode bool) MP4Params {
	var p MP4Params
	switch tier {
	case TierLow:
		p = MP4Params{CRF: 30, Preset: "ultrafast", Profile: "baseline"}
	case TierHigh:
		p = MP4Params{CRF: 20, Preset: "medium", Profile: "high"}
	default:
		p = MP4Params{CRF: 23, Preset: "veryfast", Profile: "baseline"}
	}
	if fastMode && p.Preset != "ultrafast" {
		p.Preset = "veryfast"
	}
	return p
}
