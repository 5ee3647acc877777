// Package serviceext tracks Flutter service extension toggles shared by all
// debug sessions.
package serviceext

import (
	"strconv"

	"github.com/tidwall/gjson"
)

// Flutter service extensions.
const (
	PlatformOverride    = "ext.flutter.platformOverride"
	DebugBanner         = "ext.flutter.debugAllowBanner"
	CheckElevations     = "ext.flutter.debugCheckElevationsEnabled"
	DebugPaint          = "ext.flutter.debugPaint"
	PaintBaselines      = "ext.flutter.debugPaintBaselinesEnabled"
	InspectorSelectMode = "ext.flutter.inspector.show"
	BrightnessOverride  = "ext.flutter.brightnessOverride"
	PerformanceOverlay  = "ext.flutter.showPerformanceOverlay"
	RepaintRainbow      = "ext.flutter.repaintRainbow"
	SlowAnimations      = "ext.flutter.timeDilation"
)

// Time dilation values used by the slow animations toggle.
const (
	TimeDilationNormal = 1.0
	TimeDilationSlow   = 5.0
)

// Defaults are the values a fresh Flutter app starts with.
var Defaults = map[string]any{
	DebugBanner:         true,
	CheckElevations:     false,
	DebugPaint:          false,
	PaintBaselines:      false,
	InspectorSelectMode: false,
	PerformanceOverlay:  false,
	RepaintRainbow:      false,
	SlowAnimations:      TimeDilationNormal,
}

// paramName returns the parameter key an extension expects its value under.
func paramName(extension string) string {
	switch extension {
	case PlatformOverride, BrightnessOverride:
		return "value"
	case SlowAnimations:
		return "timeDilation"
	default:
		return "enabled"
	}
}

// parseValue converts a reported extension value to the type the tracker
// stores: bool for switches, float64 for time dilation, string otherwise.
func parseValue(extension string, r gjson.Result) any {
	switch extension {
	case SlowAnimations:
		if r.Type == gjson.Number {
			return r.Float()
		}
		if f, err := strconv.ParseFloat(r.String(), 64); err == nil {
			return f
		}
		return TimeDilationNormal
	case PlatformOverride, BrightnessOverride:
		return r.String()
	}

	switch r.Type {
	case gjson.True, gjson.False:
		return r.Bool()
	case gjson.String:
		if b, err := strconv.ParseBool(r.String()); err == nil {
			return b
		}
	}
	return r.String()
}
