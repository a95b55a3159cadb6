package weather

import "strings"

// conditionIcons is matched by substring. The key found earliest in the
// condition wins, so "多云转晴" (now cloudy, later sunny) maps to cloudy; keys
// found at the same position fall back to table order.
var conditionIcons = []struct {
	key  string
	icon string
}{
	{"晴", "sunny"},
	{"多云", "cloudy"},
	{"阴", "overcast"},
	{"小雨", "light_rain"},
	{"中雨", "moderate_rain"},
	{"大雨", "heavy_rain"},
	{"暴雨", "storm"},
	{"雷阵雨", "thunderstorm"},
	{"小雪", "light_snow"},
	{"中雪", "moderate_snow"},
	{"大雪", "heavy_snow"},
	{"暴雪", "snowstorm"},
	{"雾", "fog"},
	{"霾", "haze"},
}

// IconFor maps a condition name to an icon id; unknown conditions get "unknown".
func IconFor(condition string) string {
	icon, at := "unknown", -1
	for _, ci := range conditionIcons {
		i := strings.Index(condition, ci.key)
		if i >= 0 && (at < 0 || i < at) {
			icon, at = ci.icon, i
		}
	}
	return icon
}
