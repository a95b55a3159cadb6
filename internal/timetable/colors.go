package timetable

// DefaultColor is used for courses without a known subject tag.
const DefaultColor = "#3f51b5"

// subjectColors maps an exact subject tag to its display color.
var subjectColors = map[string]string{
	"数学":   "#3f51b5",
	"语文":   "#f44336",
	"英语":   "#4caf50",
	"物理":   "#ff9800",
	"化学":   "#9c27b0",
	"生物":   "#009688",
	"历史":   "#795548",
	"地理":   "#607d8b",
	"政治":   "#e91e63",
	"体育":   "#cddc39",
	"音乐":   "#673ab7",
	"美术":   "#ffc107",
	"信息":   "#03a9f4",
	"通用技术": "#8bc34a",
}

// ColorFor returns the color for a subject tag.
func ColorFor(subject string) string {
	if c, ok := subjectColors[subject]; ok {
		return c
	}
	return DefaultColor
}

// Subjects lists the known subject tags.
func Subjects() map[string]string {
	out := make(map[string]string, len(subjectColors))
	for k, v := range subjectColors {
		out[k] = v
	}
	return out
}
