package settings

import "time"

// Recognized keys.
const (
	KeyNotificationEnable  = "notification.enable"
	KeyNotificationAdvance = "notification.advance_time"
	KeyNotificationSound   = "notification.sound"

	KeySemesterStart = "timetable.semester_start_date"
	KeyCurrentWeek   = "timetable.current_week"
	KeyTotalWeeks    = "timetable.total_weeks"
	KeyTimeSlots     = "timetable.time_slots"

	KeyWeatherEnable   = "weather.enable"
	KeyWeatherCity     = "weather.city"
	KeyWeatherCityCode = "weather.city_code"
	KeyWeatherInterval = "weather.update_interval"

	KeyPluginsEnabled  = "plugins.enabled"
	KeyPluginsSettings = "plugins.settings"
)

// DateLayout is the on-disk format of timetable.semester_start_date.
const DateLayout = "2006-01-02"

func defaultSlot(name, start, end string) map[string]any {
	return map[string]any{"name": name, "start": start, "end": end}
}

// Defaults returns the full default settings tree. The semester is assumed
// to start on the day the file is first created.
func Defaults(now time.Time) map[string]any {
	return map[string]any{
		"general": map[string]any{
			"theme":             "light_blue",
			"minimize_to_tray":  true,
			"start_with_system": false,
			"language":          "zh_CN",
		},
		"timetable": map[string]any{
			"semester_start_date": now.Format(DateLayout),
			"current_week":        1,
			"total_weeks":         20,
			"time_slots": []any{
				defaultSlot("第1节", "08:00", "08:45"),
				defaultSlot("第2节", "08:55", "09:40"),
				defaultSlot("第3节", "10:00", "10:45"),
				defaultSlot("第4节", "10:55", "11:40"),
				defaultSlot("第5节", "14:00", "14:45"),
				defaultSlot("第6节", "14:55", "15:40"),
				defaultSlot("第7节", "16:00", "16:45"),
				defaultSlot("第8节", "16:55", "17:40"),
				defaultSlot("第9节", "19:00", "19:45"),
				defaultSlot("第10节", "19:55", "20:40"),
			},
		},
		"notification": map[string]any{
			"enable":       true,
			"advance_time": 10,
			"sound":        true,
		},
		"weather": map[string]any{
			"enable":          true,
			"city":            "北京",
			"city_code":       "101010100",
			"update_interval": 3600,
		},
		"appearance": map[string]any{
			"primary_color": "#3f51b5",
			"accent_color":  "#ff4081",
			"dark_mode":     false,
			"custom_colors": map[string]any{},
		},
		"plugins": map[string]any{
			"enabled":  []any{},
			"settings": map[string]any{},
		},
	}
}
