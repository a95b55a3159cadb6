package settings

import (
	"encoding/json"

	appLog "classboard/internal/log"
)

// SlotSpec is a time slot as stored: times are raw "HH:MM" strings and are
// parsed by the consumer, so a single bad entry does not shift the indexes
// of the others.
type SlotSpec struct {
	Name  string `json:"name" mapstructure:"name"`
	Start string `json:"start" mapstructure:"start"`
	End   string `json:"end" mapstructure:"end"`
}

// Schedule is the typed view of the timetable.* keys.
type Schedule struct {
	SemesterStart string     `json:"semester_start_date"`
	CurrentWeek   int        `json:"current_week"`
	TotalWeeks    int        `json:"total_weeks"`
	TimeSlots     []SlotSpec `json:"time_slots"`
}

// Schedule reads the timetable settings.
func (s *Store) Schedule() Schedule {
	return Schedule{
		SemesterStart: s.GetString(KeySemesterStart, ""),
		CurrentWeek:   s.GetInt(KeyCurrentWeek, 1),
		TotalWeeks:    s.GetInt(KeyTotalWeeks, 20),
		TimeSlots:     s.TimeSlots(),
	}
}

// TimeSlots decodes timetable.time_slots. The stored value may come from
// the JSON file, a default or a previous Set, so it is normalized through
// a JSON round trip.
func (s *Store) TimeSlots() []SlotSpec {
	raw := s.Get(KeyTimeSlots, nil)
	if raw == nil {
		return nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		appLog.Error("encode time slots failed", err)
		return nil
	}
	var slots []SlotSpec
	if err := json.Unmarshal(data, &slots); err != nil {
		appLog.Error("decode time slots failed", err)
		return nil
	}
	return slots
}

// SetTimeSlots replaces the slot table.
func (s *Store) SetTimeSlots(slots []SlotSpec) error {
	out := make([]any, 0, len(slots))
	for _, sl := range slots {
		out = append(out, map[string]any{"name": sl.Name, "start": sl.Start, "end": sl.End})
	}
	return s.Set(KeyTimeSlots, out)
}
