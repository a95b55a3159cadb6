package xlsx

import (
	"testing"

	"github.com/xuri/excelize/v2"

	"classboard/internal/model"
)

type fakeSlots []model.TimeSlot

func (f fakeSlots) SlotCount() int { return len(f) }

func (f fakeSlots) Slot(i int) (model.TimeSlot, bool) {
	if i < 0 || i >= len(f) {
		return model.TimeSlot{}, false
	}
	return f[i], true
}

func TestExport_Grid(t *testing.T) {
	slots := fakeSlots{
		{Name: "第1节", Start: model.MustLocalTime("08:00"), End: model.MustLocalTime("08:45")},
		{Name: "第2节", Start: model.MustLocalTime("08:55"), End: model.MustLocalTime("09:40")},
		{Name: "第3节", Start: model.MustLocalTime("10:00"), End: model.MustLocalTime("10:45")},
	}
	courses := []model.Course{
		{ID: 1, Name: "高等数学", Location: "A101", Day: 0, Slot: 0, Duration: 2},
		{ID: 2, Name: "大学英语", Day: 2, Slot: 2, Duration: 1},
	}

	buf, name, err := Export(5, courses, slots)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if name != "课程表_第5周.xlsx" {
		t.Errorf("filename = %q", name)
	}

	f, err := excelize.OpenReader(buf)
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer f.Close()

	tests := []struct {
		cell string
		want string
	}{
		{"A1", "第5周 课程表"},
		{"C2", "周一"},
		{"I2", "周日"},
		{"A3", "第1节"},
		{"B3", "08:00-08:45"},
		{"C3", "高等数学\nA101"},
		{"C4", "高等数学\nA101"},
		{"C5", ""},
		{"E5", "大学英语"},
	}
	for _, tt := range tests {
		got, err := f.GetCellValue(sheetName, tt.cell)
		if err != nil {
			t.Fatalf("GetCellValue(%s) error = %v", tt.cell, err)
		}
		if got != tt.want {
			t.Errorf("%s = %q, want %q", tt.cell, got, tt.want)
		}
	}
}
