// Package xlsx renders one academic week of the timetable as a spreadsheet.
package xlsx

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	appLog "classboard/internal/log"
	"classboard/internal/model"
)

var ErrGenerate = errors.New("xlsx: generate failed")

var dayNames = [7]string{"周一", "周二", "周三", "周四", "周五", "周六", "周日"}

const sheetName = "课程表"

// Slots is the configured slot table.
type Slots interface {
	SlotCount() int
	Slot(i int) (model.TimeSlot, bool)
}

// Export lays out courses (already filtered to week) as
//
//	| 节次 | 时间 | 周一 ... 周日 |
//
// with one row per slot. A course spanning several slots fills every row it
// covers; overlapping courses share a cell, one per line.
func Export(week int, courses []model.Course, slots Slots) (*bytes.Buffer, string, error) {
	f := excelize.NewFile()
	defer f.Close()

	idx, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrGenerate, err)
	}
	f.SetActiveSheet(idx)
	_ = f.DeleteSheet("Sheet1")

	_ = f.SetColWidth(sheetName, "A", "A", 10)
	_ = f.SetColWidth(sheetName, "B", "B", 14)
	_ = f.SetColWidth(sheetName, colName(2), colName(8), 20)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#3F51B5"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	cellStyle, _ := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center", WrapText: true},
	})

	_ = f.SetCellValue(sheetName, "A1", fmt.Sprintf("第%d周 课程表", week))
	_ = f.MergeCell(sheetName, "A1", cell(colName(8), 1))
	_ = f.SetCellStyle(sheetName, "A1", "A1", headerStyle)

	_ = f.SetCellValue(sheetName, cell("A", 2), "节次")
	_ = f.SetCellValue(sheetName, cell("B", 2), "时间")
	for d, name := range dayNames {
		_ = f.SetCellValue(sheetName, cell(colName(2+d), 2), name)
	}
	_ = f.SetCellStyle(sheetName, "A2", cell(colName(8), 2), headerStyle)

	grid := make(map[[2]int][]string)
	for _, c := range courses {
		text := c.Name
		if c.Location != "" {
			text += "\n" + c.Location
		}
		for s := c.Slot; s < c.Slot+max(c.Duration, 1); s++ {
			grid[[2]int{c.Day, s}] = append(grid[[2]int{c.Day, s}], text)
		}
	}

	n := slots.SlotCount()
	for i := range n {
		row := 3 + i
		if slot, ok := slots.Slot(i); ok {
			_ = f.SetCellValue(sheetName, cell("A", row), slot.Name)
			_ = f.SetCellValue(sheetName, cell("B", row), fmt.Sprintf("%s-%s", slot.Start, slot.End))
		} else {
			_ = f.SetCellValue(sheetName, cell("A", row), fmt.Sprintf("第%d节", i+1))
		}
		for d := range dayNames {
			if texts, ok := grid[[2]int{d, i}]; ok {
				_ = f.SetCellValue(sheetName, cell(colName(2+d), row), strings.Join(texts, "\n"))
			}
		}
	}
	if n > 0 {
		_ = f.SetCellStyle(sheetName, "A3", cell(colName(8), 2+n), cellStyle)
	}

	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		appLog.Error("xlsx write failed", err, "week", week)
		return nil, "", fmt.Errorf("%w: %v", ErrGenerate, err)
	}

	return buf, fmt.Sprintf("课程表_第%d周.xlsx", week), nil
}

func colName(idx int) string {
	name, _ := excelize.ColumnNumberToName(idx + 1)
	return name
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}
