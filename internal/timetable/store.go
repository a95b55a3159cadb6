package timetable

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"classboard/internal/config"
	"classboard/internal/model"
)

// courseFile is the on-disk shape of courses.json.
type courseFile struct {
	Courses []model.Course `json:"courses"`
}

// loadCourses reads path. The returned error wraps fs.ErrNotExist when the
// file is missing so the caller can seed example data.
func loadCourses(path string) ([]model.Course, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f courseFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if f.Courses == nil {
		f.Courses = []model.Course{}
	}
	return f.Courses, nil
}

// saveCourses rewrites the whole file.
func saveCourses(path string, courses []model.Course) error {
	if courses == nil {
		courses = []model.Course{}
	}
	data, err := json.MarshalIndent(courseFile{Courses: courses}, "", "    ")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if err := config.WriteFileAtomic(path, data, 0o600); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

var allWeeks = []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}

func weeks16() []int {
	return append([]int(nil), allWeeks...)
}

// exampleCourses seeds a fresh install.
func exampleCourses() []model.Course {
	return []model.Course{
		{ID: 1, Name: "高等数学", Teacher: "张教授", Location: "教学楼A-101", Subject: "数学", Weeks: weeks16(), Day: 0, Slot: 0, Duration: 2},
		{ID: 2, Name: "大学英语", Teacher: "李教授", Location: "教学楼B-202", Subject: "英语", Weeks: weeks16(), Day: 0, Slot: 2, Duration: 2},
		{ID: 3, Name: "程序设计", Teacher: "王教授", Location: "实验楼C-303", Subject: "信息", Weeks: weeks16(), Day: 1, Slot: 0, Duration: 3},
		{ID: 4, Name: "数据结构", Teacher: "刘教授", Location: "教学楼A-201", Subject: "信息", Weeks: weeks16(), Day: 2, Slot: 2, Duration: 2},
		{ID: 5, Name: "计算机网络", Teacher: "赵教授", Location: "教学楼B-301", Subject: "信息", Weeks: weeks16(), Day: 3, Slot: 4, Duration: 2},
		{ID: 6, Name: "操作系统", Teacher: "孙教授", Location: "实验楼C-101", Subject: "信息", Weeks: weeks16(), Day: 4, Slot: 0, Duration: 2},
	}
}
