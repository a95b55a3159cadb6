package capture

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"
)

func TestOptions_Normalize(t *testing.T) {
	o := Options{URL: "http://127.0.0.1:8080/timetable"}
	if err := o.normalize(); err != nil {
		t.Fatal(err)
	}
	if o.Width != DefaultWidth || o.Height != DefaultHeight || o.Timeout != DefaultTimeout {
		t.Errorf("normalize() = %+v", o)
	}

	o = Options{URL: "x", Width: 800, Height: 600, Timeout: time.Second}
	_ = o.normalize()
	if o.Width != 800 || o.Height != 600 || o.Timeout != time.Second {
		t.Errorf("normalize() overwrote explicit values: %+v", o)
	}
}

func TestSnapshot_RequiresURL(t *testing.T) {
	if _, err := Snapshot(context.Background(), Options{}); err == nil {
		t.Fatal("Snapshot() error = nil without URL")
	}
	if err := SnapshotToFile(context.Background(), Options{URL: "http://x"}, ""); err == nil {
		t.Fatal("SnapshotToFile() error = nil without path")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		c    color.NRGBA
		want uint8
	}{
		{"transparent", color.NRGBA{A: 0}, inkWhite},
		{"header indigo", color.NRGBA{R: 0x3f, G: 0x51, B: 0xb5, A: 0xff}, inkBlack},
		{"today pink", color.NRGBA{R: 0xff, G: 0x40, B: 0x81, A: 0xff}, inkRed},
		{"page background", color.NRGBA{R: 0xfa, G: 0xfa, B: 0xfa, A: 0xff}, inkWhite},
		{"orange", color.NRGBA{R: 0xff, G: 0xc1, B: 0x07, A: 0xff}, inkWhite},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classify(tt.c); got != tt.want {
				t.Errorf("classify(%v) = %d, want %d", tt.c, got, tt.want)
			}
		})
	}
}

func TestReduceTricolor(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 3, 1))
	src.SetNRGBA(0, 0, color.NRGBA{R: 0x21, G: 0x21, B: 0x21, A: 0xff})
	src.SetNRGBA(1, 0, color.NRGBA{R: 0xff, G: 0x40, B: 0x81, A: 0xff})
	src.SetNRGBA(2, 0, color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff})
	var in bytes.Buffer
	if err := png.Encode(&in, src); err != nil {
		t.Fatal(err)
	}

	out, err := ReduceTricolor(in.Bytes())
	if err != nil {
		t.Fatalf("ReduceTricolor() error = %v", err)
	}
	img, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatal(err)
	}
	p, ok := img.(*image.Paletted)
	if !ok {
		t.Fatalf("decoded %T, want *image.Paletted", img)
	}
	want := []uint8{inkBlack, inkRed, inkWhite}
	for x, w := range want {
		if got := p.ColorIndexAt(x, 0); got != w {
			t.Errorf("pixel %d = %d, want %d", x, got, w)
		}
	}

	if _, err := ReduceTricolor([]byte("not a png")); err == nil {
		t.Error("ReduceTricolor() error = nil for garbage input")
	}
}
