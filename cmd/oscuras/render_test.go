package main

import (
	"errors"
	"strings"
	"testing"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/gogpu/oscuras/backend"
	"github.com/gogpu/oscuras/backend/software"
	"github.com/gogpu/oscuras/viewer"
)

func TestOutputFormat(t *testing.T) {
	tests := []struct {
		out, flag string
		want      viewer.Format
		wantErr   bool
	}{
		{"frame.png", "", viewer.FormatPNG, false},
		{"frame.bmp", "", viewer.FormatBMP, false},
		{"frame.png", "tiff", viewer.FormatTIFF, false},
		{"-", "", viewer.FormatPNG, false},
		{"-", "bmp", viewer.FormatBMP, false},
		{"frame.jpg", "", 0, true},
		{"frame", "", 0, true},
	}
	for _, tt := range tests {
		got, err := outputFormat(tt.out, tt.flag)
		if (err != nil) != tt.wantErr {
			t.Errorf("outputFormat(%q, %q) error = %v, wantErr %v", tt.out, tt.flag, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("outputFormat(%q, %q) = %v, want %v", tt.out, tt.flag, got, tt.want)
		}
		if tt.wantErr && !errors.Is(err, viewer.ErrUnknownFormat) {
			t.Errorf("outputFormat(%q, %q) = %v, want ErrUnknownFormat", tt.out, tt.flag, err)
		}
	}
}

func TestStatRow(t *testing.T) {
	tests := []struct {
		tag   language.Tag
		n     int
		total int
		want  []string
	}{
		{language.English, 1234, 2468, []string{"sky", "1,234", "50.0 %"}},
		{language.German, 1234, 2468, []string{"sky", "1.234", "50,0 %"}},
		{language.English, 0, 0, []string{"sky", "0", "0.0 %"}},
	}
	for _, tt := range tests {
		got := statRow(message.NewPrinter(tt.tag), "sky", tt.n, tt.total)
		if strings.Join(got, "|") != strings.Join(tt.want, "|") {
			t.Errorf("statRow(%v, %d, %d) = %q, want %q", tt.tag, tt.n, tt.total, got, tt.want)
		}
	}
}

func TestFrameStats(t *testing.T) {
	b := software.New(software.WithWorkers(1))
	if err := b.Init(); err != nil {
		t.Fatal(err)
	}
	p := viewer.NewImagePresenter()
	v, err := viewer.New(b, 8, 6, nil, viewer.WithPresenter(p))
	if err != nil {
		b.Close()
		t.Fatal(err)
	}
	defer v.Close()

	ctx := t.Context()
	if err := v.Frame(ctx); err != nil {
		t.Fatalf("Frame: %v", err)
	}
	hits, err := v.Engine().Hits(ctx)
	if err != nil {
		t.Fatalf("Hits: %v", err)
	}
	if len(hits) != 48 {
		t.Fatalf("len(hits) = %d, want 48", len(hits))
	}

	out := frameStats(language.English, v, hits, time.Millisecond)
	for _, want := range []string{"sphere", "box", "triangle", "sky", "8x6", "software"} {
		if !strings.Contains(out, want) {
			t.Errorf("frame stats missing %q:\n%s", want, out)
		}
	}
}

func TestProbeSoftware(t *testing.T) {
	rows := probe(backend.BackendSoftware)
	if len(rows) != 1 {
		t.Fatalf("probe(software) = %d rows, want 1", len(rows))
	}
	if rows[0][0] != backend.BackendSoftware || rows[0][3] != "available" {
		t.Errorf("probe(software) = %q", rows[0])
	}
}
