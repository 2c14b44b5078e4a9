package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"
	"golang.org/x/term"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/gogpu/oscuras"
	"github.com/gogpu/oscuras/backend"
	"github.com/gogpu/oscuras/backend/software"
	"github.com/gogpu/oscuras/pathtracer"
	"github.com/gogpu/oscuras/scene"
	"github.com/gogpu/oscuras/shader"
	"github.com/gogpu/oscuras/viewer"
)

var errTerminal = errors.New("refusing to write image data to a terminal; use --out FILE")

// renderFrame traces one frame and writes it as an image.
func renderFrame(ctx *cli.Context) error {
	setupLogging(ctx)
	log := oscuras.Logger()

	sc, err := loadScene(ctx)
	if err != nil {
		return err
	}

	out := ctx.String("out")
	format, err := outputFormat(out, ctx.String("format"))
	if err != nil {
		return err
	}
	if out == "-" && term.IsTerminal(int(os.Stdout.Fd())) {
		return errTerminal
	}

	if n := ctx.Int("workers"); n > 0 {
		backend.Register(backend.BackendSoftware, func() backend.Backend {
			return software.New(software.WithWorkers(n))
		})
	}

	b, _, err := backend.Open(ctx.String("backend"))
	if err != nil {
		return err
	}

	var engineOpts []pathtracer.Option
	if dir := ctx.String("shaders"); dir != "" {
		engineOpts = append(engineOpts, pathtracer.WithShaderLoader(shader.DirLoader{Dir: dir}))
	}
	if d := ctx.Duration("timeout"); d > 0 {
		engineOpts = append(engineOpts, pathtracer.WithTimeout(d))
	}

	presenter := viewer.NewImagePresenter()
	v, err := viewer.New(b, ctx.Int("width"), ctx.Int("height"), sc,
		viewer.WithPresenter(presenter),
		viewer.WithEngineOptions(engineOpts...))
	if err != nil {
		b.Close()
		return err
	}
	defer v.Close()

	runCtx := context.Background()
	if d := ctx.Duration("timeout"); d > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, d)
		defer cancel()
	}

	log.Info("rendering frame", "scene", sceneName(ctx), "backend", b.Name())
	start := time.Now()
	// A dropped or rebuilt frame leaves nothing to write; retry up to the
	// viewer's rebuild budget.
	for attempt := 0; presenter.Image() == nil; attempt++ {
		if attempt > viewer.DefaultMaxRebuilds {
			return fmt.Errorf("no frame after %d attempts: %+v", attempt, v.Stats())
		}
		if err := v.Frame(runCtx); err != nil {
			return err
		}
	}
	elapsed := time.Since(start)

	if err := writeImage(out, presenter, format); err != nil {
		return err
	}
	log.Info("frame written", "out", out, "format", format.String())

	hits, err := v.Engine().Hits(runCtx)
	if err != nil {
		return err
	}
	tag, err := language.Parse(ctx.String("lang"))
	if err != nil {
		log.Warn("unknown language tag, using English", "lang", ctx.String("lang"), "error", err)
		tag = language.English
	}
	fmt.Fprint(os.Stderr, frameStats(tag, v, hits, elapsed))
	return nil
}

func loadScene(ctx *cli.Context) (*scene.Scene, error) {
	switch ctx.NArg() {
	case 0:
		return scene.Default(), nil
	case 1:
		return scene.LoadScript(ctx.Args().First())
	default:
		return nil, fmt.Errorf("expected at most one scene file, got %d", ctx.NArg())
	}
}

func sceneName(ctx *cli.Context) string {
	if ctx.NArg() == 0 {
		return "default"
	}
	return ctx.Args().First()
}

// outputFormat resolves the image format from the flag or, failing that,
// the output path. Standard output defaults to PNG.
func outputFormat(out, flag string) (viewer.Format, error) {
	if flag != "" {
		return viewer.ParseFormat(flag)
	}
	if out == "-" {
		return viewer.FormatPNG, nil
	}
	return viewer.FormatFromPath(out)
}

func writeImage(out string, p *viewer.ImagePresenter, f viewer.Format) error {
	if out == "-" {
		return p.Encode(os.Stdout, f)
	}
	file, err := os.Create(out)
	if err != nil {
		return err
	}
	if err := p.Encode(file, f); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// frameStats renders a summary table of the frame, with numbers formatted
// for tag.
func frameStats(tag language.Tag, v *viewer.Viewer, hits []pathtracer.Hit, elapsed time.Duration) string {
	p := message.NewPrinter(tag)
	counts := make(map[scene.Kind]int)
	missed := 0
	for _, h := range hits {
		if h.Primitive < 0 {
			missed++
			continue
		}
		counts[h.Kind]++
	}

	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Surface", "Pixels", "% of frame"})
	for _, k := range []scene.Kind{scene.KindSphere, scene.KindBox, scene.KindTriangle} {
		table.Append(statRow(p, k.String(), counts[k], len(hits)))
	}
	table.Append(statRow(p, "sky", missed, len(hits)))

	info := v.Backend().Info()
	w, h := v.Engine().Resolution()
	table.SetFooter([]string{
		fmt.Sprintf("%s (%s)", info.Name, v.Backend().Name()),
		fmt.Sprintf("%dx%d", w, h),
		elapsed.Round(time.Microsecond).String(),
	})
	table.Render()
	return buf.String()
}

func statRow(p *message.Printer, name string, n, total int) []string {
	pct := 0.0
	if total > 0 {
		pct = 100 * float64(n) / float64(total)
	}
	return []string{name, p.Sprintf("%d", n), p.Sprintf("%.1f %%", pct)}
}
