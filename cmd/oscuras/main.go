// Command oscuras renders scenes with the oscuras pathtracer.
//
// Usage:
//
//	oscuras [-v|-vv] render [flags] [scene.lua]
//	oscuras devices
//	oscuras shaders build DIR
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"

	_ "github.com/gogpu/oscuras/backend/rust"
	_ "github.com/gogpu/oscuras/backend/software"
)

func main() {
	cli.VersionFlag = cli.BoolFlag{
		Name:  "version",
		Usage: "print only the version",
	}

	app := cli.NewApp()
	app.Name = "oscuras"
	app.Usage = "render scenes with a compute-shader pathtracer"
	app.Version = "0.1.0"
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "v",
			Usage: "enable verbose logging",
		},
		cli.BoolFlag{
			Name:  "vv",
			Usage: "enable even more verbose logging",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:  "render",
			Usage: "render a single frame",
			Description: `
Trace one frame of a scene and write it as an image. Without a scene file the
built-in default scene is rendered. Scene files are Lua scripts calling
sphere{}, box{} and triangle{}.`,
			ArgsUsage: "[scene.lua]",
			Flags: []cli.Flag{
				cli.IntFlag{
					Name:  "width",
					Value: 640,
					Usage: "frame width",
				},
				cli.IntFlag{
					Name:  "height",
					Value: 480,
					Usage: "frame height",
				},
				cli.StringFlag{
					Name:  "backend, b",
					Value: "",
					Usage: "backend to render on (rust, native, software); empty picks the best available",
				},
				cli.StringFlag{
					Name:  "out, o",
					Value: "frame.png",
					Usage: "image file to write, or - for stdout",
				},
				cli.StringFlag{
					Name:  "format, f",
					Value: "",
					Usage: "image format (png, bmp, tiff); defaults to the output file extension",
				},
				cli.StringFlag{
					Name:  "shaders",
					Value: "",
					Usage: "directory of precompiled .spv kernels (see shaders build)",
				},
				cli.IntFlag{
					Name:  "workers",
					Value: 0,
					Usage: "worker goroutines for the software backend; 0 uses every CPU",
				},
				cli.DurationFlag{
					Name:  "timeout",
					Value: 0,
					Usage: "give up on the frame after this long",
				},
				cli.StringFlag{
					Name:  "lang",
					Value: "en",
					Usage: "language tag used to format the frame statistics",
				},
			},
			Action: renderFrame,
		},
		{
			Name:   "devices",
			Usage:  "list registered backends and the adapters they can open",
			Action: listDevices,
		},
		{
			Name:  "shaders",
			Usage: "manage the compute shaders",
			Subcommands: []cli.Command{
				{
					Name:  "build",
					Usage: "compile the embedded WGSL shaders to SPIR-V",
					Description: `
Compile every embedded WGSL stage to SPIR-V and write one .spv file per stage
into DIR. The directory can then be used in place of the embedded shaders.`,
					ArgsUsage: "DIR",
					Action:    buildShaders,
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "oscuras: %v\n", err)
		os.Exit(1)
	}
}
