package main

import (
	"errors"
	"fmt"

	"github.com/urfave/cli"

	"github.com/gogpu/oscuras/shader"
)

// buildShaders writes the compiled kernels to the directory argument.
func buildShaders(ctx *cli.Context) error {
	setupLogging(ctx)
	if ctx.NArg() != 1 {
		return errors.New("missing output directory argument")
	}
	paths, err := shader.Build(ctx.Args().First())
	for _, p := range paths {
		fmt.Println(p)
	}
	return err
}
