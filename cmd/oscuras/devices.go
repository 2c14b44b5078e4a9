package main

import (
	"bytes"
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"

	"github.com/gogpu/oscuras/backend"
	"github.com/gogpu/oscuras/gpucore"
)

// listDevices prints one row per adapter each registered backend can open.
func listDevices(ctx *cli.Context) error {
	setupLogging(ctx)

	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Backend", "Adapter", "Type", "Status"})

	names := backend.Available()
	for _, name := range names {
		for _, row := range probe(name) {
			table.Append(row)
		}
	}
	table.SetFooter([]string{"", "", "", fmt.Sprintf("%d backend(s)", len(names))})
	table.Render()
	_, err := os.Stdout.Write(buf.Bytes())
	return err
}

// probe returns the table rows for one backend. Backends with an
// enumerator list every adapter; the rest are opened once.
func probe(name string) [][]string {
	if enum, ok := enumerators[name]; ok {
		infos, err := enum()
		if err != nil {
			return [][]string{{name, "", "", err.Error()}}
		}
		rows := make([][]string, 0, len(infos))
		for _, info := range infos {
			rows = append(rows, deviceRow(name, info, "available"))
		}
		return rows
	}

	b := backend.Get(name)
	if b == nil {
		return nil
	}
	if err := b.Init(); err != nil {
		return [][]string{{name, "", "", err.Error()}}
	}
	defer b.Close()
	status := "available"
	if _, err := b.Context(); err != nil {
		status = err.Error()
	}
	return [][]string{deviceRow(name, b.Info(), status)}
}

func deviceRow(name string, info gpucore.AdapterInfo, status string) []string {
	return []string{name, info.Name, info.DeviceType.String(), status}
}

// enumerators lists adapters without opening them, keyed by backend name.
var enumerators = map[string]func() ([]gpucore.AdapterInfo, error){}
