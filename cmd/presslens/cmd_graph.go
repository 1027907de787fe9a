package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/presslens/presslens/internal/graph"
)

var graphFlags struct {
	url  bool
	file string
}

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Print the validated analysis graph definition",
	RunE:  runGraphCmd,
}

func init() {
	f := graphCmd.Flags()
	f.BoolVar(&graphFlags.url, "url", false, "Print the URL-submission graph instead of the text one")
	f.StringVarP(&graphFlags.file, "file", "f", "", "Validate and print a graph definition file")
}

func runGraphCmd(cmd *cobra.Command, args []string) error {
	var def *graph.Definition
	switch {
	case graphFlags.file != "":
		data, err := os.ReadFile(graphFlags.file)
		if err != nil {
			return err
		}
		def, err = graph.Load(data)
		if err != nil {
			return err
		}
	case graphFlags.url:
		def = graph.URLDefinition()
	default:
		def = graph.DefaultDefinition()
	}

	if err := def.Validate(nil); err != nil {
		return err
	}

	out, err := yaml.Marshal(def)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), string(out))
	fmt.Fprintf(cmd.OutOrStdout(), "# terminals: %s\n", strings.Join(def.Terminals(), ", "))
	return nil
}
