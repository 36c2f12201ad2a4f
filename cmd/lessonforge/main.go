// Command lessonforge generates assessments and lesson plans, serves them
// over HTTP and MCP, and manages the record store.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/jessevdk/go-flags"
)

// version is set by the linker at build time.
var version = "dev"

var stdout io.Writer = os.Stdout

// Options is the root command. The struct tags are interpreted by
// github.com/jessevdk/go-flags.
type Options struct {
	Serve   ServeCmd   `command:"serve" description:"Start the HTTP API"`
	Assess  AssessCmd  `command:"assess" description:"Generate an assessment and print both streams"`
	Plan    PlanCmd    `command:"plan" description:"Generate a lesson plan"`
	Render  RenderCmd  `command:"render" description:"Split a lesson plan file into sections or render it as HTML"`
	History HistoryCmd `command:"history" description:"List stored records"`
	Export  ExportCmd  `command:"export" description:"Export a stored assessment or lesson plan"`
	Migrate MigrateCmd `command:"migrate" description:"Apply or roll back PostgreSQL migrations"`
	Token   TokenCmd   `command:"token" description:"Mint a development JWT"`
	MCP     MCPCmd     `command:"mcp" description:"Serve the MCP tools on stdio or streamable HTTP"`
	Version VersionCmd `command:"version" description:"Print the version"`
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			fmt.Fprintln(stdout, ferr.Message)
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var opts Options
	parser := flags.NewParser(&opts, flags.HelpFlag|flags.PassDoubleDash)
	parser.Name = "lessonforge"
	_, err := parser.ParseArgs(args)
	return err
}

type VersionCmd struct{}

func (VersionCmd) Execute([]string) error {
	_, err := fmt.Fprintln(stdout, version)
	return err
}
