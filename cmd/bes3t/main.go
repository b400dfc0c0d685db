package main

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/theckman/yacspin"

	"github.com/epr-lab/goxepr/bes3t"
	"github.com/epr-lab/goxepr/export"
)

// Version is the version number.  Typically injected via ldflags with git build
var Version = "1"

func root() {
	str := `bes3t inspects, edits and converts Bruker BES3T (.DSC/.DTA) EPR datasets

Usage:
	bes3t <command> <dataset> [args]

Commands:
	info <dataset>                 shape, channels and layers
	pars <dataset>                 every parameter as YAML
	get <dataset> <name>           one parameter as written in the header
	set <dataset> <name> <value>   replace a parameter and save in place
	fits <dataset> [out.fits]      convert to a FITS image
	csv <dataset> [out.csv]        convert to a CSV table, stdout by default
	verify <dataset>...            check that saving reproduces every file
	version

Any of the files of a dataset may name it.`
	fmt.Println(str)
}

func load(path string) *bes3t.Dataset {
	d, err := bes3t.Load(path)
	if err != nil {
		log.Fatal(err)
	}
	return d
}

func need(args []string, n int) {
	if len(args) < n {
		root()
		os.Exit(1)
	}
}

func create(path string) *os.File {
	f, err := os.Create(path)
	if err != nil {
		log.Fatal(err)
	}
	return f
}

func runVerify(paths []string) {
	spinner, err := yacspin.New(yacspin.Config{
		Frequency:         100 * time.Millisecond,
		CharSet:           yacspin.CharSets[14],
		Suffix:            " verifying",
		SuffixAutoColon:   true,
		StopCharacter:     "✓",
		StopColors:        []string{"fgGreen"},
		StopFailCharacter: "✗",
		StopFailColors:    []string{"fgRed"},
		Writer:            os.Stderr,
	})
	if err != nil {
		log.Fatal(err)
	}
	spinner.Start()
	report := &strings.Builder{}
	failed, err := verify(report, spinner.Message, paths...)
	if err != nil {
		spinner.StopFail()
		log.Fatal(err)
	}
	if failed > 0 {
		spinner.StopFailMessage(fmt.Sprintf("%d of %d datasets differ", failed, len(paths)))
		spinner.StopFail()
	} else {
		spinner.StopMessage(fmt.Sprintf("%d datasets round trip", len(paths)))
		spinner.Stop()
	}
	fmt.Print(report.String())
	if failed > 0 {
		os.Exit(1)
	}
}

func main() {
	log.SetFlags(0)
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	cmd := strings.ToLower(args[1])
	args = args[2:]
	switch cmd {
	case "info":
		need(args, 1)
		if err := info(os.Stdout, load(args[0])); err != nil {
			log.Fatal(err)
		}
	case "pars":
		need(args, 1)
		if err := pars(os.Stdout, load(args[0])); err != nil {
			log.Fatal(err)
		}
	case "get":
		need(args, 2)
		if err := get(os.Stdout, load(args[0]), args[1]); err != nil {
			log.Fatal(err)
		}
	case "set":
		need(args, 3)
		if err := set(args[0], load(args[0]), args[1], strings.Join(args[2:], " ")); err != nil {
			log.Fatal(err)
		}
		color.Green("saved %s", bes3t.BasePath(args[0]))
	case "fits":
		need(args, 1)
		out := bes3t.BasePath(args[0]) + ".fits"
		if len(args) > 1 {
			out = args[1]
		}
		f := create(out)
		defer f.Close()
		if err := export.WriteFits(f, load(args[0])); err != nil {
			log.Fatal(err)
		}
	case "csv":
		need(args, 1)
		w := os.Stdout
		if len(args) > 1 {
			w = create(args[1])
			defer w.Close()
		}
		if err := export.WriteCSV(w, load(args[0])); err != nil {
			log.Fatal(err)
		}
	case "verify":
		need(args, 1)
		runVerify(args)
	case "version":
		fmt.Printf("bes3t version %v\n", Version)
	default:
		log.Fatal("unknown command")
	}
}
