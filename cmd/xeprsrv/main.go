package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"

	yml "gopkg.in/yaml.v2"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	// ConfigFileName is what it sounds like
	ConfigFileName = "xeprsrv.yml"
	k              = koanf.New(".")
)

func setupconfig() {
	k.Load(structs.Provider(Config{
		Addr:           ":8000",
		Root:           ".",
		Autosave:       "autosave",
		Prefix:         "epr",
		Endpoint:       "dataset",
		RescanInterval: "2s",
		MaxWait:        "3s"}, "koanf"), nil)
	if err := k.Load(file.Provider(ConfigFileName), yaml.Parser()); err != nil {
		errtxt := err.Error()
		if !strings.Contains(errtxt, "no such") { // file missing, who cares
			log.Fatalf("error loading config: %v", err)
		}
	}
}

func root() {
	str := `xeprsrv serves a folder of Bruker BES3T (.DSC/.DTA) EPR datasets over HTTP
and holds one working dataset that can be loaded, edited and saved remotely.

Usage:
	xeprsrv <command>

Commands:
	run
	help
	mkconf
	conf
	version`
	fmt.Println(str)
}

func help() {
	str := `xeprsrv is amenable to configuration via its .yaml file.  For a primer on YAML, see
https://yaml.org/start.html

Keys:
- Addr: the address to listen at, ":8000"
- Root: the folder tree of datasets served below /archive
- Autosave, Prefix: where datasets saved without a path go, as
	<Autosave>/yyyy-mm-dd/<Prefix>000000.DSC and counting up
- Endpoint: the URL of the working dataset, "dataset" serves /dataset/...
- Watch: rescan the archive when files change
- RescanInterval: the least time between two rescans, "2s"
- MaxWait: how long a dataset still being written is waited for, "3s"
- StrictVersion: refuse .DSC layers of unknown versions

GET /endpoints lists every route.  While /dataset/lock is set, requests that
modify the working dataset are refused with 423.`
	fmt.Println(str)
}

func mkconf() {
	c := Config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	f, err := os.Create(ConfigFileName)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	err = yml.NewEncoder(f).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func printconf() {
	c := Config{}
	k.Unmarshal("", &c)
	err := yml.NewEncoder(os.Stdout).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func pversion() {
	fmt.Printf("xeprsrv version %v\n", Version)
}

func run() {
	c := Config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	mux := BuildMux(context.Background(), c)
	log.Println("now listening for requests at ", c.Addr)
	log.Fatal(http.ListenAndServe(c.Addr, mux))
}

func main() {
	var cmd string
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	setupconfig()
	cmd = args[1]
	cmd = strings.ToLower(cmd)
	switch cmd {
	case "help":
		help()
		return
	case "mkconf":
		mkconf()
		return
	case "conf":
		printconf()
		return
	case "run":
		run()
		return
	case "version":
		pversion()
		return
	default:
		log.Fatal("unknown command")
	}
}
