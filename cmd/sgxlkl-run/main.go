// Command sgxlkl-run is the launcher's CLI entry point (spec component
// L): parse argv, build the typed configuration snapshot, construct the
// structured logger, and hand off to the launch sequencer.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sishtiaq/sgx-lkl/config"
	"github.com/sishtiaq/sgx-lkl/driver"
	"github.com/sishtiaq/sgx-lkl/hostlog"
	"github.com/sishtiaq/sgx-lkl/launcher"
)

const usage = `usage: sgxlkl-run <disk-image> <executable-in-enclave> [args...]

  -v, --version   print version and exit
  -h, --help      print this message and exit
`

var version = "dev"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(argv []string) int {
	fs := flag.NewFlagSet("sgxlkl-run", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.Usage = func() { fmt.Fprint(os.Stderr, usage) }

	showVersion := fs.Bool("version", false, "")
	fs.BoolVar(showVersion, "v", false, "")
	showHelp := fs.Bool("help", false, "")
	fs.BoolVar(showHelp, "h", false, "")

	if err := fs.Parse(argv); err != nil {
		return 1
	}
	if *showHelp {
		fs.Usage()
		return 0
	}
	if *showVersion {
		fmt.Println(version)
		return 0
	}

	rest := fs.Args()
	if len(rest) < 2 {
		fs.Usage()
		return 1
	}
	diskImage, executable, args := rest[0], rest[1], rest[2:]

	log := hostlog.NewStderr()

	cfg, err := config.Load(config.OSSource{}, diskImage, executable, args)
	if err != nil {
		log.Fatal("[ Launcher ] configuration error", hostlog.KVErr(err))
		return 1
	}
	if cfg.Verbose || cfg.TraceHostSyscall || cfg.TraceThread {
		log.SetLevel(hostlog.DEBUG)
	}

	l := launcher.New(cfg, log)
	l.Mode = launcher.Simulation
	l.LibOS = resolveLibOSPath()

	err = l.Run()
	if err == nil {
		return 0
	}
	if term, ok := err.(*driver.Terminated); ok {
		return term.Code
	}
	log.Error("[ Launcher ] fatal", hostlog.KVErr(err))
	return 1
}

// resolveLibOSPath implements spec.md §4.G step 4: resolve the
// library-OS image path relative to the launcher's own executable
// location, so the binary remains relocatable as a single install tree.
func resolveLibOSPath() string {
	exe, err := os.Executable()
	if err != nil {
		return "libsgxlkl.so"
	}
	return filepath.Join(filepath.Dir(exe), "libsgxlkl.so")
}
