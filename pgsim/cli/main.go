// Copyright 2026 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cli is the main entrypoint for pgsim.
package cli

import (
	"context"
	"flag"
	"os"
	"runtime"

	"github.com/google/subcommands"

	"pagecore.dev/pagecore/pgsim/cmd"
	"pagecore.dev/pagecore/pgsim/config"
	"pagecore.dev/pagecore/pkg/log"
)

var (
	configPath = flag.String("config", "", "path to a TOML configuration file. The built-in defaults are used if empty.")
	debug      = flag.Bool("debug", false, "enable debug logging, overriding log_level.")
	logFile    = flag.String("log", "", "file to log to, overriding log_file. %COMMAND% is replaced by the command name.")
	logFormat  = flag.String("log-format", "", "log format, text or json, overriding log_format.")
)

// Main is the main entrypoint.
func Main() {
	forEachCmd(subcommands.Register)

	// All subcommands must be registered before flag parsing.
	flag.Parse()

	conf := config.Default()
	if *configPath != "" {
		var err error
		if conf, err = config.Load(*configPath); err != nil {
			cmd.Fatalf("%v", err)
		}
	}
	if *debug {
		conf.LogLevel = log.Debug
	}
	if *logFile != "" {
		conf.LogFile = *logFile
	}
	if *logFormat != "" {
		conf.LogFormat = *logFormat
	}
	if err := conf.Validate(); err != nil {
		cmd.Fatalf("invalid configuration: %v", err)
	}

	subcommand := flag.CommandLine.Arg(0)
	f, err := log.OpenFile(conf.LogFile, subcommand)
	if err != nil {
		cmd.Fatalf("%v", err)
	}
	out := os.Stderr
	if f != nil {
		out = f
	}
	e, err := log.FormatEmitter(conf.LogFormat, &log.Writer{Next: out})
	if err != nil {
		cmd.Fatalf("%v", err)
	}
	log.SetTarget(e)
	log.SetLevel(conf.LogLevel)

	const delimString = "**************** pgsim ****************"
	log.Infof(delimString)
	log.Infof("%s, %s, %d host CPUs, PID %d", runtime.Version(), runtime.GOARCH, runtime.NumCPU(), os.Getpid())
	log.Infof("Args: %v", os.Args)
	conf.Log()
	log.Infof(delimString)

	status := subcommands.Execute(context.Background(), conf)
	if status != subcommands.ExitSuccess {
		log.Warningf("Failure to execute command, err: %v", status)
	}
	if f != nil {
		f.Close()
	}
	os.Exit(int(status))
}

// forEachCmd invokes the passed callback for each command supported by pgsim.
func forEachCmd(cb func(cmd subcommands.Command, group string)) {
	cb(subcommands.HelpCommand(), "")
	cb(subcommands.FlagsCommand(), "")
	cb(subcommands.CommandsCommand(), "")

	const group = "simulation"
	cb(new(cmd.Boot), group)
	cb(new(cmd.Translate), group)
	cb(new(cmd.Dump), group)
	cb(new(cmd.Verify), group)
}
