// Command staticlint is the lint gate of the favorites module. It runs the
// x/tools passes that matter for an HTTP service with a SQL and resty client
// side, ineffassign, nilerr, nosecretlog and a configurable subset of
// staticcheck in one multichecker.
//
//	STATICLINT_CONFIG=./cmd/staticlint/config.json staticlint ./...
//
// Without STATICLINT_CONFIG the config.json next to the binary is read. A
// missing file means the built-in passes only.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v6"
	"github.com/gordonklaus/ineffassign/pkg/ineffassign"
	"github.com/gostaticanalysis/nilerr"
	"golang.org/x/tools/go/analysis"
	"golang.org/x/tools/go/analysis/multichecker"
	"golang.org/x/tools/go/analysis/passes/copylock"
	"golang.org/x/tools/go/analysis/passes/errorsas"
	"golang.org/x/tools/go/analysis/passes/httpresponse"
	"golang.org/x/tools/go/analysis/passes/loopclosure"
	"golang.org/x/tools/go/analysis/passes/lostcancel"
	"golang.org/x/tools/go/analysis/passes/printf"
	"golang.org/x/tools/go/analysis/passes/structtag"
	"golang.org/x/tools/go/analysis/passes/unmarshal"
	"golang.org/x/tools/go/analysis/passes/unreachable"
	"honnef.co/go/tools/staticcheck"

	"github.com/patric-chuzhbe/favsync/cmd/staticlint/nosecretlog"
)

const defaultConfigName = "config.json"

// ConfigData is the content of the config file.
type ConfigData struct {
	// Staticcheck names the staticcheck analyzers to enable. A trailing "*"
	// selects a whole group, e.g. "SA4*".
	Staticcheck []string
	// Disable turns off built-in passes by analyzer name.
	Disable []string
}

type launchConfig struct {
	ConfigPath string `env:"STATICLINT_CONFIG"`
}

func main() {
	analyzers, err := run()
	if err != nil {
		log.Fatal(err)
	}

	multichecker.Main(analyzers...)
}

func run() ([]*analysis.Analyzer, error) {
	var launch launchConfig
	if err := env.Parse(&launch); err != nil {
		return nil, fmt.Errorf("in cmd/staticlint/main.go/run(): error while `env.Parse()` calling: %w", err)
	}
	if launch.ConfigPath == "" {
		executable, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("in cmd/staticlint/main.go/run(): error while `os.Executable()` calling: %w", err)
		}
		launch.ConfigPath = filepath.Join(filepath.Dir(executable), defaultConfigName)
	}

	cfg, err := loadConfig(launch.ConfigPath)
	if err != nil {
		return nil, err
	}

	return selectAnalyzers(cfg, staticcheckAnalyzers()), nil
}

func loadConfig(path string) (ConfigData, error) {
	var cfg ConfigData
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("in cmd/staticlint/main.go/loadConfig(): error while `os.ReadFile()` calling: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("in cmd/staticlint/main.go/loadConfig(): error while `json.Unmarshal()` calling: %w", err)
	}

	return cfg, nil
}

func builtinAnalyzers() []*analysis.Analyzer {
	return []*analysis.Analyzer{
		copylock.Analyzer,     // reconciler and stores are guarded by mutexes
		errorsas.Analyzer,     // errors.As targets must be pointers
		httpresponse.Analyzer, // response used before the error check
		loopclosure.Analyzer,
		lostcancel.Analyzer, // request and settle contexts
		printf.Analyzer,
		structtag.Analyzer, // env, json and validate tags
		unmarshal.Analyzer,
		unreachable.Analyzer,

		ineffassign.Analyzer,
		nilerr.Analyzer,

		nosecretlog.Analyzer,
	}
}

func staticcheckAnalyzers() []*analysis.Analyzer {
	result := make([]*analysis.Analyzer, 0, len(staticcheck.Analyzers))
	for _, v := range staticcheck.Analyzers {
		result = append(result, v.Analyzer)
	}

	return result
}

// selectAnalyzers returns the built-in passes minus cfg.Disable, followed by
// the staticcheck analyzers cfg.Staticcheck selects.
func selectAnalyzers(cfg ConfigData, staticcheckPool []*analysis.Analyzer) []*analysis.Analyzer {
	disabled := make(map[string]bool, len(cfg.Disable))
	for _, name := range cfg.Disable {
		disabled[name] = true
	}

	var result []*analysis.Analyzer
	for _, a := range builtinAnalyzers() {
		if !disabled[a.Name] {
			result = append(result, a)
		}
	}
	for _, a := range staticcheckPool {
		if enabled(cfg.Staticcheck, a.Name) {
			result = append(result, a)
		}
	}

	return result
}

func enabled(patterns []string, name string) bool {
	for _, pattern := range patterns {
		if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
			if strings.HasPrefix(name, prefix) {
				return true
			}
			continue
		}
		if pattern == name {
			return true
		}
	}

	return false
}
