// Command staticlint is the project's multichecker. It bundles a fixed set of
// x/tools passes, ineffassign, nilerr and the jjbank analyzers, plus the
// staticcheck analyzers named in config.json.
//
// config.json is looked up next to the binary unless STATICLINT_CONFIG
// points elsewhere:
//
//	{"Staticcheck": ["SA1000", "SA4006"]}
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gordonklaus/ineffassign/pkg/ineffassign"
	"github.com/gostaticanalysis/nilerr"
	"golang.org/x/tools/go/analysis"
	"golang.org/x/tools/go/analysis/multichecker"
	"golang.org/x/tools/go/analysis/passes/copylock"
	"golang.org/x/tools/go/analysis/passes/loopclosure"
	"golang.org/x/tools/go/analysis/passes/lostcancel"
	"golang.org/x/tools/go/analysis/passes/printf"
	"golang.org/x/tools/go/analysis/passes/structtag"
	"golang.org/x/tools/go/analysis/passes/unmarshal"
	"golang.org/x/tools/go/analysis/passes/unreachable"
	"honnef.co/go/tools/staticcheck"

	"github.com/patric-chuzhbe/jjbank/cmd/staticlint/deferexit"
	"github.com/patric-chuzhbe/jjbank/cmd/staticlint/nofloatmoney"
)

const (
	configFileName = `config.json`
	configPathEnv  = `STATICLINT_CONFIG`
)

// ConfigData is the content of config.json.
type ConfigData struct {
	Staticcheck []string
}

func configPath() (string, error) {
	if path := os.Getenv(configPathEnv); path != "" {
		return path, nil
	}
	appfile, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("in cmd/staticlint/main.go/configPath(): error while `os.Executable()` calling: %w", err)
	}

	return filepath.Join(filepath.Dir(appfile), configFileName), nil
}

func loadConfig(path string) (ConfigData, error) {
	var cfg ConfigData
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("in cmd/staticlint/main.go/loadConfig(): error while `os.ReadFile()` calling: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("in cmd/staticlint/main.go/loadConfig(): error while `json.Unmarshal()` calling: %w", err)
	}

	return cfg, nil
}

// analyzers returns the always-on checks followed by the enabled
// staticcheck ones. Unknown staticcheck names are ignored.
func analyzers(cfg ConfigData) []*analysis.Analyzer {
	checks := []*analysis.Analyzer{
		copylock.Analyzer,
		loopclosure.Analyzer,
		lostcancel.Analyzer,
		printf.Analyzer,
		structtag.Analyzer,
		unmarshal.Analyzer,
		unreachable.Analyzer,

		ineffassign.Analyzer,
		nilerr.Analyzer,

		deferexit.Analyzer,    // exits that skip deferred cleanup
		nofloatmoney.Analyzer, // money in binary floating point
	}

	enabled := make(map[string]bool, len(cfg.Staticcheck))
	for _, name := range cfg.Staticcheck {
		enabled[name] = true
	}
	for _, v := range staticcheck.Analyzers {
		if enabled[v.Analyzer.Name] {
			checks = append(checks, v.Analyzer)
		}
	}

	return checks
}

func main() {
	path, err := configPath()
	if err != nil {
		panic(err)
	}
	cfg, err := loadConfig(path)
	if err != nil {
		panic(err)
	}

	multichecker.Main(analyzers(cfg)...)
}
