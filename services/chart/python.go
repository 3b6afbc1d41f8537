package chart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"hdbinsights/models"

	"github.com/rs/zerolog"
)

const (
	runnerFile = "runner.py"
	codeFile   = "chart_code.py"
	dataFile   = "data.json"
	resultFile = "result.json"
	figureFile = "fig.json"
	imageFile  = "chart.png"

	defaultChartTimeout = 60 * time.Second
	maxOutputTail       = 4000
)

// runnerScript loads the table into df and runs the chart code with a
// builtins table that has no file, eval or unrestricted import access.
const runnerScript = `import builtins
import json
import os
import sys
import traceback

ALLOWED = set(sys.argv[2].split(","))
BLOCKED = {"open", "eval", "exec", "compile", "input", "breakpoint", "help", "exit", "quit", "globals", "locals", "vars", "memoryview"}


def write_result(work, result):
    with open(os.path.join(work, "` + resultFile + `"), "w") as f:
        json.dump(result, f)


def main():
    work = sys.argv[1]
    result = {"success": False, "error": "", "traceback": ""}
    try:
        import pandas as pd
        import plotly.express as px
        import plotly.graph_objects as go

        with open(os.path.join(work, "` + dataFile + `")) as f:
            payload = json.load(f)
        df = pd.DataFrame(payload["rows"], columns=payload["columns"])

        with open(os.path.join(work, "` + codeFile + `")) as f:
            code = f.read()

        real_import = builtins.__import__

        def guarded_import(name, globals=None, locals=None, fromlist=(), level=0):
            if level != 0 or name.split(".")[0] not in ALLOWED:
                raise ImportError("import of '%s' is not allowed" % name)
            return real_import(name, globals, locals, fromlist, level)

        safe_builtins = {k: v for k, v in vars(builtins).items() if k not in BLOCKED}
        safe_builtins["__import__"] = guarded_import

        scope = {"__builtins__": safe_builtins, "__name__": "__chart__", "df": df, "pd": pd, "px": px, "go": go}
        program = compile(code, "<chart>", "exec")
        exec(program, scope)

        fig = scope.get("fig")
        if fig is None:
            result["error"] = "No ` + "`fig`" + ` variable created."
        else:
            with open(os.path.join(work, "` + figureFile + `"), "w") as f:
                f.write(fig.to_json())
            with open(os.path.join(work, "` + imageFile + `"), "wb") as f:
                f.write(fig.to_image(format="png"))
            result["success"] = True
    except BaseException as e:
        result["error"] = str(e) or type(e).__name__
        result["traceback"] = traceback.format_exc()
    write_result(work, result)


main()
`

type runnerResult struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	Traceback string `json:"traceback"`
}

// PythonSandbox runs chart code in a separate interpreter process inside a
// throwaway directory. The process boundary limits what generated code can
// reach; it is not a security sandbox.
type PythonSandbox struct {
	pythonPath     string
	timeout        time.Duration
	allowedImports []string
	modulePaths    []string
	logger         zerolog.Logger
}

func NewPythonSandbox(pythonPath string, timeout time.Duration, logger zerolog.Logger) *PythonSandbox {
	if pythonPath == "" {
		pythonPath = "python3"
	}
	if timeout <= 0 {
		timeout = defaultChartTimeout
	}
	return &PythonSandbox{
		pythonPath:     pythonPath,
		timeout:        timeout,
		allowedImports: DefaultAllowedImports,
		logger:         logger.With().Str("component", "python_sandbox").Logger(),
	}
}

// WithModulePaths adds directories to the interpreter's module search path,
// for chart libraries installed outside the default site-packages.
func (s *PythonSandbox) WithModulePaths(paths ...string) *PythonSandbox {
	s.modulePaths = append(s.modulePaths, paths...)
	return s
}

func (s *PythonSandbox) Run(ctx context.Context, code string, data *models.QueryResult) (*Render, error) {
	workDir, err := os.MkdirTemp("", "hdb_chart_*")
	if err != nil {
		return nil, fmt.Errorf("failed to create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query result: %w", err)
	}

	files := map[string][]byte{
		runnerFile: []byte(runnerScript),
		codeFile:   []byte(code),
		dataFile:   payload,
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(workDir, name), content, 0o600); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", name, err)
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, s.pythonPath, "-B", filepath.Join(workDir, runnerFile),
		workDir, strings.Join(s.allowedImports, ","))
	cmd.Dir = workDir
	cmd.Env = []string{
		"PATH=" + os.Getenv("PATH"),
		"HOME=" + workDir,
		"TMPDIR=" + workDir,
		"MPLBACKEND=Agg",
		"PYTHONDONTWRITEBYTECODE=1",
	}
	if len(s.modulePaths) > 0 {
		cmd.Env = append(cmd.Env, "PYTHONPATH="+strings.Join(s.modulePaths, string(os.PathListSeparator)))
	}

	start := time.Now()
	output, runErr := cmd.CombinedOutput()
	s.logger.Debug().Dur("elapsed", time.Since(start)).Int("output_bytes", len(output)).Msg("Chart process finished")

	raw, err := os.ReadFile(filepath.Join(workDir, resultFile))
	if err != nil {
		switch {
		case errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
			return nil, &ExecutionError{Message: fmt.Sprintf("chart code timed out after %s", s.timeout)}
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case runErr != nil:
			return nil, &ExecutionError{
				Message:   fmt.Sprintf("chart process failed: %v", runErr),
				Traceback: tail(string(output), maxOutputTail),
			}
		default:
			return nil, fmt.Errorf("chart process produced no result: %w", err)
		}
	}

	var res runnerResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("failed to parse chart process result: %w", err)
	}

	if !res.Success {
		return nil, &ExecutionError{Message: res.Error, Traceback: res.Traceback}
	}

	figJSON, err := os.ReadFile(filepath.Join(workDir, figureFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read chart description: %w", err)
	}
	if _, err := ParseFigure(figJSON); err != nil {
		return nil, &ExecutionError{Message: err.Error()}
	}

	png, err := os.ReadFile(filepath.Join(workDir, imageFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read chart image: %w", err)
	}

	return &Render{FigureJSON: figJSON, PNG: png}, nil
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
