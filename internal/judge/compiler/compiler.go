// Package compiler turns submitted source text into executables using
// per-language command templates.
package compiler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"hsoj/internal/judge/executor"
	appErr "hsoj/pkg/errors"
	"hsoj/pkg/utils/logger"

	"go.uber.org/zap"
)

// NamePlaceholder is replaced by the working name (path prefix without extension).
const NamePlaceholder = "${name}"

const defaultSourceExt = "cpp"

// LanguageSpec configures one language.
type LanguageSpec struct {
	SourceExt  string `yaml:"sourceExt"`
	CompileCmd string `yaml:"compileCmd"`
}

// Result reports whether compilation succeeded. Message carries the
// compiler's captured output on failure.
type Result struct {
	OK      bool
	Message string
}

// Compiler compiles sources of one language.
type Compiler struct {
	language string
	spec     LanguageSpec
	runner   executor.Runner
}

// Compile writes code to <name>.<ext> and runs the compile template.
// A returned error means the attempt itself could not be made; a compiler
// rejecting the code is reported through Result.
func (c *Compiler) Compile(ctx context.Context, name, code string) (Result, error) {
	sourcePath := name + "." + c.spec.SourceExt
	if err := os.MkdirAll(filepath.Dir(sourcePath), 0o755); err != nil {
		return Result{}, appErr.Wrapf(err, appErr.JudgeSystemError, "prepare workspace failed: %v", err)
	}
	if err := os.WriteFile(sourcePath, []byte(code), 0o644); err != nil {
		return Result{}, appErr.Wrapf(err, appErr.JudgeSystemError, "write source file failed: %v", err)
	}

	cmd := strings.ReplaceAll(c.spec.CompileCmd, NamePlaceholder, name)
	logger.Info(ctx, "compiling", zap.String("language", c.language), zap.String("command", cmd))
	res := c.runner.Run(ctx, cmd)
	if res.ExitCode != 0 {
		return Result{Message: fmt.Sprintf("compile error: %s %s", res.Stdout, res.Stderr)}, nil
	}
	return Result{OK: true}, nil
}

// Registry maps language ids to compilers. It is read-only after construction.
type Registry struct {
	compilers map[string]*Compiler
}

// NewRegistry builds a registry from configuration.
func NewRegistry(languages map[string]LanguageSpec, runner executor.Runner) (*Registry, error) {
	if runner == nil {
		return nil, fmt.Errorf("runner is required")
	}
	compilers := make(map[string]*Compiler, len(languages))
	for id, spec := range languages {
		if id == "" {
			return nil, fmt.Errorf("language id is required")
		}
		if strings.TrimSpace(spec.CompileCmd) == "" {
			return nil, fmt.Errorf("language %s: compile command is required", id)
		}
		if spec.SourceExt == "" {
			spec.SourceExt = defaultSourceExt
		}
		spec.SourceExt = strings.TrimPrefix(spec.SourceExt, ".")
		compilers[id] = &Compiler{language: id, spec: spec, runner: runner}
	}
	return &Registry{compilers: compilers}, nil
}

// Get returns the compiler for language.
func (r *Registry) Get(language string) (*Compiler, bool) {
	c, ok := r.compilers[language]
	return c, ok
}

// Supports reports whether language is registered.
func (r *Registry) Supports(language string) bool {
	_, ok := r.compilers[language]
	return ok
}

// Languages lists registered language ids in no particular order.
func (r *Registry) Languages() []string {
	out := make([]string, 0, len(r.compilers))
	for id := range r.compilers {
		out = append(out, id)
	}
	return out
}

// Compile compiles code with the compiler registered for language.
// Unknown languages fail without spawning anything.
func (r *Registry) Compile(ctx context.Context, language, name, code string) (Result, error) {
	c, ok := r.compilers[language]
	if !ok {
		return Result{Message: fmt.Sprintf("unsupported language: %s", language)}, nil
	}
	return c.Compile(ctx, name, code)
}
