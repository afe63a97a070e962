// Package poststep decides which dependency and migration commands follow a
// pull, based on which files it changed.
package poststep

import (
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"

	"github.com/samber/lo"
)

type Step struct {
	Name string
	Args []string
}

func (s Step) String() string { return strings.Join(s.Args, " ") }

// Probe answers questions about the working tree and the host.
type Probe interface {
	// Exists reports whether a repo-relative file exists.
	Exists(rel string) bool
	// Available reports whether a binary is on PATH.
	Available(bin string) bool
}

type DirProbe struct {
	Root     string
	LookPath func(string) (string, error)
}

func NewDirProbe(root string) DirProbe {
	return DirProbe{Root: root, LookPath: exec.LookPath}
}

func (p DirProbe) Exists(rel string) bool {
	info, err := os.Stat(filepath.Join(p.Root, filepath.FromSlash(rel)))
	return err == nil && !info.IsDir()
}

func (p DirProbe) Available(bin string) bool {
	lookPath := p.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	_, err := lookPath(bin)
	return err == nil
}

type lockfile struct {
	file string
	bin  string
	args []string
}

var lockfiles = []lockfile{
	{"pnpm-lock.yaml", "pnpm", []string{"pnpm", "install", "--frozen-lockfile"}},
	{"package-lock.json", "npm", []string{"npm", "ci"}},
	{"yarn.lock", "yarn", []string{"yarn", "install", "--frozen-lockfile"}},
}

var venvPythons = []string{".venv/bin/python", ".venv/Scripts/python.exe"}

// Python returns the interpreter to use for Python steps: the project
// virtualenv when there is one.
func Python(probe Probe) string {
	for _, rel := range venvPythons {
		if probe.Exists(rel) {
			return rel
		}
	}
	return "python"
}

// Select returns the steps to run, in order, for the given changed paths.
func Select(changed []string, probe Probe) []Step {
	set := lo.SliceToMap(changed, func(p string) (string, struct{}) {
		return strings.TrimSpace(filepath.ToSlash(p)), struct{}{}
	})
	touched := func(rel string) bool {
		_, ok := set[rel]
		return ok && probe.Exists(rel)
	}

	var steps []Step
	if touched("requirements.txt") {
		steps = append(steps, Step{Name: "python dependencies", Args: []string{Python(probe), "-m", "pip", "install", "-r", "requirements.txt"}})
	}
	if touched("go.mod") && probe.Available("go") {
		steps = append(steps, Step{Name: "go modules", Args: []string{"go", "mod", "download"}})
	}
	if lf, ok := lo.Find(lockfiles, func(lf lockfile) bool {
		return touched(lf.file) && probe.Available(lf.bin)
	}); ok {
		steps = append(steps, Step{Name: lf.bin + " dependencies", Args: lf.args})
	}
	if lo.SomeBy(changed, isMigrationPath) {
		switch {
		case probe.Exists("alembic.ini"):
			steps = append(steps, Step{Name: "database migrations", Args: []string{Python(probe), "-m", "alembic", "upgrade", "head"}})
		case probe.Exists("manage.py"):
			steps = append(steps, Step{Name: "database migrations", Args: []string{Python(probe), "manage.py", "migrate", "--noinput"}})
		}
	}
	return steps
}

func isMigrationPath(p string) bool {
	lower := strings.ToLower(filepath.ToSlash(strings.TrimSpace(p)))
	return strings.Contains(lower, "migrations/") ||
		strings.Contains(lower, "alembic/") ||
		path.Base(lower) == "alembic.ini"
}
