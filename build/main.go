// Command build holds the project's development tasks.
//
//	go run ./build          # vet, lint and unit tests
//	go run ./build -h       # list tasks
package main

import (
	"os"
	"os/exec"
	"strings"

	"github.com/goyek/goyek/v2"
)

func run(a *goyek.A, name string, args ...string) {
	a.Helper()
	a.Logf("%s %s", name, strings.Join(args, " "))
	cmd := exec.CommandContext(a.Context(), name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		a.Error(err)
	}
}

var vet = goyek.Define(goyek.Task{
	Name:  "vet",
	Usage: "Run go vet on all packages",
	Action: func(a *goyek.A) {
		run(a, "go", "vet", "./...")
	},
})

var lint = goyek.Define(goyek.Task{
	Name:  "lint",
	Usage: "Run golangci-lint",
	Action: func(a *goyek.A) {
		run(a, "go", "run", "github.com/golangci/golangci-lint/cmd/golangci-lint", "run", "./...")
	},
})

var test = goyek.Define(goyek.Task{
	Name:  "test",
	Usage: "Run unit tests with the race detector",
	Action: func(a *goyek.A) {
		run(a, "go", "test", "-race", "./...")
	},
})

var integration = goyek.Define(goyek.Task{
	Name:  "integration",
	Usage: "Build the binary and run it against a fake JSS",
	Action: func(a *goyek.A) {
		run(a, "go", "test", "-tags", "integration", "-count=1", "./integration/...")
	},
})

var vuln = goyek.Define(goyek.Task{
	Name:  "vuln",
	Usage: "Check dependencies for known vulnerabilities",
	Action: func(a *goyek.A) {
		run(a, "go", "run", "golang.org/x/vuln/cmd/govulncheck", "./...")
	},
})

var all = goyek.Define(goyek.Task{
	Name:  "all",
	Usage: "vet, lint and test",
	Deps:  goyek.Deps{vet, lint, test},
})

func main() {
	goyek.SetDefault(all)
	goyek.Main(os.Args[1:])
}
