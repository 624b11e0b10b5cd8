package conversion_test

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/hbomb79/Verto/internal/engine"
)

// fakeEngine is an in-memory engine. Every invocation writes an artifact
// named by its final argument, whose content lists the declared inputs.
type fakeEngine struct {
	*sync.Mutex
	native   bool
	pathMode bool

	files       map[string][]byte
	invocations [][]string
	removed     []string
	staged      []engine.Input
	loads       int
	shutdowns   int
	failed      bool

	// failWhen, if set, is consulted for each invocation. A non-nil error is
	// returned from Execute; silent reports the failure only via the failure
	// signal.
	failWhen func(args []string) (silent bool, err error)
}

func newFakeEngine(pathMode bool) *fakeEngine {
	return &fakeEngine{Mutex: &sync.Mutex{}, native: true, pathMode: pathMode, files: make(map[string][]byte)}
}

func (f *fakeEngine) Load(ctx context.Context) error {
	f.Lock()
	defer f.Unlock()
	f.loads++
	return nil
}

func (f *fakeEngine) Stage(ctx context.Context, inputs []engine.Input) error {
	f.Lock()
	defer f.Unlock()
	for _, in := range inputs {
		f.files[in.Name] = in.Data
	}
	f.staged = append(f.staged, inputs...)
	return nil
}

func (f *fakeEngine) Execute(ctx context.Context, args []string) error {
	f.Lock()
	defer f.Unlock()
	f.invocations = append(f.invocations, slices.Clone(args))

	if f.failWhen != nil {
		if silent, err := f.failWhen(args); err != nil || silent {
			f.failed = true
			return err
		}
	}

	inputs := make([]string, 0)
	for i := 0; i+1 < len(args); i++ {
		if args[i] == "-i" {
			inputs = append(inputs, args[i+1])
		}
	}

	f.failed = false
	f.files[args[len(args)-1]] = []byte(strings.Join(inputs, "+"))
	return nil
}

func (f *fakeEngine) ReadOutput(ctx context.Context, name string) (engine.Output, error) {
	f.Lock()
	defer f.Unlock()
	data, ok := f.files[name]
	if !ok {
		return engine.Output{}, fmt.Errorf("%w: %s", engine.ErrArtifactNotFound, name)
	}

	if f.pathMode {
		return engine.Output{Path: "/work/" + name}, nil
	}

	return engine.Output{Data: slices.Clone(data)}, nil
}

func (f *fakeEngine) Remove(ctx context.Context, name string) error {
	f.Lock()
	defer f.Unlock()
	if _, ok := f.files[name]; !ok {
		return fmt.Errorf("%w: %s", engine.ErrArtifactNotFound, name)
	}

	delete(f.files, name)
	f.removed = append(f.removed, name)
	return nil
}

func (f *fakeEngine) Shutdown(ctx context.Context) error {
	f.Lock()
	defer f.Unlock()
	f.shutdowns++
	return nil
}

func (f *fakeEngine) Native() bool { return f.native }

func (f *fakeEngine) LastInvocationFailed() bool {
	f.Lock()
	defer f.Unlock()
	return f.failed
}

func (f *fakeEngine) has(name string) bool {
	f.Lock()
	defer f.Unlock()
	_, ok := f.files[name]
	return ok
}

// failOutputPrefix returns a failure function which fails any invocation
// whose output begins with the prefix provided.
func failOutputPrefix(prefix string, silent bool) func([]string) (bool, error) {
	return func(args []string) (bool, error) {
		if !strings.HasPrefix(args[len(args)-1], prefix) {
			return false, nil
		}

		if silent {
			return true, nil
		}

		return false, errors.New("simulated invocation failure")
	}
}
