package runtime

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/docker/docker/pkg/reexec"
	"gopkg.in/yaml.v3"
)

const (
	envOrdinal  = "_FORKRUN_CHILD_ORDINAL"
	envPriority = "_FORKRUN_CHILD_PRIORITY"
	envConfig   = "_FORKRUN_CHILD_CONFIG"
	envOutput   = "_FORKRUN_CHILD_OUTPUT"

	outputStdout = "stdout"
	outputStderr = "stderr"
)

// Init must be called at the start of main, before any other work. In a
// spawned child it runs the child side of the spawn and never returns; in any
// other process it only enables spawning.
func Init() {
	initialized.Store(true)
	if reexec.Init() {
		return
	}
	if _, ok := os.LookupEnv(envOrdinal); ok {
		fmt.Fprintf(os.Stderr, "no child handler registered as %q\n", os.Args[0])
		exit(ExitForkFailure)
	}
}

func runChild(h *Handler) {
	r, priority, err := childFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "child %s: %v\n", h.name, err)
		exit(ExitForkFailure)
		return
	}

	r.SetPriority(r.id, r.config.PriorityFor(r.id, priority))
	r.Terminate(r.invoke(h), "")
}

// invoke runs the handler, turning a panic into ExitForkFailure so a failing
// child never continues past its handler.
func (r *Runtime) invoke(h *Handler) (code int) {
	defer func() {
		if rec := recover(); rec != nil {
			fmt.Fprintln(r.output(), rec)
			code = ExitForkFailure
		}
	}()
	if h.fn != nil {
		h.fn(r)
	}
	return 0
}

// childOutputStream names the stream a child prints its messages to. A child
// cannot share an arbitrary writer with its parent, so anything other than
// os.Stdout sends the child's messages to stderr.
func childOutputStream(w io.Writer) string {
	if w == os.Stdout {
		return outputStdout
	}
	return outputStderr
}

func childEnv(ordinal, priority int, cfg Config, output string) ([]string, error) {
	encoded, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encode child config: %w", err)
	}
	return []string{
		envOrdinal + "=" + strconv.Itoa(ordinal),
		envPriority + "=" + strconv.Itoa(priority),
		envConfig + "=" + string(encoded),
		envOutput + "=" + output,
	}, nil
}

// childFromEnv builds the child side Runtime and clears the protocol
// variables so that processes started by the handler do not inherit them.
func childFromEnv() (*Runtime, int, error) {
	defer func() {
		os.Unsetenv(envOrdinal)
		os.Unsetenv(envPriority)
		os.Unsetenv(envConfig)
		os.Unsetenv(envOutput)
	}()

	ordinal, err := strconv.Atoi(os.Getenv(envOrdinal))
	if err != nil || ordinal <= 0 {
		return nil, 0, fmt.Errorf("invalid ordinal %q", os.Getenv(envOrdinal))
	}

	priority := 0
	if value := os.Getenv(envPriority); value != "" {
		priority, err = strconv.Atoi(value)
		if err != nil {
			return nil, 0, fmt.Errorf("invalid priority %q: %w", value, err)
		}
	}

	var cfg Config
	if value := os.Getenv(envConfig); value != "" {
		if err := yaml.Unmarshal([]byte(value), &cfg); err != nil {
			return nil, 0, fmt.Errorf("decode config: %w", err)
		}
	}

	out := io.Writer(os.Stdout)
	if os.Getenv(envOutput) == outputStderr {
		out = os.Stderr
	}

	r := New(WithConfig(cfg), WithOutput(out))
	r.id = ordinal
	r.args = append([]string(nil), os.Args[1:]...)
	return r, priority, nil
}
