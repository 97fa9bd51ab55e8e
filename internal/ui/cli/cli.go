package cli

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"dagger/internal/engine/graph"
)

const versionString = "1.0.0"
const defaultConfigPath = "./data/config/dagger.toml"

type cliOptions struct {
	configPath   string
	envFile      string
	serve        bool
	team         string
	add          string
	del          string
	get          string
	list         bool
	format       string
	includeTasks bool
	verbose      bool
	version      bool
	args         []string
}

func parseOptions(args []string, stderr io.Writer) (cliOptions, error) {
	var opts cliOptions
	fs := flag.NewFlagSet("dagger", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&opts.configPath, "config", defaultConfigPath, "Path to config file")
	fs.StringVar(&opts.envFile, "env-file", ".env", "Optional dotenv file loaded before DAGGER_* overrides")
	fs.BoolVar(&opts.serve, "serve", false, "Serve the HTTP API (default when no one-shot flag is given)")
	fs.StringVar(&opts.team, "team", "", "Team id for -add and -list")
	fs.StringVar(&opts.add, "add", "", "Add dependency edges: <from>:<to>[,<to>...]")
	fs.StringVar(&opts.del, "delete", "", "Delete dependency edges: <component>:<from>:<to>[,<to>...]")
	fs.StringVar(&opts.get, "get", "", "Print one component by id")
	fs.BoolVar(&opts.list, "list", false, "List the components of -team")
	fs.StringVar(&opts.format, "format", "json", "Output format for -get and -list: json, dot, mermaid or tsv")
	fs.BoolVar(&opts.includeTasks, "include-tasks", false, "Attach task titles and status to -get output")
	fs.BoolVar(&opts.verbose, "verbose", false, "Enable verbose logging")
	fs.BoolVar(&opts.version, "version", false, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, err
	}

	opts.args = fs.Args()
	return opts, nil
}

func (o cliOptions) oneShot() bool {
	return o.add != "" || o.del != "" || o.get != "" || o.list
}

func validateModeOptions(opts cliOptions) error {
	modes := 0
	for _, set := range []bool{opts.add != "", opts.del != "", opts.get != "", opts.list} {
		if set {
			modes++
		}
	}
	if modes > 1 {
		return fmt.Errorf("-add, -delete, -get and -list cannot be combined")
	}
	if opts.serve && modes > 0 {
		return fmt.Errorf("-serve cannot be combined with a one-shot command")
	}
	if (opts.add != "" || opts.list) && strings.TrimSpace(opts.team) == "" {
		return fmt.Errorf("-team is required with -add and -list")
	}
	if len(opts.args) > 0 {
		return fmt.Errorf("unexpected arguments: %s", strings.Join(opts.args, " "))
	}
	return nil
}

// parseAddSpec parses <from>:<to>[,<to>...].
func parseAddSpec(spec string) (graph.NodeID, []graph.NodeID, error) {
	parts := strings.Split(spec, ":")
	if len(parts) != 2 {
		return graph.NodeID{}, nil, fmt.Errorf("-add expects <from>:<to>[,<to>...], got %q", spec)
	}
	return parseEdgeList(parts[0], parts[1])
}

// parseDeleteSpec parses <component>:<from>:<to>[,<to>...].
func parseDeleteSpec(spec string) (graph.ComponentID, graph.NodeID, []graph.NodeID, error) {
	parts := strings.Split(spec, ":")
	if len(parts) != 3 {
		return graph.ComponentID{}, graph.NodeID{}, nil, fmt.Errorf("-delete expects <component>:<from>:<to>[,<to>...], got %q", spec)
	}
	id, err := graph.ParseComponentID(strings.TrimSpace(parts[0]))
	if err != nil {
		return graph.ComponentID{}, graph.NodeID{}, nil, err
	}
	from, deps, err := parseEdgeList(parts[1], parts[2])
	if err != nil {
		return graph.ComponentID{}, graph.NodeID{}, nil, err
	}
	return id, from, deps, nil
}

func parseEdgeList(rawFrom, rawTargets string) (graph.NodeID, []graph.NodeID, error) {
	from, err := graph.ParseNodeID(strings.TrimSpace(rawFrom))
	if err != nil {
		return graph.NodeID{}, nil, err
	}
	var deps []graph.NodeID
	for _, raw := range strings.Split(rawTargets, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		to, err := graph.ParseNodeID(raw)
		if err != nil {
			return graph.NodeID{}, nil, err
		}
		deps = append(deps, to)
	}
	if len(deps) == 0 {
		return graph.NodeID{}, nil, fmt.Errorf("at least one dependency task id is required")
	}
	return from, deps, nil
}
