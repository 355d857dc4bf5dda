// surveilctl is the operator CLI for the surveillance engine's config
// surface: inspect the effective config, set individual values by
// dotted path, switch presets, validate, and export. It edits the same
// TOML override file the engine loads at startup, so changes apply on
// the next start (or hot reload, where wired).
//
// Usage:
//
//	surveilctl [-config path] show [section]
//	surveilctl [-config path] set <dotted.path> <value>
//	surveilctl [-config path] preset <name>
//	surveilctl [-config path] validate
//	surveilctl [-config path] export [file]
//
// Exit code 0 on success, 1 on validation failure or an invalid path.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/marketsurveil/surveil/internal/config"
)

func main() {
	configPath := flag.String("config", defaultConfigPath(), "path to the TOML config override file")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	var err error
	switch args[0] {
	case "show":
		err = cmdShow(*configPath, args[1:])
	case "set":
		err = cmdSet(*configPath, args[1:])
	case "preset":
		err = cmdPreset(*configPath, args[1:])
	case "validate":
		err = cmdValidate(*configPath)
	case "export":
		err = cmdExport(*configPath, args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", args[0])
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage:
  surveilctl [-config path] show [section]
  surveilctl [-config path] set <dotted.path> <value>
  surveilctl [-config path] preset <name>
  surveilctl [-config path] validate
  surveilctl [-config path] export [file]`)
}

func defaultConfigPath() string {
	if p := os.Getenv("SURVEIL_CONFIG"); p != "" {
		return p
	}
	return "config/local.toml"
}

// loadEffective returns the effective config: the balanced preset
// overlaid with the file at path, if present.
func loadEffective(path string) (config.Config, error) {
	return config.LoadTOMLOverride(config.Balanced(), path)
}

// toTree round-trips a Config through TOML into a generic tree so
// dotted-path lookups and edits work uniformly.
func toTree(cfg config.Config) (map[string]any, error) {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var tree map[string]any
	if err := toml.Unmarshal(data, &tree); err != nil {
		return nil, err
	}
	return tree, nil
}

func fromTree(tree map[string]any) (config.Config, error) {
	data, err := toml.Marshal(tree)
	if err != nil {
		return config.Config{}, err
	}
	var cfg config.Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func cmdShow(path string, args []string) error {
	cfg, err := loadEffective(path)
	if err != nil {
		return err
	}
	tree, err := toTree(cfg)
	if err != nil {
		return err
	}

	var out any = tree
	if len(args) > 0 {
		section, ok := tree[args[0]]
		if !ok {
			return fmt.Errorf("unknown section %q", args[0])
		}
		out = map[string]any{args[0]: section}
	}

	data, err := toml.Marshal(out)
	if err != nil {
		return err
	}
	fmt.Print(string(data))
	return nil
}

func cmdSet(path string, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("set requires <dotted.path> <value>")
	}
	cfg, err := loadEffective(path)
	if err != nil {
		return err
	}
	tree, err := toTree(cfg)
	if err != nil {
		return err
	}

	if err := setPath(tree, strings.Split(args[0], "."), parseValue(args[1])); err != nil {
		return err
	}

	next, err := fromTree(tree)
	if err != nil {
		return fmt.Errorf("value does not fit %s: %w", args[0], err)
	}
	if err := config.Validate(next); err != nil {
		return err
	}
	if err := writeConfig(path, next); err != nil {
		return err
	}
	fmt.Printf("%s = %s\n", args[0], args[1])
	return nil
}

func cmdPreset(path string, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("preset requires a name (conservative|balanced|aggressive|development)")
	}
	cfg, err := config.FromPreset(args[0])
	if err != nil {
		return err
	}
	if err := writeConfig(path, cfg); err != nil {
		return err
	}
	fmt.Printf("applied preset %s\n", args[0])
	return nil
}

func cmdValidate(path string) error {
	cfg, err := loadEffective(path)
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}
	fmt.Println("config valid")
	return nil
}

func cmdExport(path string, args []string) error {
	cfg, err := loadEffective(path)
	if err != nil {
		return err
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		fmt.Print(string(data))
		return nil
	}
	if err := os.WriteFile(args[0], data, 0o644); err != nil {
		return err
	}
	fmt.Printf("exported to %s\n", args[0])
	return nil
}

// setPath walks segments through nested tables and replaces the leaf.
// Every intermediate segment must already exist as a table; the leaf
// must already exist, so typos fail instead of silently creating new
// keys.
func setPath(tree map[string]any, segments []string, value any) error {
	cur := tree
	for i, seg := range segments {
		if i == len(segments)-1 {
			if _, ok := cur[seg]; !ok {
				return fmt.Errorf("unknown config path %q", strings.Join(segments, "."))
			}
			cur[seg] = value
			return nil
		}
		next, ok := cur[seg].(map[string]any)
		if !ok {
			return fmt.Errorf("unknown config path %q", strings.Join(segments, "."))
		}
		cur = next
	}
	return nil
}

// parseValue interprets s as bool, int, or float before falling back
// to a plain string.
func parseValue(s string) any {
	if b, err := strconv.ParseBool(s); err == nil && (s == "true" || s == "false") {
		return b
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

func writeConfig(path string, cfg config.Config) error {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
