package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/prefsets/internal/config"
	"github.com/kalambet/prefsets/internal/kv"
	"github.com/kalambet/prefsets/internal/preset"
)

// parseCLIValue reads a command-line value of the named type. String sets
// accept a JSON array or a comma-separated list.
func parseCLIValue(typ, raw string) (kv.Value, error) {
	if typ == "" {
		typ = "string"
	}
	kind, err := kv.ParseKind(typ)
	if err != nil {
		return kv.Value{}, err
	}
	if kind == kv.KindStringSet && !strings.HasPrefix(strings.TrimSpace(raw), "[") {
		var items []string
		for _, item := range strings.Split(raw, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		return kv.StringSet(items), nil
	}
	return kv.ParseValue(kind, raw)
}

// lookupView returns the named preset, or the active one when name is empty.
// Unknown names are an error.
func lookupView(reg *preset.Registry, name string) (*preset.View, error) {
	if name == "" {
		return reg.RestoreActive()
	}
	ok, err := reg.Has(name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("preset %q not found", name)
	}
	return reg.Preset(name), nil
}

// --- preset ---

var presetCmd = &cobra.Command{
	Use:   "preset",
	Short: "List, create, switch and copy presets",
}

var presetListCmd = &cobra.Command{
	Use:   "list",
	Short: "List presets, marking the active one",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRegistry(func(reg *preset.Registry) error {
			return listPresets(cmd.OutOrStdout(), reg)
		})
	},
}

func listPresets(w io.Writer, reg *preset.Registry) error {
	names, err := reg.Presets()
	if err != nil {
		return err
	}
	active, err := reg.ActiveName()
	if err != nil {
		return err
	}
	for _, n := range names {
		if n == active {
			fmt.Fprintf(w, "* %s\n", colorize(colorGreen, n))
			continue
		}
		fmt.Fprintf(w, "  %s\n", n)
	}
	return nil
}

var presetAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Register a new preset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		err := mutate(cmd.Context(), func(m mutator, _ string) error {
			return m.addPreset(cmd.Context(), name)
		})
		if err != nil {
			return err
		}
		printSuccess("Added preset %s (prefix %s)", name, preset.PrefixFor(name))
		return nil
	},
}

var presetRemoveCmd = &cobra.Command{
	Use:     "remove <name>",
	Aliases: []string{"rm"},
	Short:   "Delete a preset and all of its values",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		err := mutate(cmd.Context(), func(m mutator, _ string) error {
			return m.removePreset(cmd.Context(), name)
		})
		if err != nil {
			return err
		}
		printSuccess("Removed preset %s", name)
		return nil
	},
}

var presetUseCmd = &cobra.Command{
	Use:   "use <name>",
	Short: "Make a preset the active one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		err := mutate(cmd.Context(), func(m mutator, _ string) error {
			return m.setActive(cmd.Context(), name)
		})
		if err != nil {
			return err
		}
		printSuccess("Active preset is now %s", name)
		return nil
	},
}

var presetActiveCmd = &cobra.Command{
	Use:   "active",
	Short: "Print the active preset",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRegistry(func(reg *preset.Registry) error {
			name, err := reg.ActiveName()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), name)
			return nil
		})
	},
}

var presetShowCmd = &cobra.Command{
	Use:   "show [name]",
	Short: "Show the values of a preset (default: the active one)",
	Long: `Show the values stored in a preset.

With --effective, DEFAULT values the preset does not override are included
and marked [DEFAULT].`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		effective, _ := cmd.Flags().GetBool("effective")
		var name string
		if len(args) == 1 {
			name = args[0]
		}
		return withRegistry(func(reg *preset.Registry) error {
			v, err := lookupView(reg, name)
			if err != nil {
				return err
			}
			return showPreset(cmd.OutOrStdout(), v, effective)
		})
	},
}

func showPreset(w io.Writer, v *preset.View, effective bool) error {
	own, err := v.All()
	if err != nil {
		return err
	}
	if !effective {
		printValues(w, own, nil)
		return nil
	}
	all, err := preset.Effective(v)
	if err != nil {
		return err
	}
	inherited := make(map[string]bool)
	for k := range all {
		if _, ok := own[k]; !ok && !v.IsDefault() {
			inherited[k] = true
		}
	}
	printValues(w, all, inherited)
	return nil
}

var presetExportCmd = &cobra.Command{
	Use:   "export [name]",
	Short: "Write a preset's own values as YAML",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("output")
		var name string
		if len(args) == 1 {
			name = args[0]
		}
		return withRegistry(func(reg *preset.Registry) error {
			v, err := lookupView(reg, name)
			if err != nil {
				return err
			}
			snap, err := preset.TakeSnapshot(v)
			if err != nil {
				return err
			}
			if out == "" || out == "-" {
				return snap.WriteYAML(cmd.OutOrStdout())
			}
			f, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("creating %s: %w", out, err)
			}
			if err := snap.WriteYAML(f); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			printSuccess("Exported %d values of %s to %s", len(snap.Values), v.Name(), out)
			return nil
		})
	},
}

var presetImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Replace a preset's values with an exported YAML file",
	Long: `Replace a preset's values with an exported YAML file.

The preset named in the file is used unless --as is given. It is registered
first when it does not exist yet. Imports always write the local store.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		as, _ := cmd.Flags().GetString("as")
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("opening %s: %w", args[0], err)
		}
		defer f.Close()
		snap, err := preset.ReadSnapshot(f)
		if err != nil {
			return err
		}
		if as != "" {
			snap.Preset = as
		}
		return withRegistry(func(reg *preset.Registry) error {
			if err := importSnapshot(reg, snap); err != nil {
				return err
			}
			printSuccess("Imported %d values into %s", len(snap.Values), snap.Preset)
			return nil
		})
	},
}

func importSnapshot(reg *preset.Registry, snap preset.Snapshot) error {
	if snap.Preset == "" {
		return fmt.Errorf("snapshot names no preset; pass --as")
	}
	ok, err := reg.Has(snap.Preset)
	if err != nil {
		return err
	}
	if !ok {
		if err := reg.Add(snap.Preset); err != nil {
			return err
		}
	}
	return snap.Restore(reg.Preset(snap.Preset))
}

func init() {
	presetShowCmd.Flags().Bool("effective", false, "include inherited DEFAULT values")
	presetExportCmd.Flags().StringP("output", "o", "", "write to file instead of stdout")
	presetImportCmd.Flags().String("as", "", "import into this preset instead of the one named in the file")

	presetCmd.AddCommand(presetListCmd)
	presetCmd.AddCommand(presetAddCmd)
	presetCmd.AddCommand(presetRemoveCmd)
	presetCmd.AddCommand(presetUseCmd)
	presetCmd.AddCommand(presetActiveCmd)
	presetCmd.AddCommand(presetShowCmd)
	presetCmd.AddCommand(presetExportCmd)
	presetCmd.AddCommand(presetImportCmd)
}

// --- settings ---

var getCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Read a setting, falling back to DEFAULT",
	Long: `Read a setting from a preset (default: the active one).

Without --type the stored value is printed with its type. With --type the
value is read as that type and --default is printed when the key is unset.

Examples:
  prefsets get theme
  prefsets get fontSize --preset WORK --type int --default 12`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("preset")
		typ, _ := cmd.Flags().GetString("type")
		def, _ := cmd.Flags().GetString("default")
		return withRegistry(func(reg *preset.Registry) error {
			v, err := lookupView(reg, name)
			if err != nil {
				return err
			}
			if typ != "" {
				val, err := typedGet(v, args[0], typ, def)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), val.Format())
				return nil
			}
			res, err := v.Resolve(args[0])
			if err != nil {
				return err
			}
			if !res.Found {
				return fmt.Errorf("%s is not set in preset %s", args[0], v.Name())
			}
			printValues(cmd.OutOrStdout(), map[string]kv.Value{args[0]: res.Value}, map[string]bool{args[0]: res.Inherited})
			return nil
		})
	},
}

// typedGet reads key through the typed getter for typ, with def parsed as
// the fallback.
func typedGet(v *preset.View, key, typ, def string) (kv.Value, error) {
	kind, err := kv.ParseKind(typ)
	if err != nil {
		return kv.Value{}, err
	}
	fallback := kv.Value{Kind: kind}
	if def != "" {
		if fallback, err = parseCLIValue(typ, def); err != nil {
			return kv.Value{}, fmt.Errorf("invalid --default: %w", err)
		}
	}

	switch kind {
	case kv.KindString:
		s, err := v.GetString(key, fallback.Str)
		return kv.String(s), err
	case kv.KindInt:
		i, err := v.GetInt(key, int(fallback.Num))
		return kv.Int(i), err
	case kv.KindLong:
		i, err := v.GetLong(key, fallback.Num)
		return kv.Long(i), err
	case kv.KindFloat:
		f, err := v.GetFloat(key, fallback.Float)
		return kv.Float(f), err
	case kv.KindBool:
		b, err := v.GetBool(key, fallback.Bool)
		return kv.Bool(b), err
	default:
		ss, err := v.GetStringSet(key, fallback.Set)
		return kv.StringSet(ss), err
	}
}

var setCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Write a setting into a preset",
	Long: `Write a setting into a preset (default: the active one).

String sets take a JSON array or a comma-separated list.

Examples:
  prefsets set theme dark --preset WORK
  prefsets set fontSize 14 --type int
  prefsets set tags go,cli --type string_set`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("preset")
		typ, _ := cmd.Flags().GetString("type")
		key := args[0]
		val, err := parseCLIValue(typ, args[1])
		if err != nil {
			return err
		}
		err = mutate(cmd.Context(), func(m mutator, active string) error {
			if name == "" {
				name = active
			}
			return m.putSetting(cmd.Context(), name, key, val)
		})
		if err != nil {
			return err
		}
		printSuccess("Set %s = %s in %s", key, val.Format(), name)
		return nil
	},
}

var unsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Remove a setting from a preset so DEFAULT applies again",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("preset")
		key := args[0]
		err := mutate(cmd.Context(), func(m mutator, active string) error {
			if name == "" {
				name = active
			}
			return m.deleteSetting(cmd.Context(), name, key)
		})
		if err != nil {
			return err
		}
		printSuccess("Removed %s from %s", key, name)
		return nil
	},
}

var rawCmd = &cobra.Command{
	Use:   "raw",
	Short: "Dump the underlying store with physical keys",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRegistry(func(reg *preset.Registry) error {
			all, err := reg.Flat().All()
			if err != nil {
				return err
			}
			printValues(cmd.OutOrStdout(), all, nil)
			return nil
		})
	},
}

func init() {
	getCmd.Flags().String("preset", "", "preset to read (default: active)")
	getCmd.Flags().String("type", "", "read as string, int, long, float, bool or string_set")
	getCmd.Flags().String("default", "", "value printed when the key is unset (with --type)")
	setCmd.Flags().String("preset", "", "preset to write (default: active)")
	setCmd.Flags().String("type", "string", "string, int, long, float, bool or string_set")
	unsetCmd.Flags().String("preset", "", "preset to change (default: active)")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		sort.Slice(keys, func(i, j int) bool { return keys[i].Key < keys[j].Key })
		for _, k := range keys {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s = %s %s\n", colorize(colorBold, k.Key), k.Value, colorize(colorDim, "("+k.EnvVar+")"))
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:       "set <key> <value>",
	Short:     "Set a configuration value",
	Args:      cobra.ExactArgs(2),
	ValidArgs: config.ValidKeys(),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Remove a configuration value so its default applies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}
		printSuccess("Unset %s", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
}
