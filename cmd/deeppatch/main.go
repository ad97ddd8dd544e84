// deeppatch diffs, applies & converts structural patches between JSON or
// YAML documents.
//
// Usage:
//
//	deeppatch diff [flags] LEFT RIGHT
//	deeppatch apply [flags] DOCUMENT PATCH
//	deeppatch convert [flags] PATCH
//	deeppatch stats [flags] PATCH
//
// A path of "-" reads from stdin. Documents ending in .yaml or .yml are read
// as YAML, everything else as JSON. Patches that are a valid JSON array are
// read as JSON, anything else as the binary encoding.
package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	jsoniter "github.com/json-iterator/go"
	"github.com/qri-io/deeppatch"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

var json = jsoniter.Config{
	EscapeHTML:             false,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
}.Froze()

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// options are the flags shared by every subcommand
type options struct {
	format  string
	codec   string
	output  string
	pretty  bool
	color   bool
	stats   bool
	indent  bool
	skip    bool
	verbose bool
}

func (o *options) addFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&o.format, "format", "f", "verbose", "patch encoding to write: verbose, compact or binary")
	fs.StringVar(&o.codec, "codec", "bson", "document codec of the binary encoding: bson or cbor")
	fs.StringVarP(&o.output, "output", "o", "", "document format to write: json or yaml (default: format of the input)")
	fs.BoolVarP(&o.pretty, "pretty", "p", false, "print a human readable report instead of a patch")
	fs.BoolVar(&o.color, "color", !color.NoColor, "colorize the pretty report")
	fs.BoolVarP(&o.stats, "stats", "s", false, "print diff statistics to stderr")
	fs.BoolVar(&o.indent, "indent", false, "indent JSON output")
	fs.BoolVar(&o.skip, "skip-unknown", false, "skip operations with unknown types instead of failing")
	fs.BoolVarP(&o.verbose, "verbose", "v", false, "log debug output to stderr")
}

// patchOptions builds library options from flags, returning the selected
// patch encoding
func (o *options) patchOptions(stderr io.Writer) ([]deeppatch.Option, deeppatch.Encoding, error) {
	level := slog.LevelWarn
	if o.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	enc, err := deeppatch.ParseEncoding(o.format)
	if err != nil {
		return nil, enc, err
	}
	opts := []deeppatch.Option{deeppatch.OptionLogger(logger), deeppatch.OptionEncoding(enc)}

	switch o.codec {
	case "bson":
	case "cbor":
		opts = append(opts, deeppatch.OptionCodec(deeppatch.CBORCodec{}))
	default:
		return nil, enc, fmt.Errorf("unknown codec %q", o.codec)
	}
	if o.skip {
		opts = append(opts, deeppatch.OptionSkipUnknownOps())
	}
	return opts, enc, nil
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		printUsage(stderr)
		return fmt.Errorf("missing command")
	}

	var o options
	fs := pflag.NewFlagSet("deeppatch "+args[0], pflag.ContinueOnError)
	fs.SetOutput(stderr)
	o.addFlags(fs)

	var cmd func(o *options, args []string, in io.Reader, out, errOut io.Writer) error
	var nargs int
	switch args[0] {
	case "diff":
		cmd, nargs = runDiff, 2
	case "apply":
		cmd, nargs = runApply, 2
	case "convert":
		cmd, nargs = runConvert, 1
	case "stats":
		cmd, nargs = runStats, 1
	case "help", "-h", "--help":
		printUsage(stdout)
		return nil
	default:
		printUsage(stderr)
		return fmt.Errorf("unknown command %q", args[0])
	}

	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	if fs.NArg() != nargs {
		return fmt.Errorf("%s takes %d arguments, got %d", args[0], nargs, fs.NArg())
	}
	return cmd(&o, fs.Args(), stdin, stdout, stderr)
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `deeppatch diffs, applies & converts structural patches.

Usage:
  deeppatch diff [flags] LEFT RIGHT
  deeppatch apply [flags] DOCUMENT PATCH
  deeppatch convert [flags] PATCH
  deeppatch stats [flags] PATCH

Run "deeppatch COMMAND --help" for flags.
`)
}

func runDiff(o *options, args []string, in io.Reader, out, errOut io.Writer) error {
	opts, enc, err := o.patchOptions(errOut)
	if err != nil {
		return err
	}
	left, _, err := readDocument(args[0], in)
	if err != nil {
		return err
	}
	right, _, err := readDocument(args[1], in)
	if err != nil {
		return err
	}

	st := &deeppatch.Stats{}
	patch, err := deeppatch.Create(left, right, append(opts, deeppatch.OptionSetStats(st))...)
	if err != nil {
		return err
	}
	if o.stats {
		fmt.Fprint(errOut, deeppatch.FormatPrettyStatsString(st, o.color))
	}
	if o.pretty {
		return deeppatch.FormatPretty(out, patch, o.color)
	}
	if patch == nil {
		// no changes
		if enc == deeppatch.EncodingBinary {
			return nil
		}
		_, err := fmt.Fprintln(out, "[]")
		return err
	}
	return writePatch(out, patch, o.indent)
}

func runApply(o *options, args []string, in io.Reader, out, errOut io.Writer) error {
	opts, _, err := o.patchOptions(errOut)
	if err != nil {
		return err
	}
	doc, docFormat, err := readDocument(args[0], in)
	if err != nil {
		return err
	}
	patch, err := readPatch(args[1], in)
	if err != nil {
		return err
	}

	result, err := deeppatch.Apply(doc, patch, opts...)
	if err != nil {
		return err
	}

	format := docFormat
	if o.output != "" {
		format = o.output
	}
	return writeDocument(out, result, format, o.indent)
}

func runConvert(o *options, args []string, in io.Reader, out, errOut io.Writer) error {
	opts, enc, err := o.patchOptions(errOut)
	if err != nil {
		return err
	}
	patch, err := readPatch(args[0], in)
	if err != nil {
		return err
	}
	if o.pretty {
		return deeppatch.FormatPretty(out, patch, o.color)
	}
	converted, err := deeppatch.Transform(patch, enc, opts...)
	if err != nil {
		return err
	}
	return writePatch(out, converted, o.indent)
}

func runStats(o *options, args []string, in io.Reader, out, errOut io.Writer) error {
	opts, _, err := o.patchOptions(errOut)
	if err != nil {
		return err
	}
	patch, err := readPatch(args[0], in)
	if err != nil {
		return err
	}
	st, err := deeppatch.PatchStats(patch, opts...)
	if err != nil {
		return err
	}
	if o.pretty {
		fmt.Fprintf(out, "%d operations. %d inserts. %d deletes. %d updates. %d moves. %d copies. %d tests.\n",
			st.Ops(), st.Inserts, st.Deletes, st.Updates, st.Moves, st.Copies, st.Tests)
		return nil
	}
	return writeJSON(out, st, o.indent)
}

func readInput(path string, in io.Reader) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(in)
	}
	return os.ReadFile(path)
}

// readDocument reads a JSON or YAML document, returning the format it was
// read as
func readDocument(path string, in io.Reader) (interface{}, string, error) {
	data, err := readInput(path, in)
	if err != nil {
		return nil, "", err
	}

	var doc interface{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, "", fmt.Errorf("reading %s: %w", path, err)
		}
		return doc, "yaml", nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, "", fmt.Errorf("reading %s: %w", path, err)
	}
	return doc, "json", nil
}

// readPatch reads a patch in any encoding. YAML patches are read as the
// equivalent JSON
func readPatch(path string, in io.Reader) (deeppatch.Patch, error) {
	data, err := readInput(path, in)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var v interface{}
		if err := yaml.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		if data, err = json.Marshal(v); err != nil {
			return nil, err
		}
	}

	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '[' && json.Valid(trimmed) {
		return deeppatch.ParsePatchJSON(trimmed)
	}
	return deeppatch.BinaryPatch(data), nil
}

func writePatch(w io.Writer, p deeppatch.Patch, indent bool) error {
	if bin, ok := p.(deeppatch.BinaryPatch); ok {
		_, err := w.Write(bin)
		return err
	}
	return writeJSON(w, p, indent)
}

func writeDocument(w io.Writer, v interface{}, format string, indent bool) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case "json":
		return writeJSON(w, v, indent)
	}
	return fmt.Errorf("unknown output format %q", format)
}

func writeJSON(w io.Writer, v interface{}, indent bool) error {
	var data []byte
	var err error
	if indent {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}
