package deeppatch

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// FormatPrettyString is a convenice wrapper that outputs to a string instead of
// an io.Writer
func FormatPrettyString(p Patch, colorTTY bool) (string, error) {
	buf := &bytes.Buffer{}
	if err := FormatPretty(buf, p, colorTTY); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// FormatPretty writes a text report to w. operations sharing a path prefix
// are nested beneath it, one indent level per token. if colorTTY is true it
// will add
// red for removals
// green for additions & copies
// blue for replacements & moves
// white for tests
func FormatPretty(w io.Writer, p Patch, colorTTY bool) error {
	ops, err := ToCompact(p)
	if err != nil {
		return err
	}
	return formatPretty(w, ops, 0, newPalette(colorTTY))
}

func formatPretty(w io.Writer, ops CompactPatch, depth int, pal palette) error {
	indent := strings.Repeat("  ", depth)
	for i := 0; i < len(ops); {
		op := ops[i]
		path := op.Path()
		if op.Type().hasFrom() || path.Len() <= depth+1 {
			if err := formatOp(w, indent, op, depth, pal); err != nil {
				return err
			}
			i++
			continue
		}

		// nest the run of operations below the same token
		tok := path.Tokens()[depth]
		j := i + 1
		for j < len(ops) && !ops[j].Type().hasFrom() && ops[j].Path().Len() > depth+1 && ops[j].Path().Tokens()[depth] == tok {
			j++
		}
		if _, err := fmt.Fprintf(w, "%s%s:\n", indent, tok); err != nil {
			return err
		}
		if err := formatPretty(w, ops[i:j], depth+1, pal); err != nil {
			return err
		}
		i = j
	}
	return nil
}

func formatOp(w io.Writer, indent string, op CompactOp, depth int, pal palette) error {
	t := op.Type()
	name := "(root)"
	if tokens := op.Path().Tokens(); len(tokens) > depth {
		name = tokens[depth]
	}

	var line string
	switch {
	case t.hasFrom():
		line = fmt.Sprintf("%s %s -> %s", t, op.From().String(), op.Path().String())
	case t.hasValue():
		data, err := json.Marshal(jsonable(op.Value()))
		if err != nil {
			return err
		}
		line = fmt.Sprintf("%s %s: %s", t, name, data)
	default:
		line = fmt.Sprintf("%s %s", t, name)
	}
	_, err := fmt.Fprintf(w, "%s%s\n", indent, pal.op(t).Sprint(line))
	return err
}

type palette struct {
	neutral, insert, delete, update *color.Color
}

func newPalette(enabled bool) palette {
	p := palette{
		neutral: color.New(color.FgWhite),
		insert:  color.New(color.FgGreen),
		delete:  color.New(color.FgRed),
		update:  color.New(color.FgBlue),
	}
	for _, c := range []*color.Color{p.neutral, p.insert, p.delete, p.update} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

func (p palette) op(t OpType) *color.Color {
	switch t {
	case OpAdd, OpCopy:
		return p.insert
	case OpRemove:
		return p.delete
	case OpReplace, OpMove:
		return p.update
	}
	return p.neutral
}

// FormatPrettyStats prints a string of stats info
func FormatPrettyStats(diffStat *Stats) string {
	return FormatPrettyStatsString(diffStat, false)
}

// FormatPrettyStatsColor prints a string of stats info with ANSI colors
func FormatPrettyStatsColor(diffStat *Stats) string {
	return FormatPrettyStatsString(diffStat, true)
}

// FormatPrettyStatsString summarizes stats on one line, an empty string for
// nil stats
func FormatPrettyStatsString(ds *Stats, colorTTY bool) string {
	if ds == nil {
		return ""
	}
	p := newPalette(colorTTY)
	buf := &bytes.Buffer{}

	elsColor := p.insert
	change := ds.NodeChange()
	sign := "+"
	if change < 0 {
		elsColor = p.delete
		sign = ""
	} else if change == 0 {
		elsColor = p.neutral
		sign = ""
	}
	buf.WriteString(elsColor.Sprintf("%s%d", sign, change))
	buf.WriteString(p.neutral.Sprintf(" %s.", plural(change, "element")))

	buf.WriteString(p.insert.Sprintf(" %d %s.", ds.Inserts, plural(ds.Inserts, "insert")))
	buf.WriteString(p.delete.Sprintf(" %d %s.", ds.Deletes, plural(ds.Deletes, "delete")))
	buf.WriteString(p.update.Sprintf(" %d %s.", ds.Updates, plural(ds.Updates, "update")))
	if ds.Moves > 0 {
		buf.WriteString(p.update.Sprintf(" %d %s.", ds.Moves, plural(ds.Moves, "move")))
	}
	if ds.Copies > 0 {
		buf.WriteString(p.insert.Sprintf(" %d %s.", ds.Copies, plural(ds.Copies, "copy")))
	}
	if ds.Tests > 0 {
		buf.WriteString(p.neutral.Sprintf(" %d %s.", ds.Tests, plural(ds.Tests, "test")))
	}

	buf.WriteRune('\n')
	return buf.String()
}

func plural(n int, word string) string {
	if n == 1 || n == -1 {
		return word
	}
	if word == "copy" {
		return "copies"
	}
	return fmt.Sprintf("%ss", word)
}
