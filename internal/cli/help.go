package cli

import (
	"fmt"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/lipgloss"
)

// Custom help styles
var (
	helpTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(beatColor).
			MarginBottom(1)

	helpDescStyle = lipgloss.NewStyle().
			Foreground(bandColor).
			Italic(true).
			MarginBottom(1)

	helpSectionStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(bandColor).
				MarginTop(1)

	helpFlagStyle = lipgloss.NewStyle().
			Foreground(signalColor).
			Bold(true)

	helpArgStyle = lipgloss.NewStyle().
			Foreground(socketColor).
			Bold(true)

	helpDefaultStyle = lipgloss.NewStyle().
				Foreground(quietColor).
				Italic(true)
)

// StyledHelpPrinter creates a custom help printer with Lipgloss styling
func StyledHelpPrinter(options kong.HelpOptions) func(options kong.HelpOptions, ctx *kong.Context) error {
	return func(options kong.HelpOptions, ctx *kong.Context) error {
		var sb strings.Builder

		// Title and description
		sb.WriteString(helpTitleStyle.Render("Jivewave 🕺"))
		sb.WriteString("\n")
		sb.WriteString(helpDescStyle.Render("Real-time audio feature engine for visualisers"))
		sb.WriteString("\n")

		// Usage
		sb.WriteString(helpSectionStyle.Render("Usage:"))
		sb.WriteString("\n  ")
		sb.WriteString(fmt.Sprintf("%s [flags] [file]", ctx.Model.Name))
		sb.WriteString("\n")

		// Arguments section
		args := getArguments(ctx)
		if len(args) > 0 {
			sb.WriteString("\n")
			sb.WriteString(helpSectionStyle.Render("Arguments:"))
			sb.WriteString("\n")
			for _, arg := range args {
				sb.WriteString("  ")
				sb.WriteString(helpArgStyle.Render(arg.name))
				if arg.help != "" {
					sb.WriteString("  ")
					sb.WriteString(arg.help)
				}
				sb.WriteString("\n")
			}
		}

		// Flags, one section per kong group
		for _, section := range getFlagSections(ctx) {
			sb.WriteString("\n")
			sb.WriteString(helpSectionStyle.Render(section.title + ":"))
			sb.WriteString("\n")
			for _, flag := range section.flags {
				sb.WriteString("  ")
				sb.WriteString(helpFlagStyle.Render(flag.flags))
				if flag.help != "" {
					sb.WriteString("  ")
					sb.WriteString(flag.help)
				}
				if flag.defaultVal != "" {
					sb.WriteString(" ")
					sb.WriteString(helpDefaultStyle.Render("(default: " + flag.defaultVal + ")"))
				}
				sb.WriteString("\n")
			}
		}

		// Examples section
		sb.WriteString("\n")
		sb.WriteString(helpSectionStyle.Render("Examples:"))
		sb.WriteString("\n")
		for _, ex := range examples {
			sb.WriteString("  ")
			sb.WriteString(helpArgStyle.Render(fmt.Sprintf("%s %s", ctx.Model.Name, ex.args)))
			sb.WriteString("\n    ")
			sb.WriteString(helpDefaultStyle.Render(ex.help))
			sb.WriteString("\n")
		}

		sb.WriteString("\n")
		fmt.Fprint(ctx.Stdout, sb.String())
		return nil
	}
}

var examples = []struct {
	args string
	help string
}{
	{"track.mp3", "Analyse a file at playback speed and stream snapshots to ws://127.0.0.1:8080/ws"},
	{"--fast --headless --logs set.ogg", "Analyse as fast as possible and write the session report"},
	{"--demo-bpm 128 --detail full", "Stream a synthetic 128 BPM beat with every feature enabled"},
}

type argument struct {
	name string
	help string
}

type flag struct {
	flags      string
	help       string
	defaultVal string
}

func getArguments(ctx *kong.Context) []argument {
	var args []argument

	// Parse arguments from the model
	for _, arg := range ctx.Model.Node.Positional {
		name := arg.Summary()
		help := arg.Help
		args = append(args, argument{name: name, help: help})
	}

	return args
}

type flagSection struct {
	title string
	flags []flag
}

// getFlagSections lists flags under their kong group titles, in the order
// the groups first appear. Ungrouped flags, help included, come first.
func getFlagSections(ctx *kong.Context) []flagSection {
	sections := []flagSection{{
		title: "Flags",
		flags: []flag{{flags: "-h, --help", help: "Show context-sensitive help."}},
	}}
	index := map[string]int{}

	for _, f := range ctx.Model.Node.Flags {
		if f.Name == "help" || f.Hidden {
			continue
		}

		i := 0
		if f.Group != nil {
			var ok bool
			if i, ok = index[f.Group.Key]; !ok {
				i = len(sections)
				index[f.Group.Key] = i
				sections = append(sections, flagSection{title: f.Group.Title})
			}
		}
		sections[i].flags = append(sections[i].flags, describeFlag(f))
	}

	return sections
}

func describeFlag(f *kong.Flag) flag {
	flagStr := ""
	if f.Short != 0 {
		flagStr = fmt.Sprintf("-%c, --%s", f.Short, f.Name)
	} else {
		flagStr = fmt.Sprintf("--%s", f.Name)
	}

	if !f.IsBool() && f.PlaceHolder != "" {
		flagStr += "=" + strings.ToUpper(f.PlaceHolder)
	}

	defaultVal := ""
	if !f.IsBool() && f.HasDefault {
		defaultVal = f.Default
	}
	return flag{
		flags:      flagStr,
		help:       f.Help,
		defaultVal: defaultVal,
	}
}
