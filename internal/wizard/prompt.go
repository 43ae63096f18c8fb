package wizard

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var (
	sectionStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#0EA5E9"))
	hintStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF"))
	problemStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
)

// Prompter asks questions on Out and reads answers line by line from In.
type Prompter struct {
	In  io.Reader
	Out io.Writer

	scanner *bufio.Scanner
	eof     bool
}

// DefaultPrompter returns a Prompter on stdin/stdout.
func DefaultPrompter() *Prompter {
	return &Prompter{In: os.Stdin, Out: os.Stdout}
}

func (p *Prompter) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(p.Out, format, args...)
}

// Section prints a heading that groups the following questions.
func (p *Prompter) Section(title string) {
	p.printf("\n%s\n", sectionStyle.Render(title))
}

func (p *Prompter) readLine() string {
	if p.scanner == nil {
		p.scanner = bufio.NewScanner(p.In)
	}
	if !p.scanner.Scan() {
		p.eof = true
		return ""
	}
	return strings.TrimSpace(p.scanner.Text())
}

// Ask reads one answer; an empty line keeps defaultVal.
func (p *Prompter) Ask(question, defaultVal string) string {
	if defaultVal != "" {
		p.printf("%s %s: ", question, hintStyle.Render("["+defaultVal+"]"))
	} else {
		p.printf("%s: ", question)
	}
	if line := p.readLine(); line != "" {
		return line
	}
	return defaultVal
}

// AskValid repeats Ask until check accepts the answer. Once input is
// exhausted the last answer is returned unchecked.
func (p *Prompter) AskValid(question, defaultVal string, check func(string) error) string {
	for {
		ans := p.Ask(question, defaultVal)
		err := check(ans)
		if err == nil || p.eof {
			return ans
		}
		p.printf("  %s\n", problemStyle.Render(err.Error()))
	}
}

// AskSecret reads without echo when In is a terminal.
func (p *Prompter) AskSecret(question string) string {
	p.printf("%s: ", question)

	if f, ok := p.In.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		p.printf("\n")
		if err == nil {
			return strings.TrimSpace(string(b))
		}
	}
	return p.readLine()
}

// AskList reads a comma-separated list. "-" answers with an empty list.
func (p *Prompter) AskList(question string, defaults []string) []string {
	ans := p.Ask(question, strings.Join(defaults, ","))
	if ans == "-" {
		return []string{}
	}
	var out []string
	for item := range strings.SplitSeq(ans, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Choose lists options and accepts either a number or an option name.
func (p *Prompter) Choose(question string, options []string, defaultIdx int) string {
	p.printf("%s\n", question)
	for i, opt := range options {
		marker := "  "
		if i == defaultIdx {
			marker = "> "
		}
		p.printf("  %s%d) %s\n", marker, i+1, opt)
	}

	for {
		ans := p.Ask("  Choice", strconv.Itoa(defaultIdx+1))
		if n, err := strconv.Atoi(ans); err == nil && n >= 1 && n <= len(options) {
			return options[n-1]
		}
		for _, opt := range options {
			if strings.EqualFold(ans, opt) {
				return opt
			}
		}
		if p.eof {
			return options[defaultIdx]
		}
		p.printf("  %s\n", problemStyle.Render(fmt.Sprintf("enter 1-%d or an option name", len(options))))
	}
}

// Confirm asks a yes/no question.
func (p *Prompter) Confirm(question string, defaultYes bool) bool {
	hint := "y/N"
	if defaultYes {
		hint = "Y/n"
	}
	ans := strings.ToLower(p.Ask(question+" "+hintStyle.Render("["+hint+"]"), ""))
	if ans == "" {
		return defaultYes
	}
	return ans == "y" || ans == "yes"
}
