package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/atinyakov/consultdesk/internal/models"
)

// Prompter reads interactive answers line by line.
type Prompter struct {
	scanner *bufio.Scanner
	out     io.Writer
}

// NewPrompter reads answers from in and writes questions to out.
func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{scanner: bufio.NewScanner(in), out: out}
}

func (p *Prompter) ask(question string) string {
	fmt.Fprint(p.out, question)
	if !p.scanner.Scan() {
		return ""
	}
	return strings.TrimSpace(p.scanner.Text())
}

// Credentials asks for an email and password.
func (p *Prompter) Credentials() models.Credentials {
	return models.Credentials{
		Email:    p.ask("Email: "),
		Password: p.ask("Password: "),
	}
}

// SignUp asks for a new member profile.
func (p *Prompter) SignUp() models.SignUp {
	return models.SignUp{
		Email:     p.ask("Email: "),
		Password:  p.ask("Password: "),
		FirstName: p.ask("First name: "),
		LastName:  p.ask("Last name: "),
	}
}

// Fields reads key=value lines until an empty line or end of input.
func (p *Prompter) Fields() (map[string]any, error) {
	fmt.Fprintln(p.out, "Enter fields as key=value, empty line to finish:")
	var pairs []string
	for {
		line := p.ask("> ")
		if line == "" {
			break
		}
		pairs = append(pairs, line)
	}
	return ParseFields(pairs)
}

// ParseFields converts key=value pairs into a field map. Values that parse
// as JSON keep their JSON type, anything else is stored as a string.
func ParseFields(pairs []string) (map[string]any, error) {
	fields := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid field %q, want key=value", pair)
		}
		var val any
		if err := json.Unmarshal([]byte(raw), &val); err != nil {
			val = raw
		}
		fields[key] = val
	}
	return fields, nil
}
