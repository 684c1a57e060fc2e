package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/richinex/llmchain/chain"
)

// errAborted is returned when the user quits at an interactive pause.
var errAborted = errors.New("run aborted at interactive step")

// endOfText terminates multi-line input.
const endOfText = "."

// prompter turns terminal input into resume decisions.
type prompter struct {
	in  *bufio.Reader
	out io.Writer
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{in: bufio.NewReader(in), out: out}
}

func (p *prompter) decide(s chain.Status) (chain.Decision, error) {
	fmt.Fprintf(p.out, "\n--- step %s awaiting input ---\n%s\n", s.StepID, s.Prompt)
	for {
		fmt.Fprint(p.out, "[enter] send  [e] edit prompt  [r] write response  [q] quit\n> ")
		choice, err := p.readLine()
		if err != nil {
			return chain.Decision{}, err
		}
		switch strings.ToLower(choice) {
		case "", "s", "send":
			return chain.Dispatch(""), nil
		case "e", "edit":
			text, err := p.readBlock("Prompt")
			if err != nil {
				return chain.Decision{}, err
			}
			return chain.Dispatch(text), nil
		case "r", "response":
			text, err := p.readBlock("Response")
			if err != nil {
				return chain.Decision{}, err
			}
			return chain.Supply(text), nil
		case "q", "quit", "exit":
			return chain.Decision{}, errAborted
		default:
			fmt.Fprintf(p.out, "unknown choice %q\n", choice)
		}
	}
}

// await is decide, abandoned when ctx is done. A read blocked on the
// terminal is left behind; the prompter must not be used afterwards.
func (p *prompter) await(ctx context.Context, s chain.Status) (chain.Decision, error) {
	type answer struct {
		d   chain.Decision
		err error
	}
	done := make(chan answer, 1)
	go func() {
		d, err := p.decide(s)
		done <- answer{d, err}
	}()

	select {
	case a := <-done:
		return a.d, a.err
	case <-ctx.Done():
		return chain.Decision{}, ctx.Err()
	}
}

// readLine returns one trimmed line. EOF with no pending text aborts.
func (p *prompter) readLine() (string, error) {
	line, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		if errors.Is(err, io.EOF) {
			return "", errAborted
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// readBlock reads lines until a lone "." or EOF.
func (p *prompter) readBlock(label string) (string, error) {
	fmt.Fprintf(p.out, "%s (end with a line containing only %q):\n", label, endOfText)
	var lines []string
	for {
		line, err := p.in.ReadString('\n')
		text := strings.TrimRight(line, "\r\n")
		if text == endOfText {
			break
		}
		if text != "" || err == nil {
			lines = append(lines, text)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return "", err
		}
	}
	return strings.Join(lines, "\n"), nil
}
