package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"
)

// console reads operator input on a single goroutine so the capture loop
// and the prompts that follow it consume one shared line stream.
type console struct {
	in          io.Reader
	out         io.Writer
	interactive bool
	colorize    bool

	once  sync.Once
	lines chan string
}

func newConsole(cmd *cobra.Command) *console {
	in := cmd.InOrStdin()
	interactive := false
	if file, ok := in.(*os.File); ok {
		interactive = isTerminal(file)
	}
	return &console{
		in:          in,
		out:         cmd.OutOrStdout(),
		interactive: interactive,
		colorize:    shouldColorize(cmd.OutOrStdout()),
		lines:       make(chan string),
	}
}

// Lines delivers trimmed input lines and is closed at end of input.
func (c *console) Lines() <-chan string {
	c.once.Do(func() {
		go func() {
			defer close(c.lines)
			scanner := bufio.NewScanner(c.in)
			for scanner.Scan() {
				c.lines <- strings.TrimSpace(scanner.Text())
			}
		}()
	})
	return c.lines
}

// prompt asks question and returns the answer, or fallback on an empty
// answer or end of input.
func (c *console) prompt(ctx context.Context, question, fallback string) (string, error) {
	if fallback != "" {
		fmt.Fprintf(c.out, "%s [%s]: ", question, fallback)
	} else {
		fmt.Fprintf(c.out, "%s: ", question)
	}
	select {
	case line, ok := <-c.Lines():
		if !ok {
			fmt.Fprintln(c.out)
			return fallback, nil
		}
		if line == "" {
			return fallback, nil
		}
		return line, nil
	case <-ctx.Done():
		fmt.Fprintln(c.out)
		return "", ctx.Err()
	}
}

// confirm asks a yes/no question.
func (c *console) confirm(ctx context.Context, question string, fallback bool) (bool, error) {
	hint := "y/N"
	if fallback {
		hint = "Y/n"
	}
	answer, err := c.prompt(ctx, question+" ("+hint+")", "")
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "":
		return fallback, nil
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

func (c *console) status(label string, kind statusKind, message string) {
	fmt.Fprintln(c.out, renderStatusLine(label, kind, message, c.colorize))
}
